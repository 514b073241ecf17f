// Package session owns the PakBus transaction engine for one serial link.
//
// Ownership boundary:
// - transaction number allocation
// - request send + response wait with deadline
// - unsolicited hello replies and please-wait deadline extension
// - reconnect backoff primitives
//
// An Engine serves exactly one in-flight request at a time. Callers that
// share a link serialise above it.
package session
