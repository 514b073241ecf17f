// Package protocol owns the PakBus binary field codec.
//
// Ownership boundary:
// - field type registry and wire sizes
// - encode/decode of typed field sequences
// - scalar/sequence results and short-buffer reporting
//
// Subpackages own the signature (sig), framing and link header (frame),
// the message catalogue (catalog), table definitions (tabledef) and the
// transaction engine (session).
package protocol
