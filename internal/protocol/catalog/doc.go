// Package catalog owns the PakBus message catalogue: command builders for
// the PakCtrl and BMP5 transactions the collector uses, and a static
// decoder table for their responses.
//
// Builders return unsigned packets (link header + message body). The frame
// layer appends the signature nullifier when the packet is written.
//
// Unknown (protocol, message type) pairs and bodies a decoder cannot parse
// still decode to a generic Message carrying the raw bytes.
package catalog
