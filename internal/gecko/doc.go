// Package gecko is the client side of the Gecko memory-access protocol.
//
// Ownership boundary:
// - Session: one live connection, exclusive wire lock, fault handling
// - command layer: opcode, word and raw payload primitives
// - bulk transfers: Dump (with zero-run blocks and cancellation) and Upload
// - cheat management and fixed-reply queries
//
// Every exported wire operation holds the Session's lock for its whole
// duration, so operations never interleave on the stream. Callers that need
// parallel transfers open one Session per connection.
package gecko
