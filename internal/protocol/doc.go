// Package protocol owns the Gecko wire contract.
//
// Ownership boundary:
// - opcode and status byte tables
// - fixed-width integer encoding in wire order
// - cheat text encoding (subpackage cheat)
package protocol
