// Package protocol owns the SDK<->peer wire contract.
//
// Ownership boundary:
// - `{type, ...}` message records and their constructors
// - decoding inbound payloads into the typed event union
// - origin parsing and normalization
//
// Every record crossing the boundary is a JSON object with a string `type`.
// Unknown types decode to Unknown and are never an error.
package protocol
