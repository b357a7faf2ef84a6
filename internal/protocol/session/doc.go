// Package session owns the SDK side of the peer handshake.
//
// Ownership boundary:
// - session state (token, readiness, authentication)
// - the handshake state machine and its status reporting
// - the outbound queue used until the peer is ready
// - endpoint configuration and origin policy
//
// Nothing in this package is safe for concurrent use. A single client loop
// owns one Session, one Handshake and one Queue.
package session
