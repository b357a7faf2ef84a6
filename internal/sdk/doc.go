// Package sdk is the host-side client: it creates the peer, runs the
// token handshake and relays api_call requests once authenticated.
//
// A Client owns its session on a single goroutine (Run). CallAction and
// Snapshot may be called from any goroutine.
package sdk
