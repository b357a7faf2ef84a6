// Package transport creates the isolated peer context and moves messages
// across its boundary.
//
// A Channel has no policy of its own beyond the boundary rules every
// implementation shares: one peer per channel, no sends before the peer has
// loaded, and an explicit target origin on every send. Lifecycle and inbound
// messages arrive on Events in the order they happened.
package transport
