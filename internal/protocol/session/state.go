package session

// State is the handshake lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingToken
	StateCreatingPeer
	StateAuthenticating
	StateAuthenticated
	StateAuthenticationFailed
	StateInitializationFailed
)

// Status details reported alongside state labels.
const (
	DetailTokenMissing     = "Auth token missing"
	DetailCreatingPeer     = "Token found, creating iframe..."
	DetailPeerLoadFailed   = "Error loading iframe"
	DetailTokenSent        = "Sent token to launcher iframe."
	DetailReady            = "Ready to call APIs."
	DetailUnknownReason    = "Unknown reason"
	DetailPeerLoadTimeout  = "Peer load timed out"
	DetailHandshakeTimeout = "Handshake timed out"
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingToken:
		return "awaiting_token"
	case StateCreatingPeer:
		return "creating_peer"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthenticationFailed:
		return "authentication_failed"
	case StateInitializationFailed:
		return "initialization_failed"
	default:
		return "unknown"
	}
}

// Label is the host-facing status label for the state.
func (s State) Label() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateAwaitingToken:
		return "Awaiting Token"
	case StateCreatingPeer:
		return "Initializing"
	case StateAuthenticating:
		return "Authenticating"
	case StateAuthenticated:
		return "Authenticated"
	case StateAuthenticationFailed:
		return "Authentication Failed"
	case StateInitializationFailed:
		return "Initialization Failed"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateInitializationFailed
}

// transitions lists the allowed targets per state. Auth outcomes are accepted
// while the peer is still loading because a trusted peer may post before its
// load completes; for the same reason a load failure can follow them.
var transitions = map[State][]State{
	StateUninitialized: {StateAwaitingToken},
	StateAwaitingToken: {StateCreatingPeer, StateInitializationFailed},
	StateCreatingPeer: {
		StateAuthenticating,
		StateInitializationFailed,
		StateAuthenticated,
		StateAuthenticationFailed,
	},
	StateAuthenticating: {StateAuthenticated, StateAuthenticationFailed},
	StateAuthenticated: {
		StateAuthenticated,
		StateAuthenticationFailed,
		StateInitializationFailed,
	},
	StateAuthenticationFailed: {
		StateAuthenticated,
		StateAuthenticationFailed,
		StateAuthenticating,
		StateInitializationFailed,
	},
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
