package session

// Session is the SDK's handshake state for one client lifetime.
type Session struct {
	AuthToken     string
	Authenticated bool
	PeerReady     bool
	State         State
	LastFailure   string
}

func NewSession() *Session {
	return &Session{State: StateUninitialized}
}

// Snapshot is a copy of a Session safe to hand outside the client loop.
// The token itself is never copied.
type Snapshot struct {
	State         State
	Authenticated bool
	PeerReady     bool
	HasToken      bool
	LastFailure   string
	Queued        int
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		State:         s.State,
		Authenticated: s.Authenticated,
		PeerReady:     s.PeerReady,
		HasToken:      s.AuthToken != "",
		LastFailure:   s.LastFailure,
	}
}
