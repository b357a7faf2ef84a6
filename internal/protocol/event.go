package protocol

// Event is the decoded form of one peer -> SDK message.
//
// The set is closed: AuthSuccess, AuthFailure, APIResult, Unknown.
type Event interface {
	EventType() string
}

type AuthSuccess struct{}

func (AuthSuccess) EventType() string { return TypeAuthSuccess }

// AuthFailure carries the peer-supplied reason, "" when none was given.
type AuthFailure struct {
	Reason string
}

func (AuthFailure) EventType() string { return TypeAuthFailure }

// APIResult keeps the full record so it can be forwarded verbatim.
type APIResult struct {
	OriginalAction string
	RequestID      string
	Message        Message
}

func (APIResult) EventType() string { return TypeAPIResult }

// Unknown is any well-formed message with a type this SDK does not know.
type Unknown struct {
	Type    string
	Message Message
}

func (u Unknown) EventType() string { return u.Type }

// ParseEvent decodes an inbound payload. Non-object payloads and payloads
// without a string type fail with ErrMalformedMessage; unrecognized types
// succeed as Unknown.
func ParseEvent(data any) (Event, error) {
	m, err := AsMessage(data)
	if err != nil {
		return nil, err
	}
	switch t := m.Type(); t {
	case TypeAuthSuccess:
		return AuthSuccess{}, nil
	case TypeAuthFailure:
		return AuthFailure{Reason: m.String(FieldReason)}, nil
	case TypeAPIResult:
		return APIResult{
			OriginalAction: m.String(FieldOriginalAction),
			RequestID:      m.String(FieldRequestID),
			Message:        m,
		}, nil
	default:
		return Unknown{Type: t, Message: m}, nil
	}
}
