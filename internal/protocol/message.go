package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one `{type, ...fields}` record crossing the peer boundary.
type Message map[string]any

// Type returns the message type, or "" when absent or not a string.
func (m Message) Type() string {
	return m.String(FieldType)
}

// String returns a string field, or "" when absent or of another type.
func (m Message) String(key string) string {
	v, _ := m[key].(string)
	return v
}

func (m Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	raw, ok := m[FieldType]
	if !ok {
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	t, ok := raw.(string)
	if !ok || strings.TrimSpace(t) == "" {
		return fmt.Errorf("%w: type must be a non-empty string", ErrMalformedMessage)
	}
	return nil
}

func Authenticate(token string) Message {
	return Message{
		FieldType:  TypeAuthenticate,
		FieldToken: token,
	}
}

// APICall builds an api_call record. A nil payload is sent as {}; requestID
// is only put on the wire when non-empty.
func APICall(action string, payload map[string]any, requestID string) Message {
	if payload == nil {
		payload = map[string]any{}
	}
	m := Message{
		FieldType:    TypeAPICall,
		FieldAction:  action,
		FieldPayload: payload,
	}
	if requestID != "" {
		m[FieldRequestID] = requestID
	}
	return m
}

func AuthSuccessMessage() Message {
	return Message{FieldType: TypeAuthSuccess}
}

func AuthFailureMessage(reason string) Message {
	m := Message{FieldType: TypeAuthFailure}
	if reason != "" {
		m[FieldReason] = reason
	}
	return m
}

// APIResultMessage builds an api_result record. Extra fields are copied
// first so they cannot override type, originalAction or requestId.
func APIResultMessage(originalAction, requestID string, fields map[string]any) Message {
	m := make(Message, len(fields)+3)
	for k, v := range fields {
		m[k] = v
	}
	m[FieldType] = TypeAPIResult
	m[FieldOriginalAction] = originalAction
	if requestID != "" {
		m[FieldRequestID] = requestID
	} else {
		delete(m, FieldRequestID)
	}
	return m
}

func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(raw []byte) (Message, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return AsMessage(v)
}

// AsMessage asserts that a decoded payload is an object carrying a type.
func AsMessage(v any) (Message, error) {
	var m Message
	switch t := v.(type) {
	case Message:
		m = t
	case map[string]any:
		m = Message(t)
	default:
		return nil, fmt.Errorf("%w: payload is %T, not an object", ErrMalformedMessage, v)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Clone deep-copies a message through its JSON form, so the copy shares no
// memory with the original and only carries serializable values.
func Clone(m Message) (Message, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var out Message
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return out, nil
}
