package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/framelink/internal/protocol"
)

var (
	ErrPeerExists     = errors.New("transport: peer already created")
	ErrPeerNotReady   = errors.New("transport: peer not ready")
	ErrWildcardTarget = errors.New("transport: explicit target origin required")
	ErrTargetMismatch = errors.New("transport: target origin does not match peer")
	ErrClosed         = errors.New("transport: channel closed")
)

type EventKind int

const (
	EventLoaded EventKind = iota
	EventLoadFailed
	EventMessage
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle change or inbound message. Origin is the serialized
// origin of the sender; Data is the decoded payload and may be any JSON value.
type Event struct {
	Kind   EventKind
	Origin string
	Data   any
	Err    error
}

// Channel is the peer boundary.
//
// Create reports load success or failure exactly once, asynchronously, on
// Events. Send fails with ErrPeerNotReady until that load has succeeded.
type Channel interface {
	Create(ctx context.Context, url string) error
	Send(msg protocol.Message, targetOrigin string) error
	Events() <-chan Event
	Close() error
}

// checkSend applies the send preconditions shared by every Channel:
// explicit target, open channel, loaded peer, then exact target match.
func checkSend(target, peerOrigin string, loaded, closed bool) error {
	target = strings.TrimSpace(target)
	if target == "" || target == "*" {
		return ErrWildcardTarget
	}
	if closed {
		return ErrClosed
	}
	if !loaded {
		return ErrPeerNotReady
	}
	if !protocol.SameOrigin(target, peerOrigin) {
		return fmt.Errorf("%w: target=%s peer=%s", ErrTargetMismatch, target, peerOrigin)
	}
	return nil
}
