package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/framelink/internal/protocol"
)

// PeerFunc is an in-process peer. reply posts data back to the client as if
// the peer had sent it from its own origin.
type PeerFunc func(msg protocol.Message, reply func(data any))

// Delivery is one message accepted by a Memory channel.
type Delivery struct {
	Message      protocol.Message
	TargetOrigin string
}

type MemoryOption func(*Memory)

// WithAutoLoad makes Create report the load immediately.
func WithAutoLoad() MemoryOption {
	return func(m *Memory) {
		m.autoLoad = true
	}
}

// WithLoadError makes Create report a load failure with err.
func WithLoadError(err error) MemoryOption {
	return func(m *Memory) {
		m.autoLoad = true
		m.loadErr = err
	}
}

// Memory is an in-process Channel. Loading is driven explicitly with Load
// and Fail unless an auto option is given.
type Memory struct {
	peerOrigin string
	peer       PeerFunc
	autoLoad   bool
	loadErr    error

	mu      sync.Mutex
	created bool
	url     string
	settled bool
	loaded  bool
	closed  bool
	sent    []Delivery
	events  *mailbox[Event]
}

func NewMemory(peerOrigin string, peer PeerFunc, opts ...MemoryOption) *Memory {
	m := &Memory{
		peerOrigin: peerOrigin,
		peer:       peer,
		events:     newMailbox[Event](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(_ context.Context, url string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.created {
		m.mu.Unlock()
		return ErrPeerExists
	}
	m.created = true
	m.url = url
	auto, loadErr := m.autoLoad, m.loadErr
	m.mu.Unlock()

	if auto {
		if loadErr != nil {
			m.Fail(loadErr)
		} else {
			m.Load()
		}
	}
	return nil
}

// Load reports a successful load. It does nothing before Create or after
// the load has already settled.
func (m *Memory) Load() {
	m.mu.Lock()
	if !m.created || m.settled || m.closed {
		m.mu.Unlock()
		return
	}
	m.settled = true
	m.loaded = true
	m.mu.Unlock()
	m.events.Put(Event{Kind: EventLoaded, Origin: m.peerOrigin})
}

// Fail reports a load failure. It does nothing before Create or after the
// load has already settled.
func (m *Memory) Fail(err error) {
	if err == nil {
		err = errors.New("transport: peer failed to load")
	}
	m.mu.Lock()
	if !m.created || m.settled || m.closed {
		m.mu.Unlock()
		return
	}
	m.settled = true
	m.mu.Unlock()
	m.events.Put(Event{Kind: EventLoadFailed, Origin: m.peerOrigin, Err: err})
}

// Inject delivers data as if posted from origin. It works in any state, so
// tests can model peers that post before load and spoofed senders.
func (m *Memory) Inject(origin string, data any) {
	m.events.Put(Event{Kind: EventMessage, Origin: origin, Data: cloneData(data)})
}

func (m *Memory) Send(msg protocol.Message, targetOrigin string) error {
	clone, err := protocol.Clone(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := checkSend(targetOrigin, m.peerOrigin, m.loaded, m.closed); err != nil {
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, Delivery{Message: clone, TargetOrigin: targetOrigin})
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer(clone, func(data any) {
			m.Inject(m.peerOrigin, data)
		})
	}
	return nil
}

func (m *Memory) Events() <-chan Event {
	return m.events.C()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.loaded = false
	m.mu.Unlock()
	m.events.Close()
	return nil
}

// Sent returns a copy of every delivered message in send order.
func (m *Memory) Sent() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *Memory) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Created reports the url passed to Create, if it was called.
func (m *Memory) Created() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url, m.created
}

func (m *Memory) PeerOrigin() string {
	return m.peerOrigin
}
