package transport

import "sync"

// mailbox is an unbounded FIFO drained through a channel by its own
// goroutine. Put never blocks, so a producer running inside the consumer's
// call stack cannot deadlock it. Close drops anything still pending.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
	done   chan struct{}
	out    chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
	go m.pump()
	return m
}

// Put appends v and reports whether the mailbox was still open.
func (m *mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox[T]) C() <-chan T {
	return m.out
}

func (m *mailbox[T]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.items = nil
	m.mu.Unlock()
	close(m.done)
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		for len(m.items) == 0 && !m.closed {
			m.mu.Unlock()
			select {
			case <-m.signal:
			case <-m.done:
				return
			}
			m.mu.Lock()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		v := m.items[0]
		var zero T
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}
