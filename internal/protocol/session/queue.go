package session

import "github.com/danmuck/framelink/internal/protocol"

// Queue buffers outbound messages until the peer is ready.
//
// It has no capacity bound: a peer that never loads lets it grow for the
// life of the client.
type Queue struct {
	items []protocol.Message
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(m protocol.Message) {
	q.items = append(q.items, m)
}

// PushFront puts m ahead of everything already queued.
func (q *Queue) PushFront(m protocol.Message) {
	q.items = append([]protocol.Message{m}, q.items...)
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Flush removes messages from the head, handing each to send, until the
// queue is empty. It returns how many were sent.
func (q *Queue) Flush(send func(protocol.Message)) int {
	n := 0
	for len(q.items) > 0 {
		m := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		send(m)
		n++
	}
	q.items = nil
	return n
}

func (q *Queue) Snapshot() []protocol.Message {
	out := make([]protocol.Message, len(q.items))
	copy(out, q.items)
	return out
}
