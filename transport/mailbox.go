package transport

import (
	"context"
	"fmt"
	"sync"
)

type envelope struct {
	from int
	msg  []byte
}

// Mailbox queues incoming messages of one rank until they are received.
type Mailbox struct {
	mu     sync.Mutex
	queues map[Tag][]envelope
	notify chan struct{}
	err    error
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		queues: make(map[Tag][]envelope),
		notify: make(chan struct{}),
	}
}

// Put enqueues msg from rank from. Messages put after Close are dropped.
func (m *Mailbox) Put(from int, tag Tag, msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.queues[tag] = append(m.queues[tag], envelope{from: from, msg: msg})
	close(m.notify)
	m.notify = make(chan struct{})
}

// Get dequeues the oldest message with tag from rank from, or from any rank if from is AnySource.
func (m *Mailbox) Get(ctx context.Context, from int, tag Tag) (int, []byte, error) {
	for {
		m.mu.Lock()
		if src, msg, ok := m.take(from, tag); ok {
			m.mu.Unlock()
			return src, msg, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return 0, nil, err
		}
		notify := m.notify
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-notify:
		}
	}
}

func (m *Mailbox) take(from int, tag Tag) (int, []byte, bool) {
	q := m.queues[tag]
	for i, env := range q {
		if from != AnySource && env.from != from {
			continue
		}
		copy(q[i:], q[i+1:])
		q[len(q)-1] = envelope{}
		m.queues[tag] = q[:len(q)-1]
		return env.from, env.msg, true
	}
	return 0, nil, false
}

// Pending returns the number of queued messages with tag.
func (m *Mailbox) Pending(tag Tag) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[tag])
}

// Close wakes up all waiting receivers. Queued messages can still be received,
// after that Get fails with ErrClosed wrapped around cause.
func (m *Mailbox) Close(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	if cause == nil {
		m.err = ErrClosed
	} else {
		m.err = fmt.Errorf("%w: %w", ErrClosed, cause)
	}
	close(m.notify)
	m.notify = make(chan struct{})
}
