package worker

import "sync"

// mailbox is an unbounded queue whose readiness can be selected on.
// put never blocks, so senders on the UI side never wait for the worker.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	notify chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

// put queues v. It reports false once the mailbox is closed.
func (m *mailbox[T]) put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	m.signal()
	return true
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()
	if !already {
		m.signal()
	}
}

// drain takes everything queued and reports whether the mailbox was closed
func (m *mailbox[T]) drain() ([]T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items, m.closed
}

func (m *mailbox[T]) ready() <-chan struct{} { return m.notify }

func (m *mailbox[T]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
