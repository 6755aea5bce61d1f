package worker

import "sync"

// mailbox is an unbounded FIFO. Put never blocks, so the control goroutine
// cannot stall on a busy worker.
type mailbox[T any] struct {
	mu    sync.Mutex
	items []T
}

func (m *mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
}

// Drain removes and returns everything queued, in order.
func (m *mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}

func (m *mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
