// Package history keeps the most recent uplink and downlink records for
// observability. Nothing in the pipeline reads history back.
package history

import "sync"

// DefaultCapacity is the number of records each buffer keeps.
const DefaultCapacity = 3

// Buffer is a bounded, insertion-ordered buffer. Pushing past capacity
// evicts the oldest record.
type Buffer[T any] struct {
	mu    sync.Mutex
	limit int
	items []T
}

// NewBuffer returns a buffer holding at most capacity records.
// A capacity below 1 uses DefaultCapacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{limit: capacity, items: make([]T, 0, capacity)}
}

// Push appends v, evicting the oldest record when full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == b.limit {
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = v
		return
	}
	b.items = append(b.items, v)
}

// Snapshot returns a copy of the records, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Clear removes every record.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.items)
	b.items = b.items[:0]
}

// Len returns the number of records held.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
