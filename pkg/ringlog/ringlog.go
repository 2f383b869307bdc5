// Package ringlog provides a bounded, concurrency-safe rolling log.
// Once capacity is reached the oldest entry is overwritten.
// No external dependencies - uses only standard library.
package ringlog

import "sync"

// DefaultCapacity is used when a non-positive capacity is given.
const DefaultCapacity = 1000

// Log is a fixed-capacity ring buffer of entries.
type Log[T any] struct {
	mu      sync.Mutex
	buf     []T
	next    int
	full    bool
	dropped uint64
}

// New creates a Log with the given capacity.
func New[T any](capacity int) *Log[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log[T]{buf: make([]T, capacity)}
}

// Add appends an entry, dropping the oldest when full.
func (l *Log[T]) Add(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full {
		l.dropped++
	}
	l.buf[l.next] = entry
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
}

// Snapshot returns the entries oldest first.
func (l *Log[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]T, l.next)
		copy(out, l.buf[:l.next])
		return out
	}
	out := make([]T, 0, len(l.buf))
	out = append(out, l.buf[l.next:]...)
	out = append(out, l.buf[:l.next]...)
	return out
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Cap returns the capacity.
func (l *Log[T]) Cap() int {
	return len(l.buf)
}

// Dropped returns how many entries were overwritten.
func (l *Log[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
