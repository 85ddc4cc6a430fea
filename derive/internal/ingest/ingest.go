// Package ingest provides the unbounded single-producer single-consumer
// channel that carries batcher transactions into the derivation pipeline.
package ingest

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the receiving end has been closed.
var ErrClosed = errors.New("ingest channel closed")

// compactThreshold is the number of consumed slots tolerated before the
// backing slice is compacted.
const compactThreshold = 64

type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int // index of the first unconsumed element
	closed bool
}

// Sender is the producing end of the channel.
type Sender[T any] struct {
	q *queue[T]
}

// Receiver is the consuming end of the channel.
type Receiver[T any] struct {
	q *queue[T]
}

// New returns the two ends of a new, empty channel.
func New[T any]() (*Sender[T], *Receiver[T]) {
	q := &queue[T]{items: make([]T, 0)}
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

// Send appends v to the channel. It never blocks.
func (s *Sender[T]) Send(v T) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return ErrClosed
	}
	s.q.items = append(s.q.items, v)
	return nil
}

// TryRecv removes and returns the oldest queued value, or false when the
// channel is currently empty.
func (r *Receiver[T]) TryRecv() (T, bool) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	var zero T
	if r.q.head >= len(r.q.items) {
		return zero, false
	}

	v := r.q.items[r.q.head]
	r.q.items[r.q.head] = zero
	r.q.head++

	// compact once more than half of the slice has been consumed
	if r.q.head > len(r.q.items)/2 && r.q.head > compactThreshold {
		remaining := copy(r.q.items, r.q.items[r.q.head:])
		clear(r.q.items[remaining:])
		r.q.items = r.q.items[:remaining]
		r.q.head = 0
	}
	return v, true
}

// Drain discards every queued value and returns how many were dropped.
func (r *Receiver[T]) Drain() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	n := len(r.q.items) - r.q.head
	r.q.items = make([]T, 0)
	r.q.head = 0
	return n
}

// Len returns the number of queued values.
func (r *Receiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items) - r.q.head
}

// Close tears down the receiving end. Queued values are released and every
// later Send fails with ErrClosed.
func (r *Receiver[T]) Close() {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	r.q.closed = true
	r.q.items = nil
	r.q.head = 0
}
