// File: internal/concurrency/fifo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unbounded FIFO backed by a ring-buffer queue.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Fifo is an unbounded first-in-first-out queue safe for concurrent
// producers and consumers. Items pushed by one goroutine are popped in the
// order they were pushed.
type Fifo[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewFifo returns an empty Fifo.
func NewFifo[T any]() *Fifo[T] {
	return &Fifo[T]{q: queue.New()}
}

// Push appends item to the tail.
func (f *Fifo[T]) Push(item T) {
	f.mu.Lock()
	f.q.Add(item)
	f.mu.Unlock()
}

// Pop removes the head item; ok is false when empty.
func (f *Fifo[T]) Pop() (item T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.q.Length() == 0 {
		return item, false
	}
	return f.q.Remove().(T), true
}

// PopAll removes every queued item and returns them in FIFO order.
func (f *Fifo[T]) PopAll() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.q.Remove().(T))
	}
	return out
}

// Len returns the number of queued items.
func (f *Fifo[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.Length()
}

// Clear drops every queued item and returns how many were dropped.
func (f *Fifo[T]) Clear() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.q.Length()
	f.q = queue.New()
	return n
}
