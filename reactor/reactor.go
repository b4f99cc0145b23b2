// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Completion-queue I/O context. Blocking socket primitives run on their own
// goroutines (parked on the Go runtime netpoller); their completions are
// queued here and invoked only from Poll, i.e. on the poller goroutine.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/internal/concurrency"
)

var _ api.IOContext = (*IOContext)(nil)

// IOContext is the non-blocking execution context shared by the adapters
// of one poller.
type IOContext struct {
	completions *concurrency.Fifo[func()]
	closed      atomic.Bool
	inflight    atomic.Int64
	wg          sync.WaitGroup
}

// NewIOContext returns an open, empty context.
func NewIOContext() *IOContext {
	return &IOContext{completions: concurrency.NewFifo[func()]()}
}

// Go runs op on a new goroutine and queues the completion it returns.
func (c *IOContext) Go(op func() func()) {
	c.inflight.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.Add(-1)
		if done := op(); done != nil {
			c.Post(done)
		}
	}()
}

// Post queues fn for the next Poll. Returns false once closed.
func (c *IOContext) Post(fn func()) bool {
	if fn == nil || c.closed.Load() {
		return false
	}
	c.completions.Push(fn)
	return true
}

// Poll runs the completions queued at entry. Completions queued while
// polling are left for the next call. A panicking completion does not stop
// the drain; its panic is returned as an infrastructure error.
func (c *IOContext) Poll() (int, error) {
	if c.closed.Load() {
		return 0, api.ErrContextClosed
	}
	n := c.completions.Len()
	var errs []error
	ran := 0
	for i := 0; i < n; i++ {
		fn, ok := c.completions.Pop()
		if !ok {
			break
		}
		if err := invoke(fn); err != nil {
			errs = append(errs, err)
		}
		ran++
	}
	if len(errs) > 0 {
		return ran, api.NewError(api.KindInfrastructure, api.ErrCodeInternal, "completion failed").
			WithOp("poll").
			WithCause(errors.Join(errs...))
	}
	return ran, nil
}

// Pending returns the number of queued completions.
func (c *IOContext) Pending() int { return c.completions.Len() }

// InFlight returns the number of blocking primitives still running.
func (c *IOContext) InFlight() int { return int(c.inflight.Load()) }

// Close rejects further completions and drops the queued ones.
func (c *IOContext) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.completions.Clear()
	}
}

// Closed reports whether Close has been called.
func (c *IOContext) Closed() bool { return c.closed.Load() }

// Wait blocks until every goroutine started by Go has returned. Callers
// must close the sockets those goroutines block on first.
func (c *IOContext) Wait() { c.wg.Wait() }

func invoke(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panic: %v", r)
		}
	}()
	fn()
	return nil
}
