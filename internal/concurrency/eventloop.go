// File: internal/concurrency/eventloop.go
// Package concurrency implements the dedicated tick loop used by own-thread pollers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"
	"sync/atomic"
	"time"
)

// EventLoop calls a tick function repeatedly on its own goroutine,
// sleeping a fixed interval between ticks, until stopped.
type EventLoop struct {
	tick     func()
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  int32
}

// NewEventLoop creates a loop around tick. An interval of zero yields the
// processor between ticks instead of sleeping.
func NewEventLoop(tick func(), interval time.Duration) *EventLoop {
	return &EventLoop{
		tick:     tick,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start spawns the loop goroutine. Subsequent calls are no-ops.
func (el *EventLoop) Start() bool {
	if !atomic.CompareAndSwapInt32(&el.running, 0, 1) {
		return false
	}
	go el.run()
	return true
}

// Running reports whether the loop goroutine is active.
func (el *EventLoop) Running() bool {
	return atomic.LoadInt32(&el.running) == 1
}

// Stop signals the loop and waits for the current tick to finish.
func (el *EventLoop) Stop() {
	if !atomic.CompareAndSwapInt32(&el.running, 1, 2) {
		return
	}
	close(el.stopCh)
	<-el.doneCh
}

func (el *EventLoop) run() {
	defer close(el.doneCh)

	for {
		select {
		case <-el.stopCh:
			return
		default:
		}

		el.tick()

		if el.interval <= 0 {
			runtime.Gosched()
			continue
		}
		select {
		case <-el.stopCh:
			return
		case <-time.After(el.interval):
		}
	}
}
