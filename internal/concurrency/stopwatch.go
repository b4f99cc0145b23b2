// File: internal/concurrency/stopwatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "time"

// Stopwatch is a monotonic deadline timer checked once per tick.
// It is not safe for concurrent use; endpoints touch it only from the
// poller goroutine.
type Stopwatch struct {
	start   time.Time
	running bool
	now     func() time.Time
}

// NewStopwatch returns a stopped stopwatch reading the monotonic clock.
func NewStopwatch() Stopwatch {
	return Stopwatch{now: time.Now}
}

// Start (re)starts measuring from now.
func (s *Stopwatch) Start() {
	s.start = s.clock()
	s.running = true
}

// Reset stops the stopwatch; a stopped stopwatch never reports elapsed time.
func (s *Stopwatch) Reset() {
	s.start = time.Time{}
	s.running = false
}

// Running reports whether the stopwatch has been started and not reset.
func (s *Stopwatch) Running() bool { return s.running }

// Elapsed returns the time since Start, or zero when stopped.
func (s *Stopwatch) Elapsed() time.Duration {
	if !s.running {
		return 0
	}
	return s.clock().Sub(s.start)
}

// Exceeded reports whether the stopwatch is running and more than limit has elapsed.
func (s *Stopwatch) Exceeded(limit time.Duration) bool {
	return s.running && s.Elapsed() > limit
}

func (s *Stopwatch) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
