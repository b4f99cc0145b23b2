// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract I/O execution context adapters issue non-blocking
// operations against. Completions never run on the goroutine that performed
// the blocking primitive; they run from Poll on the poller goroutine.

package api

// IOContext queues completions and runs them on the poller goroutine.
type IOContext interface {
	// Go runs op on a separate goroutine. The completion op returns, if any,
	// is queued and later invoked from Poll.
	Go(op func() (completion func()))

	// Post queues fn to be invoked from Poll. It reports false once the
	// context is closed.
	Post(fn func()) bool

	// Poll invokes every completion queued at entry without blocking and
	// returns how many ran.
	Poll() (int, error)
}
