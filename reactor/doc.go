// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the I/O execution context pollers drain once per
// tick. Blocking primitives are parked on the Go runtime netpoller; their
// completion handlers run on the poller goroutine only.
package reactor
