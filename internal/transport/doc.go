// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP socket primitives for poll-driven endpoints: a Socket wrapper with an
// available-byte probe that also detects peer close, plus asynchronous
// connect, accept, read and write operations whose results are delivered
// through an api.IOContext. The probe is split by build tags
// (unix, windows, stub).

package transport
