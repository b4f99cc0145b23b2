// File: internal/transport/async.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Asynchronous socket operations. Each one performs the blocking primitive
// through api.IOContext.Go and delivers its result through the context, so
// handlers always run on the poller goroutine.

package transport

import (
	"context"
	"io"
	"net"

	"github.com/momentics/hioload-sock/api"
)

// Connect dials addr and delivers the connected socket to done.
// Cancelling ctx aborts the dial. If the context no longer accepts
// completions, the connected socket is closed instead.
func Connect(ioc api.IOContext, ctx context.Context, d *net.Dialer, addr string, done func(*Socket, error)) {
	ioc.Go(func() func() {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return func() { done(nil, err) }
		}
		s, err := NewSocket(c.(*net.TCPConn))
		if err != nil {
			_ = c.Close()
			return func() { done(nil, err) }
		}
		if !ioc.Post(func() { done(s, nil) }) {
			_ = s.Close()
		}
		return nil
	})
}

// Accept waits for the next inbound connection on ln.
func Accept(ioc api.IOContext, ln *net.TCPListener, done func(*Socket, error)) {
	ioc.Go(func() func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			return func() { done(nil, err) }
		}
		s, err := NewSocket(c)
		if err != nil {
			_ = c.Close()
			return func() { done(nil, err) }
		}
		if !ioc.Post(func() { done(s, nil) }) {
			_ = s.Close()
		}
		return nil
	})
}

// Write transmits every buffer, in order, with a single vectored write.
func Write(ioc api.IOContext, s *Socket, bufs [][]byte, done func(int64, error)) {
	nb := make(net.Buffers, len(bufs))
	copy(nb, bufs)
	ioc.Go(func() func() {
		n, err := nb.WriteTo(s.conn)
		return func() { done(n, err) }
	})
}

// ReadFull reads exactly len(buf) bytes.
func ReadFull(ioc api.IOContext, s *Socket, buf []byte, done func(int, error)) {
	ioc.Go(func() func() {
		n, err := io.ReadFull(s.conn, buf)
		return func() { done(n, err) }
	})
}
