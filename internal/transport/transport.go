// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent TCP socket wrapper used by client and server
// adapters. Platform files provide the available-byte probe.

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
)

// Socket wraps an established TCP connection with the primitives the
// adapters need: available-byte probing, no-delay control and an
// idempotent close.
type Socket struct {
	conn   *net.TCPConn
	raw    syscall.RawConn
	closed atomic.Bool
}

// NewSocket wraps conn. It fails when the connection exposes no raw descriptor.
func NewSocket(conn *net.TCPConn) (*Socket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}
	return &Socket{conn: conn, raw: raw}, nil
}

// Conn returns the underlying connection.
func (s *Socket) Conn() *net.TCPConn { return s.conn }

// LocalAddr returns the local network address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (s *Socket) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Available returns the number of bytes that can be read without blocking.
// It returns io.EOF when the peer has closed its side and nothing is left
// to read.
func (s *Socket) Available() (int, error) {
	if s.closed.Load() {
		return 0, net.ErrClosed
	}
	return available(s.raw)
}

// SetNoDelay toggles the Nagle algorithm; true disables it.
func (s *Socket) SetNoDelay(noDelay bool) error {
	return s.conn.SetNoDelay(noDelay)
}

// Read reads into p. Callers only read what Available reported, so the
// call returns without parking.
func (s *Socket) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Discard reads and drops every byte currently buffered on the socket.
func (s *Socket) Discard() (int, error) {
	n, err := s.Available()
	if err != nil || n == 0 {
		return 0, err
	}
	buf := make([]byte, n)
	return s.conn.Read(buf)
}

// Close closes the socket once; later calls return nil.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Closed reports whether Close has been called.
func (s *Socket) Closed() bool { return s.closed.Load() }
