// internal/transport/available_unix.go
//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FIONREAD-based available-byte probe with peer-close detection. The
// request code comes from the per-OS ioctl files.

package transport

import (
	"errors"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// available asks the kernel how many bytes are queued. When none are, a
// non-blocking one-byte peek tells an idle socket (EAGAIN) apart from one
// whose peer has closed (zero-length read).
func available(raw syscall.RawConn) (int, error) {
	var (
		n     int
		opErr error
	)
	err := raw.Control(func(fd uintptr) {
		n, opErr = unix.IoctlGetInt(int(fd), fionread)
		if opErr != nil || n > 0 {
			return
		}
		var probe [1]byte
		m, _, rerr := unix.Recvfrom(int(fd), probe[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EINTR):
		case rerr != nil:
			opErr = rerr
		case m == 0:
			opErr = io.EOF
		default:
			n = m
		}
	})
	if err != nil {
		return 0, err
	}
	return n, opErr
}
