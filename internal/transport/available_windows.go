// internal/transport/available_windows.go
//go:build windows
// +build windows

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"io"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	fionread = 0x4004667f
	fionbio  = 0x8004667e
)

// available queries the pending byte count with WSAIoctl(FIONREAD). When
// nothing is queued, a one-byte MSG_PEEK receive with the socket briefly
// switched to non-blocking mode tells an idle socket (WSAEWOULDBLOCK) apart
// from one whose peer has closed (zero-length receive).
func available(raw syscall.RawConn) (int, error) {
	var (
		n     uint32
		opErr error
	)
	err := raw.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		var returned uint32
		opErr = windows.WSAIoctl(h, fionread, nil, 0,
			(*byte)(unsafe.Pointer(&n)), uint32(unsafe.Sizeof(n)), &returned, nil, 0)
		if opErr != nil || n > 0 {
			return
		}
		if opErr = setNonBlocking(h, true); opErr != nil {
			return
		}
		var peek [1]byte
		m, _, rerr := windows.Recvfrom(h, peek[:], windows.MSG_PEEK)
		restoreErr := setNonBlocking(h, false)
		switch {
		case errors.Is(rerr, windows.WSAEWOULDBLOCK):
		case rerr != nil:
			opErr = rerr
		case m == 0:
			opErr = io.EOF
		default:
			n = uint32(m)
		}
		if opErr == nil {
			opErr = restoreErr
		}
	})
	if err != nil {
		return 0, err
	}
	return int(n), opErr
}

// setNonBlocking toggles FIONBIO. Overlapped operations issued by the
// runtime are unaffected by the mode.
func setNonBlocking(h windows.Handle, on bool) error {
	var arg, returned uint32
	if on {
		arg = 1
	}
	return windows.WSAIoctl(h, fionbio, (*byte)(unsafe.Pointer(&arg)), uint32(unsafe.Sizeof(arg)),
		nil, 0, &returned, nil, 0)
}
