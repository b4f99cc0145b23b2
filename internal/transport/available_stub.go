//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows

package transport

import (
	"syscall"

	"github.com/momentics/hioload-sock/api"
)

func available(syscall.RawConn) (int, error) {
	return 0, api.ErrNotSupported
}
