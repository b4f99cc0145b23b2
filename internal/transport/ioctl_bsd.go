// internal/transport/ioctl_bsd.go
//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

// fionread is _IOR('f', 127, int) on the BSD family.
const fionread = 0x4004667f
