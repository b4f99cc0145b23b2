// internal/transport/ioctl_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "golang.org/x/sys/unix"

// fionread is named SIOCINQ on Linux; its value differs across architectures.
const fionread = unix.SIOCINQ
