// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown stops every owned component in reverse start order and
// releases its sockets.
type GracefulShutdown interface {
	Shutdown() error
}
