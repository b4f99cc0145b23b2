package transport_test

import (
	"context"
	"syscall"
)

// blockUntilCancelled stalls a dial before the connect syscall until its
// context ends.
func blockUntilCancelled(ctx context.Context, _, _ string, _ syscall.RawConn) error {
	<-ctx.Done()
	return ctx.Err()
}
