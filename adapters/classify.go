// Package adapters
// Author: momentics <momentics@gmail.com>

package adapters

import (
	"github.com/momentics/hioload-sock/api"
	"go.uber.org/zap"
)

// ClassifyStartupError decides whether err aborts initialization.
// It reports whether an error was present; fatal is non-nil only when the
// endpoint does not allow failure on init. Tolerated errors are logged.
func ClassifyStartupError(err error, allowFailure bool, logger *zap.Logger) (present bool, fatal error) {
	if err == nil {
		return false, nil
	}
	if allowFailure {
		if logger != nil {
			logger.Warn("startup failure tolerated", zap.Error(err))
		}
		return true, nil
	}
	return true, err
}

// StartupError wraps a resolution or bind failure as a structured startup error.
func StartupError(code api.ErrorCode, op string, cause error) *api.Error {
	return api.NewError(api.KindStartup, code, "endpoint start failed").
		WithOp(op).
		WithCause(cause)
}
