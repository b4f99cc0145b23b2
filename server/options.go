// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-sock/control"
	"go.uber.org/zap"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger; lines carry the server name as source.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables endpoint metrics.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithIDGenerator replaces the connection ID source. IDs must never repeat.
func WithIDGenerator(gen func() string) ServerOption {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}
