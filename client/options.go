// File: client/options.go
// Package client defines functional options for the Client.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"net"

	"github.com/momentics/hioload-sock/control"
	"go.uber.org/zap"
)

// Option customizes client construction.
type Option func(*Client)

// WithLogger sets the logger; lines carry the client name as source.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables endpoint metrics.
func WithMetrics(m *control.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer replaces the dialer used for connect attempts.
func WithDialer(d *net.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}
