// File: client/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"github.com/momentics/hioload-sock/control"
)

// Config holds the per-endpoint options of a Client. It is copied on
// construction and immutable afterwards.
type Config struct {
	Name    string
	Address string
	Port    int

	ConnectOnStart bool
	AutoReconnect  bool
	// ReconnectInterval is the delay between a failure and the next attempt.
	ReconnectInterval time.Duration
	// ReconnectBackoffMax lets the delay double per failed attempt up to this
	// bound. Zero keeps the delay constant.
	ReconnectBackoffMax time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	NoDelay            bool
	AllowFailureOnInit bool
	EnableLogging      bool

	// ActionQueueSize bounds the deferred control action queue.
	ActionQueueSize int
}

// DefaultConfig returns a client for 127.0.0.1:13251 that connects on start
// and reconnects every five seconds.
func DefaultConfig() Config {
	return Config{
		Name:              "client",
		Address:           "127.0.0.1",
		Port:              control.DefaultPort,
		ConnectOnStart:    true,
		AutoReconnect:     true,
		ReconnectInterval: control.DefaultReconnectIntervalMs * time.Millisecond,
		ConnectTimeout:    control.DefaultConnectTimeoutMs * time.Millisecond,
		ReadTimeout:       control.DefaultReadTimeoutMs * time.Millisecond,
		WriteTimeout:      control.DefaultWriteTimeoutMs * time.Millisecond,
		NoDelay:           true,
		ActionQueueSize:   1024,
	}
}

// ConfigFromSpec converts a declarative client entry, filling defaults.
func ConfigFromSpec(s control.ClientSpec) Config {
	d := DefaultConfig()
	ms := func(v, def int) time.Duration {
		return time.Duration(control.IntOr(v, def)) * time.Millisecond
	}
	cfg := Config{
		Name:                s.Name,
		Address:             s.Address,
		Port:                s.PortOr(d.Port),
		ConnectOnStart:      control.BoolOr(s.ConnectOnStart, d.ConnectOnStart),
		AutoReconnect:       control.BoolOr(s.AutoReconnect, d.AutoReconnect),
		ReconnectInterval:   ms(s.ReconnectIntervalMs, control.DefaultReconnectIntervalMs),
		ReconnectBackoffMax: time.Duration(s.ReconnectBackoffMaxMs) * time.Millisecond,
		ConnectTimeout:      ms(s.ConnectTimeoutMs, control.DefaultConnectTimeoutMs),
		ReadTimeout:         ms(s.ReadTimeoutMs, control.DefaultReadTimeoutMs),
		WriteTimeout:        ms(s.WriteTimeoutMs, control.DefaultWriteTimeoutMs),
		NoDelay:             control.BoolOr(s.NoDelay, d.NoDelay),
		AllowFailureOnInit:  s.AllowFailureOnInit,
		EnableLogging:       s.EnableLogging,
		ActionQueueSize:     d.ActionQueueSize,
	}
	if cfg.Address == "" {
		cfg.Address = d.Address
	}
	return cfg
}
