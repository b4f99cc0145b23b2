// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "github.com/momentics/hioload-sock/control"

// Config holds the options of a Server.
type Config struct {
	Name string
	// Address is the local address to bind; empty binds every interface.
	Address string
	// Port to listen on; zero picks a free port (see Server.Addr).
	Port int

	NoDelay            bool
	AllowFailureOnInit bool
	EnableLogging      bool

	ActionQueueSize int
}

// DefaultConfig listens on every interface at port 13251.
func DefaultConfig() Config {
	return Config{
		Name:            "server",
		Port:            control.DefaultPort,
		NoDelay:         true,
		ActionQueueSize: 1024,
	}
}

// ConfigFromSpec converts a declarative server entry, filling defaults.
func ConfigFromSpec(s control.ServerSpec) Config {
	d := DefaultConfig()
	return Config{
		Name:               s.Name,
		Address:            s.Address,
		Port:               s.PortOr(d.Port),
		NoDelay:            control.BoolOr(s.NoDelay, d.NoDelay),
		AllowFailureOnInit: s.AllowFailureOnInit,
		EnableLogging:      s.EnableLogging,
		ActionQueueSize:    d.ActionQueueSize,
	}
}
