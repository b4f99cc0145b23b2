// Package api
// Author: momentics
//
// Poll-mode scheduling contracts: a Poller ticks every registered Adapter once
// per tick and then drains its I/O context.

package api

import "fmt"

// Adapter is a unit of periodic work driven by a Poller.
// Start and Stop are called by the owner; Work is called by the poller once
// per tick, always from the poller's goroutine.
type Adapter interface {
	// Start resolves configuration, registers with the poller and begins I/O.
	Start() error

	// Stop deregisters from the poller and releases sockets.
	// Must not be called from inside a tick of the same poller.
	Stop()

	// Work makes progress without blocking.
	Work()

	// ClassifyError decides whether err is fatal to initialization.
	// It reports whether an error was present and, if it is fatal, the
	// failure to propagate.
	ClassifyError(err error) (present bool, fatal error)
}

// Poller represents a poll-mode scheduler for adapters.
type Poller interface {
	// Register adds an adapter; safe from any goroutine.
	Register(a Adapter)

	// Deregister removes an adapter; safe from any goroutine.
	Deregister(a Adapter)

	// Exclusive runs fn while no tick is in progress, so fn may touch adapter
	// state owned by the poller goroutine. Must not be called from a tick.
	Exclusive(fn func())

	// Tick runs Work on every adapter in registration order, then drains
	// ready completions from the I/O context.
	Tick()

	// IOContext returns the execution context adapters issue I/O against.
	IOContext() IOContext
}

// DrivingMode selects who calls Tick.
type DrivingMode int

const (
	// OwnThread spawns a dedicated goroutine that ticks until stopped.
	OwnThread DrivingMode = iota
	// ExternalLoop expects the host loop to tick once per frame.
	ExternalLoop
	// Manual ticks only when the caller invokes ManualTick.
	Manual
)

func (m DrivingMode) String() string {
	switch m {
	case OwnThread:
		return "own_thread"
	case ExternalLoop:
		return "external_loop"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseDrivingMode maps a configuration value onto a DrivingMode.
func ParseDrivingMode(s string) (DrivingMode, error) {
	switch s {
	case "own_thread", "ownthread", "thread":
		return OwnThread, nil
	case "external_loop", "externalloop", "main_thread", "":
		return ExternalLoop, nil
	case "manual":
		return Manual, nil
	default:
		return 0, fmt.Errorf("%w: driving mode %q", ErrInvalidArgument, s)
	}
}
