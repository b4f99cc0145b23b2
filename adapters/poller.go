// File: adapters/poller.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poller owns one I/O context and a registry of adapters, and ticks them in
// registration order. It can run on its own goroutine, be ticked by a host
// loop, or be ticked manually.

package adapters

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/internal/concurrency"
	"github.com/momentics/hioload-sock/reactor"
	"go.uber.org/zap"
)

var _ api.Poller = (*Poller)(nil)

// PollerConfig configures a Poller.
type PollerConfig struct {
	Name string
	Mode api.DrivingMode
	// TickInterval is the pause between ticks in OwnThread mode.
	TickInterval time.Duration
}

// DefaultPollerConfig returns an own-thread poller ticking every millisecond.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Name:         "poller",
		Mode:         api.OwnThread,
		TickInterval: time.Millisecond,
	}
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithLogger sets the logger used for infrastructure errors.
func WithLogger(l *zap.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics enables tick metrics.
func WithMetrics(m *control.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// Poller is the cooperative scheduler shared by clients and servers.
type Poller struct {
	cfg     PollerConfig
	ioc     *reactor.IOContext
	logger  *zap.Logger
	metrics *control.Metrics

	mu       sync.Mutex
	adapters []api.Adapter

	loop    *concurrency.EventLoop
	started atomic.Bool
	stopped atomic.Bool
	ticks   atomic.Uint64
}

// NewPoller creates a stopped poller.
func NewPoller(cfg PollerConfig, opts ...PollerOption) *Poller {
	if cfg.Name == "" {
		cfg.Name = "poller"
	}
	p := &Poller{
		cfg:    cfg,
		ioc:    reactor.NewIOContext(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("source", cfg.Name))
	if cfg.Mode == api.OwnThread {
		p.loop = concurrency.NewEventLoop(p.Tick, cfg.TickInterval)
	}
	return p
}

// Name returns the configured name.
func (p *Poller) Name() string { return p.cfg.Name }

// Mode returns the driving mode.
func (p *Poller) Mode() api.DrivingMode { return p.cfg.Mode }

// IOContext returns the context adapters issue I/O against.
func (p *Poller) IOContext() api.IOContext { return p.ioc }

// Ticks returns the number of completed ticks.
func (p *Poller) Ticks() uint64 { return p.ticks.Load() }

// Start begins driving. OwnThread spawns the tick goroutine; the other
// modes only mark the poller as started.
func (p *Poller) Start() error {
	if p.stopped.Load() {
		return api.ErrContextClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	if p.loop != nil {
		p.loop.Start()
	}
	p.logger.Debug("poller started", zap.Stringer("mode", p.cfg.Mode))
	return nil
}

// Stop ends driving and closes the I/O context. Adapters should be stopped
// first so their blocking primitives return. Must not be called from a tick.
func (p *Poller) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if p.loop != nil {
		p.loop.Stop()
	}
	p.mu.Lock()
	p.ioc.Close()
	remaining := len(p.adapters)
	p.mu.Unlock()
	if remaining > 0 {
		p.logger.Warn("poller stopped with registered adapters", zap.Int("adapters", remaining))
	}
	p.logger.Debug("poller stopped", zap.Uint64("ticks", p.ticks.Load()))
}

// Register appends a to the registry.
func (p *Poller) Register(a api.Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapters = append(p.adapters, a)
}

// Deregister removes a from the registry. Unknown adapters are ignored.
func (p *Poller) Deregister(a api.Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.adapters {
		if cur == a {
			p.adapters = append(p.adapters[:i], p.adapters[i+1:]...)
			return
		}
	}
	p.logger.Warn("deregister of unknown adapter")
}

// Exclusive runs fn while no tick is in progress.
func (p *Poller) Exclusive(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Adapters returns a snapshot of the registry.
func (p *Poller) Adapters() []api.Adapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]api.Adapter, len(p.adapters))
	copy(out, p.adapters)
	return out
}

// Tick runs Work on every adapter, then drains ready completions.
// Drain errors are logged and never propagated.
func (p *Poller) Tick() {
	begin := time.Now()

	p.mu.Lock()
	if p.stopped.Load() {
		p.mu.Unlock()
		return
	}
	for _, a := range p.adapters {
		a.Work()
	}
	if _, err := p.ioc.Poll(); err != nil {
		p.metrics.DrainError(p.cfg.Name)
		p.logger.Error("io context drain failed", zap.Error(err))
	}
	p.mu.Unlock()

	p.ticks.Add(1)
	p.metrics.ObserveTick(p.cfg.Name, time.Since(begin))
}

// ManualTick ticks once. It only has an effect in Manual mode.
func (p *Poller) ManualTick() {
	if p.cfg.Mode != api.Manual {
		p.logger.Warn("manual tick ignored", zap.Stringer("mode", p.cfg.Mode))
		return
	}
	p.Tick()
}
