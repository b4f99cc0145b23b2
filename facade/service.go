// File: facade/service.go
// Host service for hioload-sock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Service instantiates pollers, servers and clients from a configuration
// document, starts them in order, stops them in reverse order and ticks the
// external-loop pollers on behalf of the host application.

package facade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/client"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/server"
	"go.uber.org/zap"
)

var _ api.GracefulShutdown = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables metrics on every component.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProbes publishes component state through dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(s *Service) { s.probes = dp }
}

// Service owns every component declared in a configuration document.
type Service struct {
	logger  *zap.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes

	pollers   []*adapters.Poller
	servers   []*server.Server
	clients   []*client.Client
	endpoints []api.Adapter

	byPoller map[string]*adapters.Poller
	byServer map[string]*server.Server
	byClient map[string]*client.Client

	mu               sync.Mutex
	started          bool
	startedPollers   int
	startedEndpoints int
}

// New validates cfg and builds pollers, then servers, then clients.
func New(cfg control.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		logger:   zap.NewNop(),
		byPoller: make(map[string]*adapters.Poller, len(cfg.Pollers)),
		byServer: make(map[string]*server.Server, len(cfg.Servers)),
		byClient: make(map[string]*client.Client, len(cfg.Clients)),
	}
	for _, o := range opts {
		o(s)
	}

	for _, ps := range cfg.Pollers {
		mode, err := api.ParseDrivingMode(strings.ToLower(ps.DrivingMode))
		if err != nil {
			return nil, err
		}
		p := adapters.NewPoller(adapters.PollerConfig{
			Name:         ps.Name,
			Mode:         mode,
			TickInterval: time.Duration(ps.TickIntervalMs) * time.Millisecond,
		}, adapters.WithLogger(s.logger), adapters.WithMetrics(s.metrics))
		s.pollers = append(s.pollers, p)
		s.byPoller[ps.Name] = p
	}
	for _, ss := range cfg.Servers {
		srv := server.NewServer(s.byPoller[ss.Poller], server.ConfigFromSpec(ss),
			server.WithLogger(s.logger), server.WithMetrics(s.metrics))
		s.servers = append(s.servers, srv)
		s.byServer[ss.Name] = srv
		s.endpoints = append(s.endpoints, srv)
	}
	for _, cs := range cfg.Clients {
		c := client.New(s.byPoller[cs.Poller], client.ConfigFromSpec(cs),
			client.WithLogger(s.logger), client.WithMetrics(s.metrics))
		s.clients = append(s.clients, c)
		s.byClient[cs.Name] = c
		s.endpoints = append(s.endpoints, c)
	}
	s.registerProbes()
	return s, nil
}

// Start starts pollers, then endpoints, in declaration order. On failure
// every component already started is stopped in reverse order.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return api.ErrAlreadyStarted
	}

	for _, p := range s.pollers {
		if err := ctx.Err(); err != nil {
			s.rollback()
			return err
		}
		if err := p.Start(); err != nil {
			s.rollback()
			return fmt.Errorf("start poller %s: %w", p.Name(), err)
		}
		s.startedPollers++
	}
	for _, e := range s.endpoints {
		if err := ctx.Err(); err != nil {
			s.rollback()
			return err
		}
		if err := e.Start(); err != nil {
			s.logger.Error("endpoint start failed", zap.String("source", endpointName(e)), zap.Error(err))
			s.rollback()
			return err
		}
		s.startedEndpoints++
	}
	s.started = true
	s.logger.Info("service started",
		zap.Int("pollers", len(s.pollers)),
		zap.Int("servers", len(s.servers)),
		zap.Int("clients", len(s.clients)))
	return nil
}

// Stop stops endpoints in reverse start order, then pollers.
func (s *Service) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.rollback()
	s.started = false
	s.logger.Info("service stopped")
	return nil
}

// Shutdown implements api.GracefulShutdown.
func (s *Service) Shutdown() error {
	return s.Stop(context.Background())
}

func (s *Service) rollback() {
	for i := s.startedEndpoints - 1; i >= 0; i-- {
		s.endpoints[i].Stop()
	}
	s.startedEndpoints = 0
	for i := s.startedPollers - 1; i >= 0; i-- {
		s.pollers[i].Stop()
	}
	s.startedPollers = 0
}

// Update ticks every external-loop poller once. Hosts call it once per frame.
func (s *Service) Update() {
	for _, p := range s.pollers {
		if p.Mode() == api.ExternalLoop {
			p.Tick()
		}
	}
}

// Poller looks up a poller by name.
func (s *Service) Poller(name string) (*adapters.Poller, bool) {
	p, ok := s.byPoller[name]
	return p, ok
}

// Server looks up a server by name.
func (s *Service) Server(name string) (*server.Server, bool) {
	srv, ok := s.byServer[name]
	return srv, ok
}

// Client looks up a client by name.
func (s *Service) Client(name string) (*client.Client, bool) {
	c, ok := s.byClient[name]
	return c, ok
}

// Clients returns clients in declaration order.
func (s *Service) Clients() []*client.Client { return s.clients }

// Servers returns servers in declaration order.
func (s *Service) Servers() []*server.Server { return s.servers }

func (s *Service) registerProbes() {
	if s.probes == nil {
		return
	}
	for _, p := range s.pollers {
		p := p
		s.probes.RegisterProbe("poller."+p.Name()+".ticks", func() any { return p.Ticks() })
	}
	for _, srv := range s.servers {
		srv := srv
		s.probes.RegisterProbe("server."+srv.Name()+".connections", func() any { return srv.ConnectionCount() })
	}
	for _, c := range s.clients {
		c := c
		s.probes.RegisterProbe("client."+c.Name()+".state", func() any { return c.State().String() })
	}
}

func endpointName(a api.Adapter) string {
	if n, ok := a.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}
