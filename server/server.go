// File: server/server.go
// Package server provides a multi-connection TCP server driven by a Poller.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each accepted peer gets a process-unique ID and a private outbound FIFO.
// Producers on any goroutine enqueue into the FIFOs under a read lock on
// the connection map; the poller goroutine flushes them, reads available
// bytes and removes failed connections at the start of the following tick.

package server

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/internal/concurrency"
	"github.com/momentics/hioload-sock/internal/signal"
	"github.com/momentics/hioload-sock/internal/transport"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

var _ api.Adapter = (*Server)(nil)

type conn struct {
	id       string
	sock     *transport.Socket
	outbound *concurrency.Fifo[api.Packet]
	writing  bool
	failed   bool
}

// Server is a listening TCP endpoint.
type Server struct {
	cfg     Config
	poller  api.Poller
	ioc     api.IOContext
	logger  *zap.Logger
	metrics *control.Metrics
	newID   func() string

	actions *concurrency.LockFreeQueue[func()]
	started atomic.Bool
	logging atomic.Bool

	mu    sync.RWMutex
	conns map[string]*conn
	order []*conn

	listener *net.TCPListener
	bound    net.Addr

	// Owned by the poller goroutine.
	stopped  bool
	epoch    uint64
	removals []string

	onSocketConnected    signal.Signal[func(string)]
	onSocketDisconnected signal.Signal[func(string)]
	onPacketReceived     signal.Signal[func(string, api.Packet)]
}

// NewServer creates a server bound to poller. Nothing is opened until Start.
func NewServer(poller api.Poller, cfg Config, opts ...ServerOption) *Server {
	if cfg.ActionQueueSize <= 0 {
		cfg.ActionQueueSize = DefaultConfig().ActionQueueSize
	}
	s := &Server{
		cfg:     cfg,
		poller:  poller,
		ioc:     poller.IOContext(),
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
		actions: concurrency.NewLockFreeQueue[func()](cfg.ActionQueueSize),
		conns:   make(map[string]*conn),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("source", cfg.Name))
	s.logging.Store(cfg.EnableLogging)
	return s
}

// Name returns the configured endpoint name.
func (s *Server) Name() string { return s.cfg.Name }

// Addr returns the bound address, or nil when not listening. Valid after Start.
func (s *Server) Addr() net.Addr { return s.bound }

// Start binds the listening socket, registers with the poller and issues
// the first accept. Resolution and bind failures are fatal unless the
// server allows failure on init, in which case it registers without
// listening. A stopped server may be started again. Must not be called
// from an observer.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	s.poller.Exclusive(func() { s.stopped = false })
	bind := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))

	laddr, err := net.ResolveTCPAddr("tcp", bind)
	if err != nil {
		return s.startFailed(api.ErrCodeResolve, "resolve", bind, err)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return s.startFailed(api.ErrCodeBind, "listen", bind, err)
	}
	s.listener = ln
	s.bound = ln.Addr()
	s.logInfo("listening", zap.Stringer("addr", s.bound))

	s.poller.Register(s)
	s.accept()
	return nil
}

func (s *Server) startFailed(code api.ErrorCode, op, bind string, err error) error {
	if _, fatal := s.ClassifyError(err); fatal != nil {
		s.started.Store(false)
		return adapters.StartupError(code, op, fatal).WithContext("bind", bind)
	}
	s.poller.Register(s)
	return nil
}

// Stop closes the listener and every connection. Observers are not
// notified. Must not be called from an observer.
func (s *Server) Stop() {
	if !s.started.Load() {
		return
	}
	s.poller.Deregister(s)
	s.poller.Exclusive(func() {
		s.stopped = true
		s.epoch++
		s.actions.Drain(func(func()) {})
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.logError("close listener", err)
			}
			s.listener = nil
		}
		s.bound = nil
		s.mu.Lock()
		for _, c := range s.order {
			c.failed = true
			if err := c.sock.Close(); err != nil {
				s.logError("close connection", err)
			}
		}
		s.conns = make(map[string]*conn)
		s.order = nil
		s.mu.Unlock()
		s.removals = nil
		s.metrics.SetConnections(s.cfg.Name, 0)
	})
	s.started.Store(false)
}

// ClassifyError decides whether a startup error is fatal.
func (s *Server) ClassifyError(err error) (bool, error) {
	return adapters.ClassifyStartupError(err, s.cfg.AllowFailureOnInit, s.logger)
}

// EnableLogging schedules toggling info and error lines of this server.
func (s *Server) EnableLogging(on bool) error {
	return s.post(func() { s.logging.Store(on) })
}

// Send queues p for the connection id.
func (s *Server) Send(id string, p api.Packet) error {
	s.mu.RLock()
	c, ok := s.conns[id]
	if ok {
		c.outbound.Push(p)
	}
	s.mu.RUnlock()
	if !ok {
		s.metrics.PacketDropped(s.cfg.Name)
		s.logInfo("send to unknown connection", zap.String("id", id))
		return api.ErrUnknownConnection
	}
	return nil
}

// SendToAll queues p for every known connection.
func (s *Server) SendToAll(p api.Packet) {
	s.mu.RLock()
	for _, c := range s.order {
		c.outbound.Push(p)
	}
	s.mu.RUnlock()
}

// Disconnect schedules closing the connection id. The disconnect
// notification fires as for a transport failure.
func (s *Server) Disconnect(id string) error {
	return s.post(func() {
		s.mu.RLock()
		c := s.conns[id]
		s.mu.RUnlock()
		if c != nil {
			s.fail(c, nil)
		}
	})
}

// ConnectionCount returns the number of registered connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// GetConnectedClientIDs returns connection IDs in accept order.
func (s *Server) GetConnectedClientIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.order))
	for _, c := range s.order {
		ids = append(ids, c.id)
	}
	return ids
}

// OnSocketConnected registers fn for newly accepted connections.
func (s *Server) OnSocketConnected(fn func(id string)) signal.Token {
	tok := signal.NewToken()
	s.subscribe(func() { s.onSocketConnected.Connect(tok, fn) })
	return tok
}

// OnSocketDisconnected registers fn for lost connections.
func (s *Server) OnSocketDisconnected(fn func(id string)) signal.Token {
	tok := signal.NewToken()
	s.subscribe(func() { s.onSocketDisconnected.Connect(tok, fn) })
	return tok
}

// OnPacketReceived registers fn for every non-empty received chunk.
func (s *Server) OnPacketReceived(fn func(id string, p api.Packet)) signal.Token {
	tok := signal.NewToken()
	s.subscribe(func() { s.onPacketReceived.Connect(tok, fn) })
	return tok
}

// Unsubscribe removes the observer registered under tok.
func (s *Server) Unsubscribe(tok signal.Token) {
	s.subscribe(func() {
		_ = s.onSocketConnected.Disconnect(tok) ||
			s.onSocketDisconnected.Disconnect(tok) ||
			s.onPacketReceived.Disconnect(tok)
	})
}

// Work applies pending removals, then flushes and reads every connection.
func (s *Server) Work() {
	s.actions.Drain(func(fn func()) { fn() })
	if s.stopped {
		return
	}
	s.applyRemovals()

	s.mu.RLock()
	snapshot := slices.Clone(s.order)
	s.mu.RUnlock()

	for _, c := range snapshot {
		if c.failed {
			continue
		}
		s.flush(c)
		if c.failed {
			continue
		}
		s.receive(c)
	}
}

func (s *Server) applyRemovals() {
	if len(s.removals) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range s.removals {
		delete(s.conns, id)
	}
	s.order = slices.DeleteFunc(s.order, func(c *conn) bool { return c.failed })
	n := len(s.conns)
	s.mu.Unlock()
	s.removals = s.removals[:0]
	s.metrics.SetConnections(s.cfg.Name, n)
}

// flush issues one vectored write of everything queued for c.
func (s *Server) flush(c *conn) {
	if c.writing {
		return
	}
	pkts := c.outbound.PopAll()
	if len(pkts) == 0 {
		return
	}
	bufs := make([][]byte, 0, len(pkts))
	for _, p := range pkts {
		if !p.IsEmpty() {
			bufs = append(bufs, p.Bytes())
		}
	}
	if len(bufs) == 0 {
		return
	}
	c.writing = true
	transport.Write(s.ioc, c.sock, bufs, func(n int64, err error) {
		c.writing = false
		if c.failed || s.stopped {
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		s.metrics.BytesSent(s.cfg.Name, int(n))
	})
}

// receive performs one non-blocking read of whatever is buffered.
func (s *Server) receive(c *conn) {
	n, err := c.sock.Available()
	if err != nil {
		s.fail(c, err)
		return
	}
	if n == 0 {
		return
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if cap(bb.B) < n {
		bb.B = make([]byte, n)
	}
	m, err := c.sock.Read(bb.B[:n])
	if m > 0 {
		s.metrics.BytesReceived(s.cfg.Name, m)
		pkt := api.NewPacket(bb.B[:m])
		s.onPacketReceived.Each(func(fn func(string, api.Packet)) { fn(c.id, pkt) })
	}
	if err != nil {
		s.fail(c, err)
	}
}

// fail closes c, defers its removal and notifies observers. Runs at most
// once per connection.
func (s *Server) fail(c *conn, err error) {
	if c.failed {
		return
	}
	c.failed = true
	if err != nil {
		s.logError("connection lost", err, zap.String("id", c.id))
	} else {
		s.logInfo("connection closed on request", zap.String("id", c.id))
	}
	if cerr := c.sock.Close(); cerr != nil {
		s.logError("close connection", cerr, zap.String("id", c.id))
	}
	s.removals = append(s.removals, c.id)
	s.metrics.Disconnected(s.cfg.Name)
	s.onSocketDisconnected.Each(func(fn func(string)) { fn(c.id) })
}

func (s *Server) accept() {
	epoch := s.epoch
	transport.Accept(s.ioc, s.listener, func(sock *transport.Socket, err error) {
		s.handleAccept(epoch, sock, err)
	})
}

func (s *Server) handleAccept(epoch uint64, sock *transport.Socket, err error) {
	if s.stopped || epoch != s.epoch {
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return
		}
		s.logError("accept failed", err)
		s.accept()
		return
	}

	if err := sock.SetNoDelay(s.cfg.NoDelay); err != nil {
		s.logError("set no-delay", err)
	}
	if n, err := sock.Discard(); err != nil {
		s.logError("flush on accept", err)
	} else if n > 0 {
		s.logInfo("discarded bytes buffered before accept", zap.Int("bytes", n))
	}

	c := &conn{
		id:       s.newID(),
		sock:     sock,
		outbound: concurrency.NewFifo[api.Packet](),
	}
	s.mu.Lock()
	s.conns[c.id] = c
	s.order = append(s.order, c)
	n := len(s.conns)
	s.mu.Unlock()

	s.metrics.Connected(s.cfg.Name)
	s.metrics.SetConnections(s.cfg.Name, n)
	s.logInfo("connection accepted", zap.String("id", c.id), zap.Stringer("remote", sock.RemoteAddr()))

	s.accept()
	s.onSocketConnected.Each(func(fn func(string)) { fn(c.id) })
}

func (s *Server) post(fn func()) error {
	if !s.actions.Enqueue(fn) {
		return api.ErrQueueFull
	}
	return nil
}

func (s *Server) subscribe(fn func()) {
	if err := s.post(fn); err != nil {
		s.logger.Warn("observer change dropped", zap.Error(err))
	}
}

func (s *Server) logInfo(msg string, fields ...zap.Field) {
	if s.logging.Load() {
		s.logger.Info(msg, fields...)
	}
}

func (s *Server) logError(msg string, err error, fields ...zap.Field) {
	if s.logging.Load() {
		s.logger.Error(msg, append(fields, zap.Error(err))...)
	}
}
