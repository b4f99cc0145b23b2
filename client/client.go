// File: client/client.go
// Package client provides a reconnecting TCP client driven by a Poller.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The client is a state machine over {Disconnected, Connecting, Connected}.
// All of its state is owned by the poller goroutine: control requests from
// other goroutines are queued as actions and applied at the start of Work.
// Every timed operation (connect, write, read) is bounded by a stopwatch
// checked once per tick; exceeding it follows the transport error path.

package client

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/internal/concurrency"
	"github.com/momentics/hioload-sock/internal/signal"
	"github.com/momentics/hioload-sock/internal/transport"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

var _ api.Adapter = (*Client)(nil)

// State is the connection state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is an outbound TCP endpoint.
type Client struct {
	cfg     Config
	addr    string
	poller  api.Poller
	ioc     api.IOContext
	dialer  *net.Dialer
	logger  *zap.Logger
	metrics *control.Metrics

	actions  *concurrency.LockFreeQueue[func()]
	outbound *concurrency.Fifo[api.Packet]
	mirror   atomic.Int32
	started  atomic.Bool

	// Owned by the poller goroutine.
	state      State
	logging    bool
	stopped    bool
	sock       *transport.Socket
	gen        uint64
	cancelDial context.CancelFunc
	writing    bool
	reading    bool

	connectTimer   concurrency.Stopwatch
	writeTimer     concurrency.Stopwatch
	readTimer      concurrency.Stopwatch
	reconnectTimer concurrency.Stopwatch
	reconnectDelay time.Duration
	backoff        *backoff.Backoff

	onConnected    signal.Signal[func()]
	onDisconnected signal.Signal[func()]
	onData         signal.Signal[func(api.Packet)]
	onPostProcess  signal.Signal[func()]
}

// New creates a client bound to poller. Nothing happens until Start.
func New(poller api.Poller, cfg Config, opts ...Option) *Client {
	if cfg.ActionQueueSize <= 0 {
		cfg.ActionQueueSize = DefaultConfig().ActionQueueSize
	}
	c := &Client{
		cfg:            cfg,
		addr:           net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		poller:         poller,
		ioc:            poller.IOContext(),
		dialer:         &net.Dialer{},
		logger:         zap.NewNop(),
		actions:        concurrency.NewLockFreeQueue[func()](cfg.ActionQueueSize),
		outbound:       concurrency.NewFifo[api.Packet](),
		logging:        cfg.EnableLogging,
		connectTimer:   concurrency.NewStopwatch(),
		writeTimer:     concurrency.NewStopwatch(),
		readTimer:      concurrency.NewStopwatch(),
		reconnectTimer: concurrency.NewStopwatch(),
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectInterval,
			Max:    max(cfg.ReconnectBackoffMax, cfg.ReconnectInterval),
			Factor: 2,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("source", cfg.Name))
	return c
}

// Name returns the configured endpoint name.
func (c *Client) Name() string { return c.cfg.Name }

// Addr returns the remote host:port.
func (c *Client) Addr() string { return c.addr }

// State returns the current state; safe from any goroutine.
func (c *Client) State() State { return State(c.mirror.Load()) }

// IsConnected reports whether the client is Connected.
func (c *Client) IsConnected() bool { return c.State() == Connected }

// IsConnecting reports whether a connect attempt is in progress.
func (c *Client) IsConnecting() bool { return c.State() == Connecting }

// Pending returns the number of queued outbound packets.
func (c *Client) Pending() int { return c.outbound.Len() }

// Start validates the remote address, registers with the poller and, if
// configured, schedules the first connect. A stopped client may be started
// again.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	c.poller.Exclusive(func() { c.stopped = false })
	if _, err := net.ResolveTCPAddr("tcp", c.addr); err != nil {
		if _, fatal := c.ClassifyError(err); fatal != nil {
			c.started.Store(false)
			return adapters.StartupError(api.ErrCodeResolve, "resolve", fatal).
				WithContext("endpoint", c.addr)
		}
	}
	c.poller.Register(c)
	if c.cfg.ConnectOnStart {
		return c.Connect()
	}
	return nil
}

// Stop deregisters from the poller, closes the socket and drops pending
// actions and packets. Must not be called from an observer.
func (c *Client) Stop() {
	if !c.started.Load() {
		return
	}
	c.poller.Deregister(c)
	c.poller.Exclusive(func() {
		c.actions.Drain(func(func()) {})
		c.closeSocket()
		c.reconnectTimer.Reset()
		c.setState(Disconnected)
		c.stopped = true
		if n := c.outbound.Clear(); n > 0 {
			c.logInfo("dropped queued packets on stop", zap.Int("packets", n))
		}
	})
	c.started.Store(false)
}

// ClassifyError decides whether a startup error is fatal.
func (c *Client) ClassifyError(err error) (bool, error) {
	return adapters.ClassifyStartupError(err, c.cfg.AllowFailureOnInit, c.logger)
}

// Connect schedules a connect attempt. It is a no-op while Connecting or
// Connected.
func (c *Client) Connect() error { return c.post(c.connect) }

// Disconnect schedules closing the connection. Auto-reconnect stays idle
// until the next Connect.
func (c *Client) Disconnect() error { return c.post(c.disconnect) }

// EnableLogging toggles info and error lines of this client.
func (c *Client) EnableLogging(on bool) error {
	return c.post(func() { c.logging = on })
}

// Send queues p for transmission. Packets are accepted only while
// Connected; otherwise p is dropped and ErrNotConnected returned.
func (c *Client) Send(p api.Packet) error {
	if c.State() != Connected {
		c.metrics.PacketDropped(c.cfg.Name)
		return api.ErrNotConnected
	}
	c.outbound.Push(p)
	return nil
}

// OnConnected registers fn for the connected notification.
func (c *Client) OnConnected(fn func()) signal.Token {
	tok := signal.NewToken()
	c.subscribe(func() { c.onConnected.Connect(tok, fn) })
	return tok
}

// OnDisconnected registers fn for the disconnected notification.
func (c *Client) OnDisconnected(fn func()) signal.Token {
	tok := signal.NewToken()
	c.subscribe(func() { c.onDisconnected.Connect(tok, fn) })
	return tok
}

// OnDataReceived registers fn for every non-empty received chunk.
func (c *Client) OnDataReceived(fn func(api.Packet)) signal.Token {
	tok := signal.NewToken()
	c.subscribe(func() { c.onData.Connect(tok, fn) })
	return tok
}

// OnPostProcess registers fn to run at the end of every Work call.
func (c *Client) OnPostProcess(fn func()) signal.Token {
	tok := signal.NewToken()
	c.subscribe(func() { c.onPostProcess.Connect(tok, fn) })
	return tok
}

// Unsubscribe removes the observer registered under tok.
func (c *Client) Unsubscribe(tok signal.Token) {
	c.subscribe(func() {
		_ = c.onConnected.Disconnect(tok) ||
			c.onDisconnected.Disconnect(tok) ||
			c.onData.Disconnect(tok) ||
			c.onPostProcess.Disconnect(tok)
	})
}

// Work advances the state machine. Called by the poller once per tick.
func (c *Client) Work() {
	c.actions.Drain(func(fn func()) { fn() })
	if c.stopped {
		return
	}

	switch c.state {
	case Connected:
		c.workConnected()
	case Disconnected:
		if c.cfg.AutoReconnect && c.reconnectTimer.Running() &&
			c.reconnectTimer.Elapsed() >= c.reconnectDelay {
			c.logInfo("reconnecting", zap.String("endpoint", c.addr))
			c.connect()
		}
	case Connecting:
		if c.connectTimer.Exceeded(c.cfg.ConnectTimeout) {
			c.metrics.Timeout(c.cfg.Name, "connect")
			c.logError("connect attempt abandoned", api.TimeoutError("connect"))
			c.closeSocket()
			c.setState(Disconnected)
			c.startReconnect()
		}
	}

	c.onPostProcess.Each(func(fn func()) { fn() })
}

func (c *Client) workConnected() {
	available := 0
	if !c.reading {
		n, err := c.sock.Available()
		if c.handleError(err) {
			return
		}
		available = n
	}

	if !c.writing {
		if p, ok := c.outbound.Pop(); ok {
			c.write(p)
		}
	} else if c.writeTimer.Exceeded(c.cfg.WriteTimeout) {
		c.metrics.Timeout(c.cfg.Name, "write")
		c.handleError(api.TimeoutError("write"))
		return
	}

	if c.reading {
		if c.readTimer.Exceeded(c.cfg.ReadTimeout) {
			c.metrics.Timeout(c.cfg.Name, "read")
			c.handleError(api.TimeoutError("read"))
		}
		return
	}
	if available > 0 {
		c.read(available)
	}
}

func (c *Client) write(p api.Packet) {
	gen := c.gen
	c.writing = true
	c.writeTimer.Start()
	transport.Write(c.ioc, c.sock, [][]byte{p.Bytes()}, func(n int64, err error) {
		if gen != c.gen {
			return
		}
		c.writing = false
		c.writeTimer.Reset()
		if c.handleError(err) {
			return
		}
		c.metrics.BytesSent(c.cfg.Name, int(n))
	})
}

func (c *Client) read(n int) {
	gen := c.gen
	bb := bytebufferpool.Get()
	if cap(bb.B) < n {
		bb.B = make([]byte, n)
	}
	bb.B = bb.B[:n]
	c.reading = true
	c.readTimer.Start()
	transport.ReadFull(c.ioc, c.sock, bb.B, func(m int, err error) {
		pkt := api.NewPacket(bb.B[:m])
		bytebufferpool.Put(bb)
		if gen != c.gen {
			return
		}
		c.reading = false
		c.readTimer.Reset()
		if c.handleError(err) {
			return
		}
		c.metrics.BytesReceived(c.cfg.Name, m)
		if !pkt.IsEmpty() {
			c.onData.Each(func(fn func(api.Packet)) { fn(pkt) })
		}
	})
}

func (c *Client) connect() {
	if c.state != Disconnected {
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.reconnectTimer.Reset()
	c.setState(Connecting)
	c.connectTimer.Start()
	transport.Connect(c.ioc, ctx, c.dialer, c.addr, func(s *transport.Socket, err error) {
		c.handleConnect(gen, s, err)
	})
}

func (c *Client) handleConnect(gen uint64, s *transport.Socket, err error) {
	if gen != c.gen || c.state != Connecting {
		if s != nil {
			_ = s.Close()
		}
		return
	}
	c.cancelDial()
	c.cancelDial = nil
	c.connectTimer.Reset()

	if err != nil {
		c.logError("connect failed", err)
		c.setState(Disconnected)
		c.startReconnect()
		return
	}
	if err := s.SetNoDelay(c.cfg.NoDelay); err != nil {
		c.logError("set no-delay", err)
	}
	c.sock = s
	c.setState(Connected)
	c.reconnectTimer.Reset()
	c.backoff.Reset()
	c.metrics.Connected(c.cfg.Name)
	c.logInfo("connected", zap.String("endpoint", c.addr))
	c.onConnected.Each(func(fn func()) { fn() })
}

func (c *Client) disconnect() {
	wasConnected := c.state == Connected
	c.closeSocket()
	c.reconnectTimer.Reset()
	c.setState(Disconnected)
	if wasConnected {
		c.metrics.Disconnected(c.cfg.Name)
		c.logInfo("disconnected on request")
		c.onDisconnected.Each(func(fn func()) { fn() })
	}
}

// handleError reports whether err is non-nil. While Connected, an error
// closes the socket, schedules a reconnect and emits disconnected; in any
// other state it belongs to an abandoned operation and is ignored.
func (c *Client) handleError(err error) bool {
	if err == nil {
		return false
	}
	if c.state != Connected {
		return true
	}
	c.logError("connection lost", err)
	c.closeSocket()
	c.setState(Disconnected)
	c.startReconnect()
	c.metrics.Disconnected(c.cfg.Name)
	c.onDisconnected.Each(func(fn func()) { fn() })
	return true
}

// closeSocket abandons every in-flight operation of the current socket.
func (c *Client) closeSocket() {
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.sock != nil {
		if err := c.sock.Close(); err != nil {
			c.logError("close", err)
		}
		c.sock = nil
	}
	c.writing = false
	c.reading = false
	c.connectTimer.Reset()
	c.writeTimer.Reset()
	c.readTimer.Reset()
}

func (c *Client) startReconnect() {
	if !c.cfg.AutoReconnect {
		return
	}
	c.reconnectDelay = 0
	if c.cfg.ReconnectInterval > 0 {
		c.reconnectDelay = c.backoff.Duration()
	}
	c.reconnectTimer.Start()
}

func (c *Client) setState(s State) {
	c.state = s
	c.mirror.Store(int32(s))
}

func (c *Client) post(fn func()) error {
	if !c.actions.Enqueue(fn) {
		return api.ErrQueueFull
	}
	return nil
}

func (c *Client) subscribe(fn func()) {
	if err := c.post(fn); err != nil {
		c.logger.Warn("observer change dropped", zap.Error(err))
	}
}

func (c *Client) logInfo(msg string, fields ...zap.Field) {
	if c.logging {
		c.logger.Info(msg, fields...)
	}
}

func (c *Client) logError(msg string, err error) {
	if c.logging {
		c.logger.Error(msg, zap.Error(err))
	}
}
