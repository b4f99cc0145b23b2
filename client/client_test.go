package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func manualPoller(t *testing.T) *adapters.Poller {
	t.Helper()
	p := adapters.NewPoller(adapters.PollerConfig{Name: t.Name(), Mode: api.Manual})
	require.NoError(t, p.Start())
	return p
}

func tickUntil(t *testing.T, p *adapters.Poller, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		p.ManualTick()
		time.Sleep(time.Millisecond)
	}
}

func tickFor(p *adapters.Poller, d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
		p.ManualTick()
		time.Sleep(time.Millisecond)
	}
}

func testConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Name = "test-client"
	cfg.Address = "127.0.0.1"
	cfg.Port = port
	cfg.ReconnectInterval = 100 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	return cfg
}

// peer is a raw TCP listener that hands accepted connections to the test.
type peer struct {
	ln       *net.TCPListener
	accepted chan net.Conn
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    []net.Conn
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	pr := &peer{ln: ln, accepted: make(chan net.Conn, 16), done: make(chan struct{})}
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			pr.mu.Lock()
			pr.conns = append(pr.conns, c)
			pr.mu.Unlock()
			pr.accepted <- c
		}
	}()
	t.Cleanup(pr.close)
	return pr
}

func (pr *peer) port() int { return pr.ln.Addr().(*net.TCPAddr).Port }

func (pr *peer) close() {
	close(pr.done)
	_ = pr.ln.Close()
	pr.mu.Lock()
	for _, c := range pr.conns {
		_ = c.Close()
	}
	pr.mu.Unlock()
	pr.wg.Wait()
}

func (pr *peer) next() (net.Conn, bool) {
	select {
	case c := <-pr.accepted:
		return c, true
	default:
		return nil, false
	}
}

func TestClientServerPing(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	scfg := server.DefaultConfig()
	scfg.Address = "127.0.0.1"
	scfg.Port = 0
	srv := server.NewServer(p, scfg)
	var serverID string
	received := map[string]string{}
	srv.OnSocketConnected(func(id string) { serverID = id })
	srv.OnPacketReceived(func(id string, pk api.Packet) { received[id] += pk.String() })
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := New(p, testConfig(srv.Addr().(*net.TCPAddr).Port))
	connected := 0
	var reply strings.Builder
	c.OnConnected(func() { connected++ })
	c.OnDataReceived(func(pk api.Packet) { reply.WriteString(pk.String()) })
	require.NoError(t, c.Start())
	require.ErrorIs(t, c.Start(), api.ErrAlreadyStarted)
	defer c.Stop()

	tickUntil(t, p, func() bool {
		return c.IsConnected() && srv.ConnectionCount() == 1 && serverID != ""
	})
	require.Equal(t, 1, connected)
	require.Equal(t, []string{serverID}, srv.GetConnectedClientIDs())

	require.NoError(t, c.Send(api.PacketFromString("PING")))
	tickUntil(t, p, func() bool { return received[serverID] == "PING" })

	require.NoError(t, srv.Send(serverID, api.PacketFromString("PONG")))
	tickUntil(t, p, func() bool { return reply.String() == "PONG" })
}

func TestSendPreservesOrder(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	var want strings.Builder
	packets := make([]api.Packet, 200)
	for i := range packets {
		s := fmt.Sprintf("msg-%03d;", i)
		want.WriteString(s)
		packets[i] = api.PacketFromString(s)
	}

	got := make(chan string, 1)
	go func() {
		var conn net.Conn
		select {
		case conn = <-pr.accepted:
		case <-pr.done:
			return
		}
		buf := make([]byte, want.Len())
		if _, err := io.ReadFull(conn, buf); err != nil {
			got <- err.Error()
			return
		}
		got <- string(buf)
	}()

	c := New(p, testConfig(pr.port()))
	require.NoError(t, c.Start())
	defer c.Stop()
	tickUntil(t, p, c.IsConnected)

	for _, pk := range packets {
		require.NoError(t, c.Send(pk))
	}
	var result string
	tickUntil(t, p, func() bool {
		select {
		case result = <-got:
			return true
		default:
			return false
		}
	})
	require.Equal(t, want.String(), result)
	require.Zero(t, c.Pending())
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	cfg := testConfig(1)
	cfg.ConnectOnStart = false
	c := New(p, cfg)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.ErrorIs(t, c.Send(api.PacketFromString("x")), api.ErrNotConnected)
	tickFor(p, 20*time.Millisecond)
	require.Equal(t, Disconnected, c.State())
	require.Zero(t, c.Pending())
}

func TestReconnectAfterPeerClose(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	cfg := testConfig(pr.port())
	cfg.ReconnectInterval = 200 * time.Millisecond
	c := New(p, cfg)

	var reconnectedAt time.Time
	connected, disconnected := 0, 0
	c.OnConnected(func() {
		connected++
		if connected == 2 {
			reconnectedAt = time.Now()
		}
	})
	c.OnDisconnected(func() { disconnected++ })
	require.NoError(t, c.Start())
	defer c.Stop()

	var first net.Conn
	tickUntil(t, p, func() bool {
		if first == nil {
			first, _ = pr.next()
		}
		return c.IsConnected() && first != nil
	})
	closedAt := time.Now()
	require.NoError(t, first.Close())

	tickUntil(t, p, func() bool { return disconnected == 1 })
	require.Equal(t, Disconnected, c.State())

	tickUntil(t, p, func() bool { return connected == 2 })
	gap := reconnectedAt.Sub(closedAt)
	require.GreaterOrEqual(t, gap, cfg.ReconnectInterval)
	require.Less(t, gap, cfg.ReconnectInterval+time.Second)
	require.Equal(t, 1, disconnected)
}

func TestConnectTimeout(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	cfg := testConfig(1)
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.ReconnectInterval = 100 * time.Millisecond
	stalled := &net.Dialer{
		ControlContext: func(ctx context.Context, _, _ string, _ syscall.RawConn) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c := New(p, cfg, WithDialer(stalled))
	events := 0
	c.OnConnected(func() { events++ })
	c.OnDisconnected(func() { events++ })
	began := time.Now()
	require.NoError(t, c.Start())
	defer c.Stop()

	tickUntil(t, p, c.IsConnecting)
	tickUntil(t, p, func() bool { return c.State() == Disconnected })
	require.GreaterOrEqual(t, time.Since(began), cfg.ConnectTimeout)

	tickUntil(t, p, c.IsConnecting)
	require.Zero(t, events)
}

func TestConnectRefusedSchedulesReconnect(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := testConfig(port)
	cfg.ReconnectInterval = 50 * time.Millisecond
	c := New(p, cfg)
	attempts := 0
	c.OnPostProcess(func() {
		if c.IsConnecting() {
			attempts++
		}
	})
	require.NoError(t, c.Start())
	defer c.Stop()

	tickUntil(t, p, func() bool { return attempts > 0 && c.State() == Disconnected })
	first := attempts
	tickUntil(t, p, func() bool { return attempts > first })
	require.False(t, c.IsConnected())
}

func TestWriteTimeoutDisconnectsAndReconnects(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	cfg := testConfig(pr.port())
	cfg.WriteTimeout = 50 * time.Millisecond
	cfg.ReconnectInterval = 100 * time.Millisecond
	c := New(p, cfg)

	connected, disconnected := 0, 0
	var backAt time.Time
	c.OnConnected(func() {
		connected++
		backAt = time.Now()
	})
	c.OnDisconnected(func() { disconnected++ })
	require.NoError(t, c.Start())
	defer c.Stop()

	tickUntil(t, p, c.IsConnected)
	sentAt := time.Now()
	require.NoError(t, c.Send(api.WrapPacket(make([]byte, 64<<20))))

	tickUntil(t, p, func() bool { return disconnected == 1 })
	require.GreaterOrEqual(t, time.Since(sentAt), cfg.WriteTimeout)
	require.Equal(t, Disconnected, c.State())

	tickUntil(t, p, func() bool { return connected == 2 })
	require.GreaterOrEqual(t, backAt.Sub(sentAt), cfg.WriteTimeout+cfg.ReconnectInterval)
}

func TestReadTimeoutDisconnects(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	cfg := testConfig(pr.port())
	cfg.ReadTimeout = 50 * time.Millisecond
	cfg.ReconnectInterval = 100 * time.Millisecond
	c := New(p, cfg)

	connected, disconnected := 0, 0
	var backAt time.Time
	c.OnConnected(func() {
		connected++
		backAt = time.Now()
	})
	c.OnDisconnected(func() { disconnected++ })
	require.NoError(t, c.Start())
	defer c.Stop()

	tickUntil(t, p, c.IsConnected)
	var remote net.Conn
	tickUntil(t, p, func() bool {
		var ok bool
		remote, ok = pr.next()
		return ok
	})
	_, err := remote.Write([]byte("late"))
	require.NoError(t, err)

	// Run the adapter without draining completions so the read stays in flight.
	deadline := time.Now().Add(5 * time.Second)
	for !c.reading {
		require.False(t, time.Now().After(deadline), "read never issued")
		c.Work()
		time.Sleep(time.Millisecond)
	}
	time.Sleep(2 * cfg.ReadTimeout)
	lostAt := time.Now()
	c.Work()
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, 1, disconnected)

	_, err = p.IOContext().Poll()
	require.NoError(t, err)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, 1, disconnected)

	tickUntil(t, p, func() bool { return connected == 2 })
	require.GreaterOrEqual(t, backAt.Sub(lostAt), cfg.ReconnectInterval)
	require.Equal(t, 1, disconnected)
}

func TestStopThenStartReconnects(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	c := New(p, testConfig(pr.port()))
	connected, disconnected := 0, 0
	c.OnConnected(func() { connected++ })
	c.OnDisconnected(func() { disconnected++ })
	require.NoError(t, c.Start())
	tickUntil(t, p, c.IsConnected)

	c.Stop()
	require.Equal(t, Disconnected, c.State())
	require.Empty(t, p.Adapters())

	require.NoError(t, c.Start())
	defer c.Stop()
	require.ErrorIs(t, c.Start(), api.ErrAlreadyStarted)
	tickUntil(t, p, func() bool { return connected == 2 })
	require.True(t, c.IsConnected())
	require.Zero(t, disconnected)

	require.NoError(t, c.Send(api.PacketFromString("again")))
	var remotes []net.Conn
	var got []byte
	tickUntil(t, p, func() bool {
		for {
			remote, ok := pr.next()
			if !ok {
				break
			}
			remotes = append(remotes, remote)
		}
		for _, remote := range remotes {
			_ = remote.SetReadDeadline(time.Now().Add(time.Millisecond))
			buf := make([]byte, 16)
			n, _ := remote.Read(buf)
			got = append(got, buf[:n]...)
		}
		return len(got) >= len("again")
	})
	require.Len(t, remotes, 2)
	require.Equal(t, "again", string(got))
}

func TestDisconnectStopsAutoReconnect(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()
	pr := newPeer(t)

	cfg := testConfig(pr.port())
	cfg.ReconnectInterval = 20 * time.Millisecond
	c := New(p, cfg)
	connected, disconnected := 0, 0
	c.OnConnected(func() { connected++ })
	c.OnDisconnected(func() { disconnected++ })
	require.NoError(t, c.Start())
	defer c.Stop()

	tickUntil(t, p, c.IsConnected)
	require.NoError(t, c.Disconnect())
	tickUntil(t, p, func() bool { return disconnected == 1 })

	tickFor(p, 5*cfg.ReconnectInterval)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, 1, connected)

	require.NoError(t, c.Connect())
	tickUntil(t, p, func() bool { return connected == 2 })
	require.Equal(t, 1, disconnected)
}

func TestObserversAndPostProcess(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	cfg := testConfig(1)
	cfg.ConnectOnStart = false
	c := New(p, cfg)
	ticks := 0
	tok := c.OnPostProcess(func() { ticks++ })
	require.NoError(t, c.Start())
	defer c.Stop()

	for i := 0; i < 3; i++ {
		p.ManualTick()
	}
	require.Equal(t, 3, ticks)

	c.Unsubscribe(tok)
	p.ManualTick()
	p.ManualTick()
	require.Equal(t, 3, ticks)
	require.Equal(t, Disconnected, c.State())
	require.NoError(t, c.EnableLogging(true))
}

func TestStartRejectsBadEndpoint(t *testing.T) {
	p := manualPoller(t)
	defer p.Stop()

	cfg := testConfig(70000)
	c := New(p, cfg)
	err := c.Start()
	require.Error(t, err)
	require.True(t, api.IsKind(err, api.KindStartup))
	require.Empty(t, p.Adapters())

	cfg.AllowFailureOnInit = true
	cfg.ConnectOnStart = false
	tolerant := New(p, cfg)
	require.NoError(t, tolerant.Start())
	require.Len(t, p.Adapters(), 1)
	tolerant.Stop()
	require.Empty(t, p.Adapters())
}

func TestConfigFromDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 13251, cfg.Port)
	require.True(t, cfg.ConnectOnStart)
	require.True(t, cfg.AutoReconnect)
	require.True(t, cfg.NoDelay)
	require.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	require.Equal(t, "127.0.0.1:13251", New(manualPollerNoStart(), cfg).Addr())
}

func manualPollerNoStart() *adapters.Poller {
	return adapters.NewPoller(adapters.PollerConfig{Mode: api.Manual})
}
