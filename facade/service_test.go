package facade

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/client"
	"github.com/momentics/hioload-sock/control"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func boolPtr(b bool) *bool { return &b }

func echoConfig(port int) control.Config {
	cfg := *control.Default()
	cfg.Pollers = []control.PollerSpec{
		{Name: "main", DrivingMode: "external_loop"},
		{Name: "worker", DrivingMode: "own_thread", TickIntervalMs: 1},
	}
	cfg.Servers = []control.ServerSpec{{EndpointSpec: control.EndpointSpec{
		Name: "echo", Poller: "main", Address: "127.0.0.1", Port: &port,
	}}}
	cfg.Clients = []control.ClientSpec{
		{
			EndpointSpec: control.EndpointSpec{
				Name: "probe", Poller: "main", Address: "127.0.0.1", Port: &port,
				ReconnectIntervalMs: 50,
			},
		},
		{
			EndpointSpec: control.EndpointSpec{
				Name: "idle", Poller: "worker", Address: "127.0.0.1", Port: &port,
			},
			ConnectOnStart: boolPtr(false),
		},
	}
	return cfg
}

func TestServiceEcho(t *testing.T) {
	port := freePort(t)
	probes := control.NewDebugProbes()
	metrics, err := control.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	svc, err := New(echoConfig(port), WithProbes(probes), WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	require.ErrorIs(t, svc.Start(context.Background()), api.ErrAlreadyStarted)

	srv, ok := svc.Server("echo")
	require.True(t, ok)
	c, ok := svc.Client("probe")
	require.True(t, ok)
	_, ok = svc.Client("missing")
	require.False(t, ok)
	require.Len(t, svc.Clients(), 2)
	require.Len(t, svc.Servers(), 1)

	srv.OnPacketReceived(func(id string, p api.Packet) { _ = srv.Send(id, p) })
	var reply string
	c.OnDataReceived(func(p api.Packet) { reply += p.String() })

	update := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !cond() {
			require.False(t, time.Now().After(deadline), "condition not met in time")
			svc.Update()
			time.Sleep(time.Millisecond)
		}
	}
	update(func() bool { return c.IsConnected() && srv.ConnectionCount() == 1 })
	require.NoError(t, c.Send(api.PacketFromString("hello")))
	update(func() bool { return reply == "hello" })

	state := probes.DumpState()
	require.Equal(t, "connected", state["client.probe.state"])
	require.Equal(t, "disconnected", state["client.idle.state"])
	require.Equal(t, 1, state["server.echo.connections"])

	worker, ok := svc.Poller("worker")
	require.True(t, ok)
	require.Eventually(t, func() bool { return worker.Ticks() > 0 }, 5*time.Second, time.Millisecond)
	idle, _ := svc.Client("idle")
	require.Equal(t, client.Disconnected, idle.State())

	require.NoError(t, svc.Shutdown())
	require.NoError(t, svc.Stop(context.Background()))
	mainPoller, _ := svc.Poller("main")
	require.Empty(t, mainPoller.Adapters())
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := echoConfig(freePort(t))
	cfg.Clients[0].Poller = "nowhere"
	_, err := New(cfg)
	require.Error(t, err)
	require.True(t, api.IsKind(err, api.KindStartup))
	require.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestServiceStartRollsBack(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := echoConfig(busy.Addr().(*net.TCPAddr).Port)
	svc, err := New(cfg)
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	require.True(t, api.IsKind(err, api.KindStartup))

	for _, name := range []string{"main", "worker"} {
		p, ok := svc.Poller(name)
		require.True(t, ok)
		require.Empty(t, p.Adapters())
		require.ErrorIs(t, p.Start(), api.ErrContextClosed)
	}
	require.NoError(t, svc.Stop(context.Background()))
}

func TestServiceStartHonoursCancelledContext(t *testing.T) {
	svc, err := New(echoConfig(freePort(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Start(ctx), context.Canceled)
}
