package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/facade"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsMux(t *testing.T) {
	reg := provideRegistry()
	m, err := provideMetrics(reg)
	require.NoError(t, err)
	m.Connected("edge")

	dp := control.NewDebugProbes()
	dp.RegisterProbe("client.edge.state", func() any { return "connected" })

	srv := httptest.NewServer(diagnosticsMux(reg, dp))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `hiosock_endpoint_connects_total{endpoint="edge"} 1`))

	resp, err = http.Get(srv.URL + "/debug/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, "connected", state["client.edge.state"])
}

func TestUpdateDriverTicksExternalLoopPollers(t *testing.T) {
	cfg := *control.Default()
	cfg.Pollers = []control.PollerSpec{{Name: "main", DrivingMode: "external_loop"}}
	svc, err := facade.New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	d := newUpdateDriver(svc, 0)
	d.start()
	p, ok := svc.Poller("main")
	require.True(t, ok)
	require.Eventually(t, func() bool { return p.Ticks() > 2 }, 5*time.Second, time.Millisecond)
	d.stop()
	d.stop()
}
