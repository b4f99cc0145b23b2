// File: cmd/hiosock/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// "run" hosts every endpoint of a configuration document under an fx
// lifecycle and exposes Prometheus metrics and debug probes over HTTP.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/facade"
	"github.com/momentics/hioload-sock/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	runConfigPath   string
	runMetricsAddr  string
	runUpdatePeriod time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pollers, servers and clients declared in a configuration file",
	Long: `Run loads a YAML document declaring pollers, servers and clients,
starts them in order and stops them in reverse order on SIGINT/SIGTERM.

Example:
  hiosock run --config hiosock.yaml --metrics-addr :9100`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := control.Load(runConfigPath)
		if err != nil {
			return err
		}
		if runMetricsAddr != "" {
			cfg.Metrics.Enable = true
			cfg.Metrics.Addr = runMetricsAddr
		}

		app := fx.New(
			fx.NopLogger,
			fx.Supply(cfg),
			fx.Provide(
				provideLogger,
				provideRegistry,
				provideMetrics,
				provideProbes,
				provideService,
			),
			fx.Invoke(registerHooks),
		)

		startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return err
		}

		select {
		case <-cmd.Context().Done():
		case <-app.Done():
		}

		stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancelStop()
		return app.Stop(stopCtx)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "configuration file (default: ./hiosock.yaml or $HIOSOCK_CONFIG)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics and /debug/state on this address")
	runCmd.Flags().DurationVar(&runUpdatePeriod, "update-period", time.Millisecond, "tick period for external-loop pollers")
}

func provideLogger(cfg *control.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) (*control.Metrics, error) {
	return control.NewMetrics(reg)
}

func provideProbes() *control.DebugProbes {
	dp := control.NewDebugProbes()
	control.RegisterRuntimeProbes(dp)
	return dp
}

func provideService(cfg *control.Config, logger *zap.Logger, m *control.Metrics, dp *control.DebugProbes) (*facade.Service, error) {
	return facade.New(*cfg,
		facade.WithLogger(logger),
		facade.WithMetrics(m),
		facade.WithProbes(dp),
	)
}

type hookParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *control.Config
	Logger    *zap.Logger
	Service   *facade.Service
	Registry  *prometheus.Registry
	Probes    *control.DebugProbes
}

func registerHooks(p hookParams) {
	driver := newUpdateDriver(p.Service, runUpdatePeriod)
	var httpSrv *http.Server

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Service.Start(ctx); err != nil {
				return err
			}
			driver.start()
			if p.Config.Metrics.Enable {
				ln, err := net.Listen("tcp", p.Config.Metrics.Addr)
				if err != nil {
					driver.stop()
					_ = p.Service.Stop(ctx)
					return err
				}
				httpSrv = &http.Server{Handler: diagnosticsMux(p.Registry, p.Probes), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						p.Logger.Error("metrics server", zap.Error(err))
					}
				}()
				p.Logger.Info("metrics listening", zap.Stringer("addr", ln.Addr()))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			driver.stop()
			var errs []error
			if httpSrv != nil {
				errs = append(errs, httpSrv.Shutdown(ctx))
			}
			errs = append(errs, p.Service.Stop(ctx))
			_ = p.Logger.Sync()
			return errors.Join(errs...)
		},
	})
}

func diagnosticsMux(reg *prometheus.Registry, dp *control.DebugProbes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dp.DumpState())
	})
	return mux
}

// updateDriver plays the host loop for external-loop pollers.
type updateDriver struct {
	svc    *facade.Service
	period time.Duration
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newUpdateDriver(svc *facade.Service, period time.Duration) *updateDriver {
	if period <= 0 {
		period = time.Millisecond
	}
	return &updateDriver{svc: svc, period: period, quit: make(chan struct{})}
}

func (d *updateDriver) start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTicker(d.period)
		defer t.Stop()
		for {
			select {
			case <-d.quit:
				return
			case <-t.C:
				d.svc.Update()
			}
		}
	}()
}

func (d *updateDriver) stop() {
	d.once.Do(func() { close(d.quit) })
	d.wg.Wait()
}
