// File: cmd/hiosock/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"time"

	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveBind string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server that returns every received packet to its sender",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := cliLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		poller := adapters.NewPoller(adapters.PollerConfig{
			Name:         "serve",
			Mode:         api.OwnThread,
			TickInterval: time.Millisecond,
		}, adapters.WithLogger(logger))

		cfg := server.DefaultConfig()
		cfg.Name = "echo"
		cfg.Address = serveBind
		cfg.Port = servePort
		cfg.EnableLogging = true
		srv := server.NewServer(poller, cfg, server.WithLogger(logger))

		srv.OnPacketReceived(func(id string, p api.Packet) {
			_ = srv.Send(id, p)
		})

		if err := poller.Start(); err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			poller.Stop()
			return err
		}
		logger.Info("echo server ready", zap.Stringer("addr", srv.Addr()))

		<-cmd.Context().Done()
		srv.Stop()
		poller.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "local address to bind (empty: every interface)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", server.DefaultConfig().Port, "port to listen on")
}
