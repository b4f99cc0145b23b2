// File: cmd/hiosock/main.go
// Package main
// Command-line front end for hioload-sock endpoints.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-sock/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "hiosock",
	Short:         "Poll-driven TCP clients and servers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level for serve and send (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd, serveCmd, sendCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hiosock:", err)
		os.Exit(1)
	}
}

// cliLogger builds the console logger shared by serve and send.
func cliLogger() (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logLevel
	return logging.New(cfg)
}
