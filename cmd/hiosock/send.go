// File: cmd/hiosock/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-sock/adapters"
	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/client"
	"github.com/spf13/cobra"
)

var (
	sendEndpoint string
	sendPort     int
	sendMessage  string
	sendWait     time.Duration
	sendSettle   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Connect, send one message and print replies until --wait elapses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := cliLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		poller := adapters.NewPoller(adapters.PollerConfig{
			Name:         "send",
			Mode:         api.OwnThread,
			TickInterval: time.Millisecond,
		}, adapters.WithLogger(logger))

		cfg := client.DefaultConfig()
		cfg.Name = "send"
		cfg.Address = sendEndpoint
		cfg.Port = sendPort
		cfg.AutoReconnect = false
		cfg.EnableLogging = true
		c := client.New(poller, cfg, client.WithLogger(logger))

		out := cmd.OutOrStdout()
		// Servers drop bytes that arrive before their accept completes, so
		// the message goes out one settle period after connecting.
		var connectedAt time.Time
		sent := false
		c.OnConnected(func() { connectedAt = time.Now() })
		c.OnPostProcess(func() {
			if !sent && c.IsConnected() && time.Since(connectedAt) >= sendSettle {
				sent = c.Send(api.PacketFromString(sendMessage)) == nil
			}
		})
		c.OnDataReceived(func(p api.Packet) {
			fmt.Fprintln(out, p.String())
		})

		if err := poller.Start(); err != nil {
			return err
		}
		if err := c.Start(); err != nil {
			poller.Stop()
			return err
		}

		select {
		case <-cmd.Context().Done():
		case <-time.After(sendWait):
		}
		c.Stop()
		poller.Stop()
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendEndpoint, "endpoint", "e", "127.0.0.1", "remote address")
	sendCmd.Flags().IntVarP(&sendPort, "port", "p", client.DefaultConfig().Port, "remote port")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "PING", "payload to send once connected")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Second, "how long to print replies")
	sendCmd.Flags().DurationVar(&sendSettle, "settle", 100*time.Millisecond, "delay between connecting and sending")
}
