// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/link"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// UDP connection flags
	udpListen string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "hilbridge",
	Short: "MAVLink hardware-in-the-loop bridge",
	Long: `Hilbridge - Bridges a physics simulator and a MAVLink autopilot for
hardware-in-the-loop testing.

The run command feeds simulated sensors to the autopilot as HIL messages and
returns its actuator outputs to the simulator. The remaining commands inspect
MAVLink traffic on a link.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 921600]
  UDP:       --udp 0.0.0.0:14550
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HILBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", link.DefaultBaudRate, "Baud rate (serial only)")

	// UDP connection flags
	rootCmd.PersistentFlags().StringVar(&udpListen, "udp", "", "Listen for MAVLink datagrams on host:port")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
