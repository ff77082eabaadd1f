// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

var frameProbeTimeout int

var frameProbeCmd = &cobra.Command{
	Use:   "frame_probe",
	Short: "Test connection by waiting for a valid MAVLink frame",
	Long: `Wait for a valid MAVLink frame on the connection until timeout.

This command connects to a serial port, UDP socket or WebSocket and waits for
any valid MAVLink v1 or v2 frame. It ignores invalid bytes and waits for a
complete frame passing the CRC check.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the autopilot link before starting a simulation.`,
	RunE: runFrameProbe,
}

func init() {
	rootCmd.AddCommand(frameProbeCmd)
	frameProbeCmd.Flags().IntVar(&frameProbeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameProbe(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Hilbridge - Frame Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameProbeTimeout)
	fmt.Printf("Waiting for valid MAVLink frame...\n\n")

	decoder, err := newDecoder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	buf := make([]byte, 2048)

	frameChan := make(chan *mavlink.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		invalidBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					invalidBytes++
					continue
				}
				if frame != nil {
					if invalidBytes > 0 {
						fmt.Printf("(%d frames rejected before sync)\n", invalidBytes)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Message: %s (%d)\n", mavlink.CommonDialect().Name(frame.MessageID()), frame.MessageID())
		fmt.Printf("  Version: v%d\n", frame.Version())
		fmt.Printf("  System/Component: %d/%d\n", frame.SystemID(), frame.ComponentID())
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  CRC: 0x%04X\n", frame.Checksum())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameProbeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameProbeTimeout)
		os.Exit(1)
	}

	return nil
}
