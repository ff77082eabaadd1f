// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display MAVLink frames in human-readable format",
	Long: `Continuously decode and display MAVLink frames as they arrive.

Each frame is shown with timestamp, header fields and the decoded message.
Frames whose message is not in the common dialect are reported as CRC
errors.

Supports serial, UDP and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also dump the raw frame bytes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Hilbridge - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder, err := newDecoder()
	if err != nil {
		return err
	}
	dialect := mavlink.CommonDialect()
	buf := make([]byte, 2048)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A failed WebSocket read is permanent
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(mavlink.FormatFrame(frame, dialect))
				if rawLogHex {
					fmt.Print(mavlink.FormatHex(frame.Bytes()))
				}
			}
		}
	}
}

// newDecoder builds a decoder honouring the signing section of --config
func newDecoder() (*mavlink.Decoder, error) {
	if configPath == "" {
		return mavlink.NewDecoder(), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Signing.Key == "" {
		return mavlink.NewDecoder(), nil
	}
	key, err := mavlink.ParseKey(cfg.Signing.Key)
	if err != nil {
		return nil, err
	}
	return mavlink.NewDecoder(mavlink.WithSigning(&mavlink.SigningConfig{
		Key:            key,
		AcceptUnsigned: cfg.Signing.AcceptUnsigned,
	})), nil
}
