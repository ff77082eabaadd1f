// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor MAVLink link health and actuator outputs",
	Long: `Track frame errors, message rates and actuator outputs on a MAVLink link.

This command decodes every frame and reports:
  - CRC, signature and header errors
  - Per-message frame counts
  - The latest HIL_ACTUATOR_CONTROLS outputs and arm state
  - Frame and error rates

By default, only errors are displayed in text mode. Use --show-all to print
every frame.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	decoder, err := newDecoder()
	if err != nil {
		return err
	}

	if useTUI {
		return runMonitorTUI(conn, connInfo, decoder)
	}
	return runMonitorText(conn, connInfo, decoder)
}

// readFrames decodes conn until it fails. Errors before the first valid
// frame are counted, not reported.
func readFrames(conn Connection, decoder *mavlink.Decoder, onSync func(invalid int), onFrame func(*mavlink.Frame, error)) {
	synchronized := false
	invalidBeforeSync := 0
	buf := make([]byte, 2048)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err == ErrConnectionClosed {
				return
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			switch {
			case decodeErr != nil:
				if synchronized {
					onFrame(nil, decodeErr)
				} else {
					invalidBeforeSync++
				}
			case frame != nil:
				if !synchronized {
					synchronized = true
					onSync(invalidBeforeSync)
				}
				onFrame(frame, nil)
			}
		}
	}
}

func runMonitorTUI(conn Connection, connInfo string, decoder *mavlink.Decoder) error {
	m := newMonitorModel("HILBRIDGE - LINK MONITOR", connInfo, nil)
	p := tea.NewProgram(m)

	go readFrames(conn, decoder,
		func(invalid int) { p.Send(syncMsg{invalidFrames: invalid}) },
		func(f *mavlink.Frame, err error) { p.Send(frameMsg{frame: f, decodeErr: err}) },
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

func runMonitorText(conn Connection, connInfo string, decoder *mavlink.Decoder) error {
	fmt.Printf("Hilbridge - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := mavlink.NewStatistics()
	dialect := mavlink.CommonDialect()

	type result struct {
		frame *mavlink.Frame
		err   error
		sync  int
	}
	results := make(chan result, 64)
	go func() {
		readFrames(conn, decoder,
			func(invalid int) { results <- result{sync: invalid + 1} },
			func(f *mavlink.Frame, err error) { results <- result{frame: f, err: err} },
		)
		close(results)
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				log.Printf("Connection closed")
				fmt.Print(stats.String())
				return nil
			}
			switch {
			case r.sync > 0:
				if r.sync > 1 {
					fmt.Printf("[SYNC] Synchronized after rejecting %d frames\n\n", r.sync-1)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			case r.err != nil:
				stats.Update(nil, r.err)
				printDecodeError(r.err)
			default:
				stats.Update(r.frame, nil)
				if showAll {
					fmt.Print(mavlink.FormatFrame(r.frame, dialect))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
