// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/simlink"
)

var simProbeDuration int

var simProbeCmd = &cobra.Command{
	Use:   "sim_probe",
	Short: "Test the simulator connection without an autopilot",
	Long: `Connect to the simulator and count the events it sends.

Nothing is forwarded to an autopilot and no actuator events are sent back.
Useful for checking the simulator plugin and its event rates before a run.

Exit codes:
  0 - Test completed normally
  1 - Connection failed during the test
  2 - Connection error`,
	RunE: runSimProbe,
}

func init() {
	rootCmd.AddCommand(simProbeCmd)
	simProbeCmd.Flags().IntVar(&simProbeDuration, "duration", 10, "Test duration in seconds")
}

func runSimProbe(cmd *cobra.Command, args []string) error {
	if wsURL == "" {
		fmt.Fprintf(os.Stderr, "Connection error: --url is required\n")
		os.Exit(2)
	}
	password, err := promptPassword(wsUsername)
	if err != nil {
		return err
	}

	client, err := simlink.Dial(context.Background(), simlink.Config{
		URL:         wsURL,
		Username:    wsUsername,
		Password:    password,
		NoSSLVerify: wsNoSSLVerify,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Simulator Connection Test\n")
	fmt.Printf("Simulator: %s\n", wsURL)
	fmt.Printf("Duration: %d seconds\n\n", simProbeDuration)

	type event struct {
		kind simlink.Kind
		ev   any
	}
	events := make(chan event, 100)
	errChan := make(chan error, 1)
	go func() {
		for {
			kind, ev, err := client.Next()
			if err != nil {
				errChan <- err
				return
			}
			events <- event{kind, ev}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(simProbeDuration) * time.Second)
	counts := make(map[simlink.Kind]int)
	var lastTick *simlink.TickEvent

	results := func() {
		elapsed := time.Since(start).Seconds()
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %.1f seconds\n", elapsed)
		kinds := make([]int, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, int(k))
		}
		sort.Ints(kinds)
		for _, k := range kinds {
			n := counts[simlink.Kind(k)]
			fmt.Printf("  %-14s %8d (%.1f/s)\n", simlink.Kind(k), n, float64(n)/elapsed)
		}
		if lastTick != nil {
			fmt.Printf("Last sim time: %v\n", lastTick.Context().Time)
		}
	}

	fmt.Printf("Listening for events...\n\n")
	for time.Now().Before(endTime) {
		select {
		case e := <-events:
			counts[e.kind]++
			if tick, ok := e.ev.(*simlink.TickEvent); ok {
				lastTick = tick
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			results()
			fmt.Printf("Result: FAILED (connection error)\n")
			os.Exit(1)

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results()
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}
