// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

const (
	gcsSystemID    = 255
	gcsComponentID = 190
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover MAVLink systems on a link",
	Long: `Send a ground-station HEARTBEAT and list every system that answers
with its own HEARTBEAT.

Autopilots start streaming to a UDP peer once they have heard from it, so
the heartbeat also opens the link on --udp connections.

Examples:
  # Autopilot on USB
  hilbridge discovery --port /dev/ttyACM0

  # SITL or a companion computer
  hilbridge discovery --udp 0.0.0.0:14550

Exit codes:
  0 - Discovery successful (at least one system found)
  1 - Discovery failed (no systems before timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Timeout in seconds for discovery")
}

type discoveredSystem struct {
	systemID    uint8
	componentID uint8
	heartbeat   *common.MessageHeartbeat
}

func (d discoveredSystem) key() uint16 {
	return uint16(d.systemID)<<8 | uint16(d.componentID)
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Hilbridge - System Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	decoder, err := newDecoder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	dialect := mavlink.CommonDialect()
	encoder := mavlink.NewEncoder(gcsSystemID, gcsComponentID)

	hb, err := encoder.Encode(&common.MessageHeartbeat{
		Type:           6, // MAV_TYPE_GCS
		Autopilot:      8, // MAV_AUTOPILOT_INVALID
		SystemStatus:   4, // MAV_STATE_ACTIVE
		MavlinkVersion: 3,
	})
	if err != nil {
		return err
	}

	// A UDP listener has no peer until something arrives
	fmt.Printf("Sending HEARTBEAT (system %d, component %d)...\n", gcsSystemID, gcsComponentID)
	if _, err := conn.Write(hb.Bytes()); err != nil {
		fmt.Printf("(heartbeat not sent: %v)\n", err)
	}

	found := make(chan discoveredSystem, 16)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 2048)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			frames, _ := decoder.Decode(buf[:n])
			for _, f := range frames {
				if f.MessageID() != (&common.MessageHeartbeat{}).GetID() || f.SystemID() == gcsSystemID {
					continue
				}
				msg, err := dialect.Decode(f)
				if err != nil {
					continue
				}
				found <- discoveredSystem{
					systemID:    f.SystemID(),
					componentID: f.ComponentID(),
					heartbeat:   msg.(*common.MessageHeartbeat),
				}
			}
		}
	}()

	systems := make(map[uint16]discoveredSystem)
	deadline := time.After(time.Duration(discoveryTimeout) * time.Second)

collect:
	for {
		select {
		case s := <-found:
			if _, seen := systems[s.key()]; seen {
				continue
			}
			systems[s.key()] = s
			fmt.Printf("\nSystem found:\n")
			fmt.Printf("  System/Component: %d/%d\n", s.systemID, s.componentID)
			fmt.Printf("  Type: %v\n", s.heartbeat.Type)
			fmt.Printf("  Autopilot: %v\n", s.heartbeat.Autopilot)
			fmt.Printf("  Armed: %t\n", s.heartbeat.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0)
			fmt.Printf("  HIL: %t\n", s.heartbeat.BaseMode&common.MAV_MODE_FLAG_HIL_ENABLED != 0)

		case err := <-errChan:
			if err != ErrConnectionClosed {
				fmt.Printf("READ FAILED: %v\n", err)
				os.Exit(2)
			}
			break collect

		case <-deadline:
			break collect
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Systems found: %d\n", len(systems))
	if len(systems) == 0 {
		fmt.Printf("No systems discovered. Check connection and autopilot power.\n")
		os.Exit(1)
	}

	keys := make([]int, 0, len(systems))
	for k := range systems {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	for _, k := range keys {
		s := systems[uint16(k)]
		fmt.Printf("  %3d/%-3d %v\n", s.systemID, s.componentID, s.heartbeat.Type)
	}

	return nil
}
