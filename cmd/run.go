// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hilbridge/pkg/bridge"
	"github.com/Thermoquad/hilbridge/pkg/config"
	"github.com/Thermoquad/hilbridge/pkg/hil"
	"github.com/Thermoquad/hilbridge/pkg/simlink"
)

var (
	runStatsInterval int
	runTUI           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the HIL bridge between a simulator and an autopilot",
	Long: `Connect to the simulator over WebSocket and to the autopilot over serial
and/or UDP, then bridge them until interrupted.

Every simulator tick encodes the pending sensor samples as HIL messages,
polls the autopilot for HIL_ACTUATOR_CONTROLS and answers the simulator with
the current actuator reference.

The simulator URL comes from --url or sim.url in the configuration file.
--port and --baud enable serial and override serial.device and serial.baud.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runStatsInterval, "stats-interval", 10, "Statistics log interval in seconds (0 disables)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the monitor instead of log output")
}

// loadConfig reads --config, or the defaults when none is given
func loadConfig() (config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return cfg, err
		}
		return cfg, cfg.Validate()
	}
	return config.Load(configPath)
}

// applyFlags lets connection flags override the file
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if portName != "" {
		cfg.Serial.Enabled = true
		cfg.Serial.Device = portName
	}
	if cmd.Flags().Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if wsURL != "" {
		cfg.Sim.URL = wsURL
	}
	if wsUsername != "" {
		cfg.Sim.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.Sim.NoSSLVerify = true
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if cfg.Sim.URL == "" {
		return fmt.Errorf("simulator URL required (--url or sim.url)")
	}

	password, err := promptPassword(cfg.Sim.Username)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := simlink.Dial(ctx, simlink.Config{
		URL:         cfg.Sim.URL,
		Username:    cfg.Sim.Username,
		Password:    password,
		NoSSLVerify: cfg.Sim.NoSSLVerify,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	b, err := bridge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	bank := simlink.NewJointBank()
	if n := simlink.BindJoints(b, cfg.Channels, bank); n > 0 {
		log.Printf("[run] driving %d simulator joints", n)
	}
	session := simlink.NewSession(client, b, bank)

	if runTUI {
		return runBridgeTUI(ctx, stop, cfg, session)
	}

	log.Printf("[run] simulator %s", cfg.Sim.URL)
	if runStatsInterval > 0 {
		go logStats(ctx, b, time.Duration(runStatsInterval)*time.Second)
	}
	return session.Run(ctx)
}

func logStats(ctx context.Context, b *bridge.Bridge, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Printf("[run] actuator frames %d\n%s", b.Codec().ActuatorFrames(), b.Stats().String())
		}
	}
}

// runBridgeTUI runs the session behind the monitor. Log output becomes
// monitor events.
func runBridgeTUI(ctx context.Context, stop context.CancelFunc, cfg config.Config, s *simlink.Session) error {
	source := fmt.Sprintf("Sim: %s", cfg.Sim.URL)
	if cfg.Serial.Enabled {
		source += fmt.Sprintf(" | Serial: %s @ %d baud", cfg.Serial.Device, cfg.Serial.Baud)
	}
	m := newMonitorModel("HILBRIDGE - RUN", source, s.Bridge.Stats())
	p := tea.NewProgram(m)

	log.SetOutput(logWriter{p})
	defer log.SetOutput(os.Stderr)

	var last time.Time
	s.Observe = func(sim hil.SimContext, out bridge.Output) {
		// The simulator ticks far faster than the screen refreshes
		if now := time.Now(); now.Sub(last) >= 50*time.Millisecond {
			last = now
			p.Send(outputMsg{sim: sim.Time, out: out})
		}
	}

	errc := make(chan error, 1)
	go func() {
		err := s.Run(ctx)
		p.Send(logLineMsg{text: "simulator session ended", isError: err != nil})
		errc <- err
	}()

	_, err := p.Run()
	stop()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return <-errc
}
