// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/hilbridge/pkg/hil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "")
	cfg, err := Load(writeConfig(t, "serial:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Serial.Device != "/dev/ttyACM0" || cfg.Serial.Baud != 921600 || cfg.Serial.TxQueueSize != 1000 {
		t.Errorf("serial defaults = %+v", cfg.Serial)
	}
	if cfg.UDP.MavlinkPort != 14560 || cfg.UDP.QGCPort != 14550 || cfg.UDP.MavlinkAddr != "INADDR_ANY" {
		t.Errorf("udp defaults = %+v", cfg.UDP)
	}
	if cfg.HIL.UpdateInterval.Std() != 4*time.Millisecond {
		t.Errorf("update_interval = %v, want 4ms", cfg.HIL.UpdateInterval)
	}
	if cfg.HIL.HomeAltitude != 488 || cfg.HIL.SystemID != 1 || cfg.HIL.ComponentID != 200 {
		t.Errorf("hil defaults = %+v", cfg.HIL)
	}
	if cfg.HIL.ActuatorTimeout.Std() != 200*time.Millisecond {
		t.Errorf("actuator_timeout = %v, want 200ms", cfg.HIL.ActuatorTimeout)
	}
	if len(cfg.Mapping()) != hil.MaxChannels {
		t.Errorf("default mapping has %d channels", len(cfg.Mapping()))
	}
}

func TestDefault_MatchesLoad(t *testing.T) {
	cfg := Default()
	if cfg.HIL.UpdateInterval.Std() != hil.DefaultUpdateInterval || cfg.HIL.HomeAltitude != hil.DefaultHomeAltitude || cfg.Serial.Baud != 921600 {
		t.Errorf("Default() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate: %v", err)
	}
}

func TestLoad_Full(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "")
	body := `
serial:
  enabled: true
  device: /dev/ttyUSB0
  baud: 57600
udp:
  mavlink_addr: 127.0.0.1
  mavlink_port: 14570
  qgc_addr: 192.168.1.10
  qgc_port: 14551
hil:
  hil_mode: true
  hil_state_level: false
  update_interval: 0
  tailsitter: true
channels:
  - index: 0
    offset: 0
    scale: 1000
    zero_armed: 100
    control_type: velocity
    joint: rotor_0_joint
    pid:
      p: 0.1
      cmd_max: 2
      cmd_min: -2
  - index: 4
    offset: -0.5
    zero_disarmed: 0.2
    control_type: position
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Serial.Enabled || cfg.Serial.Device != "/dev/ttyUSB0" || cfg.Serial.Baud != 57600 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if cfg.HIL.UpdateInterval != 0 {
		t.Errorf("explicit update_interval 0 should disable gating, got %v", cfg.HIL.UpdateInterval)
	}
	mode := cfg.Mode()
	if !mode.HILMode || mode.StateLevel {
		t.Errorf("Mode() = %+v, hil_mode and hil_state_level are independent", mode)
	}

	m := cfg.Mapping()
	if len(m) != 2 {
		t.Fatalf("Mapping() has %d channels, want 2", len(m))
	}
	if m[0].Scale != 1000 || m[0].ZeroArmed != 100 {
		t.Errorf("channel 0 = %+v", m[0])
	}
	if m[1].Input != 4 || m[1].Scale != 1 || m[1].Offset != -0.5 || m[1].ZeroDisarmed != 0.2 {
		t.Errorf("channel 1 = %+v, missing scale should default to 1", m[1])
	}
	if cfg.Channels[0].PID.CmdMax != 2 || cfg.Channels[0].Joint != "rotor_0_joint" {
		t.Errorf("channel 0 pid/joint = %+v", cfg.Channels[0])
	}
}

func TestLoad_Durations(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "")
	tests := []struct {
		body string
		want time.Duration
	}{
		{"update_interval: 0", 0},
		{"update_interval: 4", 4 * time.Millisecond},
		{"update_interval: 2.5", 2500 * time.Microsecond},
		{"update_interval: 0s", 0},
		{"update_interval: \"10ms\"", 10 * time.Millisecond},
		{"update_interval: 1m", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "hil:\n  "+tt.body+"\n"))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.HIL.UpdateInterval.Std() != tt.want {
				t.Errorf("update_interval = %v, want %v", cfg.HIL.UpdateInterval, tt.want)
			}
		})
	}

	cfg, err := Load(writeConfig(t, "hil:\n  actuator_timeout: 500\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HIL.ActuatorTimeout.Std() != 500*time.Millisecond {
		t.Errorf("actuator_timeout = %v, want 500ms", cfg.HIL.ActuatorTimeout)
	}
	if cfg.HIL.UpdateInterval.Std() != hil.DefaultUpdateInterval {
		t.Errorf("update_interval = %v, absent key should keep the default", cfg.HIL.UpdateInterval)
	}

	for _, body := range []string{"hil:\n  update_interval: soon\n", "hil:\n  update_interval: [1]\n"} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("Load(%q) should fail", body)
		}
	}
}

func TestLoad_HomeAltitude(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "")
	cfg, err := Load(writeConfig(t, "hil:\n  home_altitude: 0\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HIL.HomeAltitude != 0 {
		t.Errorf("HomeAltitude = %f, explicit sea level must be kept", cfg.HIL.HomeAltitude)
	}

	cfg, err = Load(writeConfig(t, "hil:\n  tailsitter: true\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HIL.HomeAltitude != hil.DefaultHomeAltitude {
		t.Errorf("HomeAltitude = %f, want default %f", cfg.HIL.HomeAltitude, hil.DefaultHomeAltitude)
	}
}

func TestLoad_HomeAltitudeEnv(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "1234.5")
	cfg, err := Load(writeConfig(t, "hil:\n  home_altitude: 10\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HIL.HomeAltitude != 1234.5 {
		t.Errorf("HomeAltitude = %f, want 1234.5", cfg.HIL.HomeAltitude)
	}

	t.Setenv(HomeAltitudeEnv, "high")
	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Error("invalid PX4_HOME_ALT should fail")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(HomeAltitudeEnv, "")
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad address", "udp:\n  mavlink_addr: nowhere\n", "udp.mavlink_addr"},
		{"bad qgc address", "udp:\n  qgc_addr: 1.2.3\n", "udp.qgc_addr"},
		{"bad key", "signing:\n  key: abc\n", "signing.key"},
		{"bad control type", "channels:\n  - index: 0\n    control_type: torque\n", "control_type"},
		{"bad index", "channels:\n  - index: 16\n", "index"},
		{"bad yaml", "serial: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
