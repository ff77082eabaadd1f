// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/hilbridge/pkg/hil"
	"github.com/Thermoquad/hilbridge/pkg/link"
	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// HomeAltitudeEnv overrides hil.home_altitude when set
const HomeAltitudeEnv = "PX4_HOME_ALT"

// Joint control types
const (
	ControlVelocity          = "velocity"
	ControlPosition          = "position"
	ControlPositionKinematic = "position_kinematic"
	ControlPositionTopic     = "position_gztopic"
)

type Config struct {
	Serial   SerialConfig    `yaml:"serial"`
	UDP      UDPConfig       `yaml:"udp"`
	HIL      HILConfig       `yaml:"hil"`
	Signing  SigningConfig   `yaml:"signing"`
	Channels []ChannelConfig `yaml:"channels"`
	Sim      SimConfig       `yaml:"sim"`
}

type SerialConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	TxQueueSize int    `yaml:"tx_queue_size"`
}

type UDPConfig struct {
	MavlinkAddr string `yaml:"mavlink_addr"`
	MavlinkPort int    `yaml:"mavlink_port"`
	QGCAddr     string `yaml:"qgc_addr"`
	QGCPort     int    `yaml:"qgc_port"`
}

type HILConfig struct {
	HILMode         bool     `yaml:"hil_mode"`
	HILStateLevel   bool     `yaml:"hil_state_level"`
	UpdateInterval  Duration `yaml:"update_interval"`
	HomeAltitude    float64  `yaml:"home_altitude"`
	Tailsitter      bool     `yaml:"tailsitter"`
	SystemID        uint8    `yaml:"system_id"`
	ComponentID     uint8    `yaml:"component_id"`
	ActuatorTimeout Duration `yaml:"actuator_timeout"`
}

// Duration is a time.Duration read from YAML either as a duration string
// ("4ms", "0s") or as a plain number of milliseconds
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	switch value.ShortTag() {
	case "!!int", "!!float":
		ms, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = Duration(ms * float64(time.Millisecond))
		return nil
	}
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

type SigningConfig struct {
	Key            string `yaml:"key"`
	LinkID         uint8  `yaml:"link_id"`
	AcceptUnsigned bool   `yaml:"accept_unsigned"`
}

type PIDConfig struct {
	P      float64 `yaml:"p"`
	I      float64 `yaml:"i"`
	D      float64 `yaml:"d"`
	IMax   float64 `yaml:"i_max"`
	IMin   float64 `yaml:"i_min"`
	CmdMax float64 `yaml:"cmd_max"`
	CmdMin float64 `yaml:"cmd_min"`
}

type ChannelConfig struct {
	Index        int       `yaml:"index"`
	Offset       float64   `yaml:"offset"`
	Scale        *float64  `yaml:"scale"`
	ZeroArmed    float64   `yaml:"zero_armed"`
	ZeroDisarmed float64   `yaml:"zero_disarmed"`
	ControlType  string    `yaml:"control_type"`
	Joint        string    `yaml:"joint"`
	PID          PIDConfig `yaml:"pid"`
}

type SimConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	cfg := preset()
	cfg.applyDefaults()
	return cfg
}

// preset holds the defaults for keys where zero is a meaningful value.
// YAML decoding only overwrites the keys present in the file.
func preset() Config {
	return Config{HIL: HILConfig{
		UpdateInterval: Duration(hil.DefaultUpdateInterval),
		HomeAltitude:   hil.DefaultHomeAltitude,
	}}
}

func (c *Config) applyDefaults() {
	if c.Serial.Device == "" {
		c.Serial.Device = link.DefaultSerialDevice
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = link.DefaultBaudRate
	}
	if c.Serial.TxQueueSize <= 0 {
		c.Serial.TxQueueSize = link.DefaultQueueSize
	}

	if c.UDP.MavlinkAddr == "" {
		c.UDP.MavlinkAddr = link.AnyAddr
	}
	if c.UDP.MavlinkPort == 0 {
		c.UDP.MavlinkPort = link.DefaultMavlinkPort
	}
	if c.UDP.QGCAddr == "" {
		c.UDP.QGCAddr = link.AnyAddr
	}
	if c.UDP.QGCPort == 0 {
		c.UDP.QGCPort = link.DefaultQGCPort
	}

	if c.HIL.UpdateInterval < 0 {
		c.HIL.UpdateInterval = 0
	}
	if c.HIL.SystemID == 0 {
		c.HIL.SystemID = mavlink.DefaultSystemID
	}
	if c.HIL.ComponentID == 0 {
		c.HIL.ComponentID = mavlink.DefaultComponentID
	}
	if c.HIL.ActuatorTimeout <= 0 {
		c.HIL.ActuatorTimeout = Duration(hil.DefaultActuatorTimeout)
	}

	for i := range c.Channels {
		if c.Channels[i].Scale == nil {
			one := 1.0
			c.Channels[i].Scale = &one
		}
		if c.Channels[i].ControlType == "" {
			c.Channels[i].ControlType = ControlVelocity
		}
	}
}

// Load reads a YAML file, fills defaults, applies the environment and
// validates the result. A missing update_interval means the default 4 ms;
// an explicit 0 disables sensor rate gating. A missing home_altitude means
// 488 m; an explicit 0 is sea level.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := preset()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(HomeAltitudeEnv); v != "" {
		alt, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", HomeAltitudeEnv, err)
		}
		c.HIL.HomeAltitude = alt
	}
	return nil
}

// Validate checks value ranges and cross-field constraints
func (c *Config) Validate() error {
	if c.Serial.Enabled && c.Serial.Device == "" {
		return fmt.Errorf("serial.device is required when serial.enabled is true")
	}
	if _, err := link.ParseAddr(c.UDP.MavlinkAddr, c.UDP.MavlinkPort); err != nil {
		return fmt.Errorf("udp.mavlink_addr: %w", err)
	}
	if _, err := link.ParseAddr(c.UDP.QGCAddr, c.UDP.QGCPort); err != nil {
		return fmt.Errorf("udp.qgc_addr: %w", err)
	}
	if c.Signing.Key != "" {
		if _, err := mavlink.ParseKey(c.Signing.Key); err != nil {
			return fmt.Errorf("signing.key: %w", err)
		}
	}

	if len(c.Channels) > hil.MaxChannels {
		return fmt.Errorf("channels: %d configured, at most %d supported", len(c.Channels), hil.MaxChannels)
	}
	for i, ch := range c.Channels {
		if ch.Index < 0 || ch.Index >= hil.MaxChannels {
			return fmt.Errorf("channels[%d].index %d out of range", i, ch.Index)
		}
		switch ch.ControlType {
		case ControlVelocity, ControlPosition, ControlPositionKinematic, ControlPositionTopic:
		default:
			return fmt.Errorf("channels[%d].control_type %q undefined", i, ch.ControlType)
		}
	}
	return nil
}

// Mapping converts the channel list into an actuator mapping. With no
// channels configured every control passes through unchanged.
func (c *Config) Mapping() hil.Mapping {
	if len(c.Channels) == 0 {
		return hil.DefaultMapping(hil.MaxChannels)
	}
	m := make(hil.Mapping, len(c.Channels))
	for i, ch := range c.Channels {
		scale := 1.0
		if ch.Scale != nil {
			scale = *ch.Scale
		}
		m[i] = hil.ChannelMapping{
			Input:        ch.Index,
			Offset:       ch.Offset,
			Scale:        scale,
			ZeroArmed:    ch.ZeroArmed,
			ZeroDisarmed: ch.ZeroDisarmed,
		}
	}
	return m
}

// Mode returns the HIL routing mode
func (c *Config) Mode() hil.Mode {
	return hil.Mode{HILMode: c.HIL.HILMode, StateLevel: c.HIL.HILStateLevel}
}
