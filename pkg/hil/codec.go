// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

import (
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// Mode selects which vehicle messages reach the autopilot
type Mode struct {
	HILMode    bool // autopilot runs in HIL mode
	StateLevel bool // HIL at state level: send ground truth instead of raw sensors
}

// SendSensors reports whether HIL_SENSOR and HIL_GPS are sent
func (m Mode) SendSensors() bool {
	return !m.HILMode || !m.StateLevel
}

// SendState reports whether HIL_STATE_QUATERNION is sent
func (m Mode) SendState() bool {
	return !m.HILMode || m.StateLevel
}

// CodecConfig configures a Codec
type CodecConfig struct {
	Mode           Mode
	UpdateInterval time.Duration
	HomeAltitude   float64
	Tailsitter     bool
	Mapping        Mapping
	Noise          NoiseSource
	Dialect        *mavlink.Dialect
}

// Codec turns sensor events into HIL messages and actuator frames into
// actuator references. Encode methods belong to the simulation tick;
// HandleFrame may run on any goroutine.
type Codec struct {
	cfg     CodecConfig
	gate    RateGate
	flow    FlowAccumulator
	flowDst float64

	groundtruth atomic.Pointer[Groundtruth]
	actuators   ActuatorState
	now         atomic.Int64
	received    atomic.Uint64
}

// NewCodec creates a codec
func NewCodec(cfg CodecConfig) *Codec {
	if cfg.Noise == nil {
		cfg.Noise = NewPolarNoise(time.Now().UnixNano())
	}
	if cfg.Dialect == nil {
		cfg.Dialect = mavlink.CommonDialect()
	}
	if cfg.Mapping == nil {
		cfg.Mapping = DefaultMapping(MaxChannels)
	}
	return &Codec{
		cfg:  cfg,
		gate: RateGate{Interval: cfg.UpdateInterval},
	}
}

// SetTime records the current simulation time for decode-side timestamps
func (c *Codec) SetTime(t time.Duration) {
	c.now.Store(int64(t))
}

// Now returns the last recorded simulation time
func (c *Codec) Now() time.Duration {
	return time.Duration(c.now.Load())
}

// IMU handles one IMU sample. When the update interval has elapsed it
// returns HIL_SENSOR and/or HIL_STATE_QUATERNION depending on the mode.
func (c *Codec) IMU(sim SimContext, s IMUSample) []message.Message {
	if !c.gate.Ready(sim.Time) {
		return nil
	}
	c.gate.Mark(sim.Time)

	var out []message.Message
	sensor := BuildSensor(sim, s, SensorInput{
		HomeAltitude: c.cfg.HomeAltitude,
		Tailsitter:   c.cfg.Tailsitter,
		Noise:        pressureNoise * c.cfg.Noise.Gaussian(),
	})
	c.flow.Add(sensor.TimeUsec, s.Gyro)
	if c.cfg.Mode.SendSensors() {
		out = append(out, sensor)
	}
	if c.cfg.Mode.SendState() {
		out = append(out, BuildStateQuaternion(sim, s, c.Groundtruth()))
	}
	return out
}

// GPS handles one GNSS fix
func (c *Codec) GPS(g GPSSample) []message.Message {
	if !c.cfg.Mode.SendSensors() {
		return nil
	}
	return []message.Message{BuildGPS(g)}
}

// SetGroundtruth replaces the global position used for HIL_STATE_QUATERNION
func (c *Codec) SetGroundtruth(g Groundtruth) {
	c.groundtruth.Store(&g)
}

// Groundtruth returns the last global position, zero before the first update
func (c *Codec) Groundtruth() Groundtruth {
	if g := c.groundtruth.Load(); g != nil {
		return *g
	}
	return Groundtruth{}
}

// Lidar handles a lidar reading and remembers its range for optical flow
func (c *Codec) Lidar(r RangeSample) message.Message {
	c.flowDst = r.Current
	return BuildLidar(r)
}

// Sonar handles a sonar reading
func (c *Codec) Sonar(sim SimContext, r RangeSample) message.Message {
	return BuildSonar(sim, r)
}

// OpticalFlow handles a flow sample and restarts gyro integration
func (c *Codec) OpticalFlow(sim SimContext, f OpticalFlowSample) message.Message {
	return BuildOpticalFlow(sim, f, c.flow.Take(), c.flowDst)
}

// FlowGyro returns the gyro angle integrated since the last flow sample
func (c *Codec) FlowGyro() Vec3 {
	return c.flow.Sum()
}

// IRLock handles a beacon detection
func (c *Codec) IRLock(sim SimContext, s IRLockSample) message.Message {
	return BuildLandingTarget(sim, s)
}

// Vision handles a visual-odometry pose
func (c *Codec) Vision(v VisionSample) message.Message {
	return BuildVisionPosition(v)
}

// HandleFrame decodes an inbound frame. HIL_ACTUATOR_CONTROLS replaces the
// actuator reference; other messages are ignored. Returns true if the
// reference was updated.
func (c *Codec) HandleFrame(f *mavlink.Frame) bool {
	if f.MessageID() != (&common.MessageHilActuatorControls{}).GetID() {
		return false
	}
	msg, err := c.cfg.Dialect.Decode(f)
	if err != nil {
		return false
	}
	controls, ok := msg.(*common.MessageHilActuatorControls)
	if !ok {
		return false
	}
	c.actuators.Store(DecodeActuators(controls, c.cfg.Mapping, c.Now()))
	c.received.Add(1)
	return true
}

// Actuators returns the published actuator reference
func (c *Codec) Actuators() *ActuatorState {
	return &c.actuators
}

// ActuatorFrames returns how many actuator frames have been decoded
func (c *Codec) ActuatorFrames() uint64 {
	return c.received.Load()
}
