// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simlink connects the bridge to a physics simulator over a
// WebSocket carrying CBOR events.
//
// Every binary message is a two element array [kind, payload]. Payloads
// are maps with small integer keys, vectors are [x, y, z] and quaternions
// are [w, x, y, z].
package simlink

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/hilbridge/pkg/hil"
)

// Kind identifies an event
type Kind uint8

// Simulator to bridge
const (
	KindIMU         Kind = 0x01
	KindGPS         Kind = 0x02
	KindGroundtruth Kind = 0x03
	KindLidar       Kind = 0x04
	KindSonar       Kind = 0x05
	KindOpticalFlow Kind = 0x06
	KindIRLock      Kind = 0x07
	KindVision      Kind = 0x08
	KindTick        Kind = 0x10
)

// Bridge to simulator
const (
	KindActuators Kind = 0x20
)

func (k Kind) String() string {
	switch k {
	case KindIMU:
		return "IMU"
	case KindGPS:
		return "GPS"
	case KindGroundtruth:
		return "GROUNDTRUTH"
	case KindLidar:
		return "LIDAR"
	case KindSonar:
		return "SONAR"
	case KindOpticalFlow:
		return "OPTICAL_FLOW"
	case KindIRLock:
		return "IRLOCK"
	case KindVision:
		return "VISION"
	case KindTick:
		return "TICK"
	case KindActuators:
		return "ACTUATORS"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(k))
	}
}

type envelope struct {
	_       struct{} `cbor:",toarray"`
	Kind    Kind
	Payload cbor.RawMessage
}

// Vec is a CBOR [x, y, z] triple
type Vec [3]float64

func (v Vec) hil() hil.Vec3 { return hil.Vec3{X: v[0], Y: v[1], Z: v[2]} }

// Quat is a CBOR [w, x, y, z] quaternion
type Quat [4]float64

func (q Quat) hil() hil.Quaternion {
	return hil.Quaternion{W: q[0], X: q[1], Y: q[2], Z: q[3]}
}

// IMUEvent carries the IMU reading and the vehicle state the state
// messages need
type IMUEvent struct {
	Accel           Vec  `cbor:"0,keyasint"`
	Gyro            Vec  `cbor:"1,keyasint"`
	Mag             Vec  `cbor:"2,keyasint"`
	Attitude        Quat `cbor:"3,keyasint"`
	Position        Vec  `cbor:"4,keyasint"`
	VelocityBody    Vec  `cbor:"5,keyasint"`
	VelocityNED     Vec  `cbor:"6,keyasint"`
	AngularVelocity Vec  `cbor:"7,keyasint"`
	AccelTrue       Vec  `cbor:"8,keyasint"`
}

// Sample converts to the codec input
func (e IMUEvent) Sample() hil.IMUSample {
	return hil.IMUSample{
		Accel:           e.Accel.hil(),
		Gyro:            e.Gyro.hil(),
		Mag:             e.Mag.hil(),
		Attitude:        e.Attitude.hil(),
		Position:        e.Position.hil(),
		VelocityBody:    e.VelocityBody.hil(),
		VelocityNED:     e.VelocityNED.hil(),
		AngularVelocity: e.AngularVelocity.hil(),
		AccelTrue:       e.AccelTrue.hil(),
	}
}

// GPSEvent is a GNSS fix; velocity is [north, east, up]
type GPSEvent struct {
	TimeUs    uint64  `cbor:"0,keyasint"`
	Latitude  float64 `cbor:"1,keyasint"` // degrees
	Longitude float64 `cbor:"2,keyasint"` // degrees
	Altitude  float64 `cbor:"3,keyasint"`
	Eph       float64 `cbor:"4,keyasint"`
	Epv       float64 `cbor:"5,keyasint"`
	Speed     float64 `cbor:"6,keyasint"`
	Velocity  Vec     `cbor:"7,keyasint"`
}

func (e GPSEvent) Sample() hil.GPSSample {
	return hil.GPSSample{
		Time:          time.Duration(e.TimeUs) * time.Microsecond,
		LatitudeDeg:   e.Latitude,
		LongitudeDeg:  e.Longitude,
		Altitude:      e.Altitude,
		Eph:           e.Eph,
		Epv:           e.Epv,
		Speed:         e.Speed,
		VelocityNorth: e.Velocity[0],
		VelocityEast:  e.Velocity[1],
		VelocityUp:    e.Velocity[2],
	}
}

// GroundtruthEvent is the exact global position in radians
type GroundtruthEvent struct {
	Latitude  float64 `cbor:"0,keyasint"`
	Longitude float64 `cbor:"1,keyasint"`
	Altitude  float64 `cbor:"2,keyasint"`
}

func (e GroundtruthEvent) Sample() hil.Groundtruth {
	return hil.Groundtruth{LatitudeRad: e.Latitude, LongitudeRad: e.Longitude, Altitude: e.Altitude}
}

// RangeEvent is a lidar or sonar reading
type RangeEvent struct {
	TimeMs  uint32  `cbor:"0,keyasint,omitempty"`
	Min     float64 `cbor:"1,keyasint"`
	Max     float64 `cbor:"2,keyasint"`
	Current float64 `cbor:"3,keyasint"`
}

func (e RangeEvent) Sample() hil.RangeSample {
	return hil.RangeSample{TimeMs: e.TimeMs, Min: e.Min, Max: e.Max, Current: e.Current}
}

type OpticalFlowEvent struct {
	SensorID            uint8   `cbor:"0,keyasint"`
	IntegrationTimeUs   uint32  `cbor:"1,keyasint"`
	IntegratedX         float64 `cbor:"2,keyasint"`
	IntegratedY         float64 `cbor:"3,keyasint"`
	Temperature         float64 `cbor:"4,keyasint"`
	Quality             uint8   `cbor:"5,keyasint"`
	TimeDeltaDistanceUs uint32  `cbor:"6,keyasint"`
}

func (e OpticalFlowEvent) Sample() hil.OpticalFlowSample {
	return hil.OpticalFlowSample{
		SensorID:            e.SensorID,
		IntegrationTimeUs:   e.IntegrationTimeUs,
		IntegratedX:         e.IntegratedX,
		IntegratedY:         e.IntegratedY,
		Temperature:         e.Temperature,
		Quality:             e.Quality,
		TimeDeltaDistanceUs: e.TimeDeltaDistanceUs,
	}
}

type IRLockEvent struct {
	Signature uint8   `cbor:"0,keyasint"`
	PosX      float64 `cbor:"1,keyasint"`
	PosY      float64 `cbor:"2,keyasint"`
	SizeX     float64 `cbor:"3,keyasint"`
	SizeY     float64 `cbor:"4,keyasint"`
}

func (e IRLockEvent) Sample() hil.IRLockSample {
	return hil.IRLockSample{Signature: e.Signature, PosX: e.PosX, PosY: e.PosY, SizeX: e.SizeX, SizeY: e.SizeY}
}

// VisionEvent is an ENU pose; orientation is [roll, pitch, yaw]
type VisionEvent struct {
	Usec        uint64 `cbor:"0,keyasint"`
	Position    Vec    `cbor:"1,keyasint"`
	Orientation Vec    `cbor:"2,keyasint"`
}

func (e VisionEvent) Sample() hil.VisionSample {
	return hil.VisionSample{
		Usec: e.Usec,
		X:    e.Position[0], Y: e.Position[1], Z: e.Position[2],
		Roll: e.Orientation[0], Pitch: e.Orientation[1], Yaw: e.Orientation[2],
	}
}

// JointState is a measured joint position and velocity
type JointState struct {
	Position float64 `cbor:"0,keyasint"`
	Velocity float64 `cbor:"1,keyasint"`
}

// TickEvent advances simulation time. Joints reports the state of every
// joint the bridge drives, keyed by joint name.
type TickEvent struct {
	TimeUs  uint64                `cbor:"0,keyasint"`
	Gravity Vec                   `cbor:"1,keyasint"`
	Joints  map[string]JointState `cbor:"2,keyasint,omitempty"`
}

// Context converts to the codec simulation context
func (e TickEvent) Context() hil.SimContext {
	return hil.SimContext{
		Time:    time.Duration(e.TimeUs) * time.Microsecond,
		Gravity: e.Gravity.hil(),
	}
}

// Joint command modes
const (
	CommandForce    uint8 = 0
	CommandPosition uint8 = 1
	CommandTarget   uint8 = 2
)

// JointCommand is what the simulator should apply to one joint
type JointCommand struct {
	Mode  uint8   `cbor:"0,keyasint"`
	Value float64 `cbor:"1,keyasint"`
}

// ActuatorEvent is the bridge's answer to a tick
type ActuatorEvent struct {
	Controls [16]float64             `cbor:"0,keyasint"`
	Armed    bool                    `cbor:"1,keyasint"`
	TimeUs   uint64                  `cbor:"2,keyasint"`
	Joints   map[string]JointCommand `cbor:"3,keyasint,omitempty"`
}

// Encode builds a [kind, payload] message
func Encode(kind Kind, payload any) ([]byte, error) {
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return cbor.Marshal(envelope{Kind: kind, Payload: raw})
}

// Decode splits a message into its kind and undecoded payload
func Decode(data []byte) (Kind, cbor.RawMessage, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR message")
	}
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return env.Kind, env.Payload, nil
}

// DecodeEvent decodes a simulator message into its typed event
func DecodeEvent(data []byte) (Kind, any, error) {
	kind, raw, err := Decode(data)
	if err != nil {
		return 0, nil, err
	}

	var ev any
	switch kind {
	case KindIMU:
		ev = new(IMUEvent)
	case KindGPS:
		ev = new(GPSEvent)
	case KindGroundtruth:
		ev = new(GroundtruthEvent)
	case KindLidar, KindSonar:
		ev = new(RangeEvent)
	case KindOpticalFlow:
		ev = new(OpticalFlowEvent)
	case KindIRLock:
		ev = new(IRLockEvent)
	case KindVision:
		ev = new(VisionEvent)
	case KindTick:
		ev = new(TickEvent)
	case KindActuators:
		ev = new(ActuatorEvent)
	default:
		return kind, nil, fmt.Errorf("unknown event kind %s", kind)
	}
	if err := cbor.Unmarshal(raw, ev); err != nil {
		return kind, nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return kind, ev, nil
}
