// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hil converts simulated sensor samples into MAVLink HIL messages
// and HIL actuator controls back into per-channel actuator references.
//
// Vehicle quantities arrive already expressed in the autopilot's frames:
// body vectors in FRD, world vectors in NED. Builders only scale and
// pack them into message fields.
package hil

import (
	"math"
	"time"
)

// Vec3 is a three-component vector
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Scale returns v * s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Quaternion is a rotation in W, X, Y, Z order
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the zero rotation
var IdentityQuaternion = Quaternion{W: 1}

// SimContext carries the simulation state an encoder needs for one tick
type SimContext struct {
	Time    time.Duration // simulation time since start
	Gravity Vec3          // world gravity vector, m/s^2
}

// Micros returns the simulation time in microseconds
func (c SimContext) Micros() uint64 {
	if c.Time < 0 {
		return 0
	}
	return uint64(c.Time / time.Microsecond)
}

// Millis returns the simulation time in milliseconds
func (c SimContext) Millis() uint32 {
	if c.Time < 0 {
		return 0
	}
	return uint32(c.Time / time.Millisecond)
}

// IMUSample is one IMU reading plus the vehicle state sampled with it
type IMUSample struct {
	Accel           Vec3       // specific force, body FRD, m/s^2
	Gyro            Vec3       // angular rate, body FRD, rad/s
	Mag             Vec3       // magnetic field, body FRD, gauss
	Attitude        Quaternion // body to NED rotation
	Position        Vec3       // NED position relative to home, m
	VelocityBody    Vec3       // body FRD velocity, m/s
	VelocityNED     Vec3       // NED velocity, m/s
	AngularVelocity Vec3       // true body rates, rad/s
	AccelTrue       Vec3       // true body acceleration, m/s^2
}

// GPSSample is one GNSS fix
type GPSSample struct {
	Time          time.Duration
	LatitudeDeg   float64
	LongitudeDeg  float64
	Altitude      float64 // m AMSL
	Eph, Epv      float64 // m
	Speed         float64 // ground speed, m/s
	VelocityNorth float64
	VelocityEast  float64
	VelocityUp    float64
}

// Groundtruth is the simulator's exact global position
type Groundtruth struct {
	LatitudeRad  float64
	LongitudeRad float64
	Altitude     float64 // m AMSL
}

// RangeSample is a rangefinder reading in metres
type RangeSample struct {
	TimeMs  uint32 // sensor timestamp, lidar only
	Min     float64
	Max     float64
	Current float64
}

// OpticalFlowSample is one integrated optical-flow reading
type OpticalFlowSample struct {
	SensorID            uint8
	IntegrationTimeUs   uint32
	IntegratedX         float64
	IntegratedY         float64
	Temperature         float64 // centi-degrees Celsius
	Quality             uint8
	TimeDeltaDistanceUs uint32
}

// IRLockSample is a beacon detection from the IR-lock camera
type IRLockSample struct {
	Signature uint8
	PosX      float64 // rad
	PosY      float64 // rad
	SizeX     float64
	SizeY     float64
}

// VisionSample is a visual-odometry pose in ENU
type VisionSample struct {
	Usec             uint64
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
}
