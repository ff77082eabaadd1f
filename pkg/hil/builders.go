// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// hilSensorAllFields marks every HIL_SENSOR field as updated
const hilSensorAllFields = 4095

// SensorInput bundles what BuildSensor needs beyond the IMU sample
type SensorInput struct {
	HomeAltitude float64 // m AMSL
	Tailsitter   bool    // airspeed along body z instead of body x
	Noise        float64 // static pressure noise, Pa
}

// BuildSensor builds HIL_SENSOR from an IMU sample
func BuildSensor(sim SimContext, s IMUSample, in SensorInput) *common.MessageHilSensor {
	airspeed := s.VelocityBody.X
	if in.Tailsitter {
		airspeed = s.VelocityBody.Z
	}
	baro := Barometer(in.HomeAltitude-s.Position.Z, airspeed, in.Noise, sim.Gravity.Norm())

	return &common.MessageHilSensor{
		TimeUsec:      sim.Micros(),
		Xacc:          float32(s.Accel.X),
		Yacc:          float32(s.Accel.Y),
		Zacc:          float32(s.Accel.Z),
		Xgyro:         float32(s.Gyro.X),
		Ygyro:         float32(s.Gyro.Y),
		Zgyro:         float32(s.Gyro.Z),
		Xmag:          float32(s.Mag.X),
		Ymag:          float32(s.Mag.Y),
		Zmag:          float32(s.Mag.Z),
		AbsPressure:   float32(baro.AbsPressure),
		DiffPressure:  float32(baro.DiffPressure),
		PressureAlt:   float32(baro.PressureAlt),
		Temperature:   float32(baro.Temperature),
		FieldsUpdated: hilSensorAllFields,
	}
}

// BuildStateQuaternion builds HIL_STATE_QUATERNION from the vehicle state
// and the last known groundtruth position
func BuildStateQuaternion(sim SimContext, s IMUSample, gt Groundtruth) *common.MessageHilStateQuaternion {
	return &common.MessageHilStateQuaternion{
		TimeUsec: sim.Micros(),
		AttitudeQuaternion: [4]float32{
			float32(s.Attitude.W),
			float32(s.Attitude.X),
			float32(s.Attitude.Y),
			float32(s.Attitude.Z),
		},
		Rollspeed:    float32(s.AngularVelocity.X),
		Pitchspeed:   float32(s.AngularVelocity.Y),
		Yawspeed:     float32(s.AngularVelocity.Z),
		Lat:          clampInt32(gt.LatitudeRad * 180 / math.Pi * 1e7),
		Lon:          clampInt32(gt.LongitudeRad * 180 / math.Pi * 1e7),
		Alt:          clampInt32(gt.Altitude * 1000),
		Vx:           clampInt16(s.VelocityNED.X * 100),
		Vy:           clampInt16(s.VelocityNED.Y * 100),
		Vz:           clampInt16(s.VelocityNED.Z * 100),
		IndAirspeed:  clampUint16(s.VelocityBody.X * 100),
		TrueAirspeed: clampUint16(s.VelocityNED.Norm() * 100),
		Xacc:         clampInt16(s.AccelTrue.X * 1000),
		Yacc:         clampInt16(s.AccelTrue.Y * 1000),
		Zacc:         clampInt16(s.AccelTrue.Z * 1000),
	}
}

// BuildGPS builds HIL_GPS from a GNSS fix
func BuildGPS(g GPSSample) *common.MessageHilGps {
	cog := math.Atan2(g.VelocityEast, g.VelocityNorth) * 180 / math.Pi
	if cog < 0 {
		cog += 360
	}
	return &common.MessageHilGps{
		TimeUsec:          uint64(g.Time.Microseconds()),
		FixType:           3,
		Lat:               clampInt32(g.LatitudeDeg * 1e7),
		Lon:               clampInt32(g.LongitudeDeg * 1e7),
		Alt:               clampInt32(g.Altitude * 1000),
		Eph:               clampUint16(g.Eph * 100),
		Epv:               clampUint16(g.Epv * 100),
		Vel:               clampUint16(g.Speed * 100),
		Vn:                clampInt16(g.VelocityNorth * 100),
		Ve:                clampInt16(g.VelocityEast * 100),
		Vd:                clampInt16(-g.VelocityUp * 100),
		Cog:               clampUint16(cog * 100),
		SatellitesVisible: 10,
	}
}

// BuildLidar builds a downward-facing laser DISTANCE_SENSOR
func BuildLidar(r RangeSample) *common.MessageDistanceSensor {
	m := buildRange(r)
	m.TimeBootMs = r.TimeMs
	m.Type = common.MAV_DISTANCE_SENSOR_LASER
	m.Id = 0
	m.Orientation = common.MAV_SENSOR_ROTATION_PITCH_270
	return m
}

// BuildSonar builds a forward-facing ultrasound DISTANCE_SENSOR stamped
// with simulation time
func BuildSonar(sim SimContext, r RangeSample) *common.MessageDistanceSensor {
	m := buildRange(r)
	m.TimeBootMs = sim.Millis()
	m.Type = common.MAV_DISTANCE_SENSOR_ULTRASOUND
	m.Id = 1
	m.Orientation = common.MAV_SENSOR_ROTATION_NONE
	return m
}

func buildRange(r RangeSample) *common.MessageDistanceSensor {
	return &common.MessageDistanceSensor{
		MinDistance:     clampUint16(r.Min * 100),
		MaxDistance:     clampUint16(r.Max * 100),
		CurrentDistance: clampUint16(r.Current * 100),
	}
}

// BuildOpticalFlow builds HIL_OPTICAL_FLOW. gyro is the body rotation
// integrated over the flow window; it is remapped to the flow sensor axes
// and dropped when the sample has no quality.
func BuildOpticalFlow(sim SimContext, f OpticalFlowSample, gyro Vec3, distance float64) *common.MessageHilOpticalFlow {
	m := &common.MessageHilOpticalFlow{
		TimeUsec:            sim.Micros(),
		SensorId:            f.SensorID,
		IntegrationTimeUs:   f.IntegrationTimeUs,
		IntegratedX:         float32(f.IntegratedX),
		IntegratedY:         float32(f.IntegratedY),
		Temperature:         clampInt16(f.Temperature),
		Quality:             f.Quality,
		TimeDeltaDistanceUs: f.TimeDeltaDistanceUs,
		Distance:            float32(distance),
	}
	if f.Quality > 0 {
		m.IntegratedXgyro = float32(-gyro.Y)
		m.IntegratedYgyro = float32(gyro.X)
		m.IntegratedZgyro = float32(-gyro.Z)
	}
	return m
}

// BuildLandingTarget builds LANDING_TARGET for an IR-lock beacon
func BuildLandingTarget(sim SimContext, s IRLockSample) *common.MessageLandingTarget {
	return &common.MessageLandingTarget{
		TimeUsec:      sim.Micros(),
		TargetNum:     s.Signature,
		AngleX:        float32(s.PosX),
		AngleY:        float32(s.PosY),
		SizeX:         float32(s.SizeX),
		SizeY:         float32(s.SizeY),
		PositionValid: 0,
		Type:          common.LANDING_TARGET_TYPE_LIGHT_BEACON,
	}
}

// BuildVisionPosition builds VISION_POSITION_ESTIMATE, converting the ENU
// pose to NED
func BuildVisionPosition(v VisionSample) *common.MessageVisionPositionEstimate {
	return &common.MessageVisionPositionEstimate{
		Usec:  v.Usec,
		X:     float32(v.Y),
		Y:     float32(-v.X),
		Z:     float32(-v.Z),
		Roll:  float32(v.Pitch),
		Pitch: float32(-v.Roll),
		Yaw:   float32(-v.Yaw),
	}
}

func clampInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

func clampUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

func clampInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
