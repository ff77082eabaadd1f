// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/hilbridge/pkg/config"
)

// ControlType selects how a joint follows its actuator target
type ControlType string

const (
	ControlVelocity          ControlType = config.ControlVelocity
	ControlPosition          ControlType = config.ControlPosition
	ControlPositionKinematic ControlType = config.ControlPositionKinematic
	ControlPositionTopic     ControlType = config.ControlPositionTopic
)

// Joint is anything that can follow an actuator target. dt is the
// simulation time since the previous tick.
type Joint interface {
	SetTarget(value float64, ct ControlType, dt time.Duration)
}

// JointDriver is the simulator-side handle of one joint
type JointDriver interface {
	Position() float64
	Velocity() float64
	SetForce(force float64)
	SetPosition(position float64)
	PublishTarget(value float64)
}

// PIDJoint drives a simulator joint. Velocity and position targets go
// through the PID as a force; kinematic targets set the position
// directly; topic targets are published as-is.
type PIDJoint struct {
	Driver JointDriver
	PID    *PID

	warn rate.Sometimes
}

// NewPIDJoint wraps a driver with a PID controller
func NewPIDJoint(driver JointDriver, pid *PID) *PIDJoint {
	if pid == nil {
		pid = &PID{}
	}
	return &PIDJoint{
		Driver: driver,
		PID:    pid,
		warn:   rate.Sometimes{Interval: 5 * time.Second},
	}
}

// SetTarget applies one control step
func (j *PIDJoint) SetTarget(value float64, ct ControlType, dt time.Duration) {
	switch ct {
	case ControlVelocity:
		j.Driver.SetForce(j.PID.Update(j.Driver.Velocity()-value, dt))
	case ControlPosition:
		j.Driver.SetForce(j.PID.Update(j.Driver.Position()-value, dt))
	case ControlPositionKinematic:
		j.Driver.SetPosition(value)
	case ControlPositionTopic:
		j.Driver.PublishTarget(value)
	default:
		j.warn.Do(func() {
			log.Printf("[bridge] joint control type %q undefined", ct)
		})
	}
}

// PIDFromConfig builds a controller from channel configuration
func PIDFromConfig(c config.PIDConfig) *PID {
	return &PID{
		P:      c.P,
		I:      c.I,
		D:      c.D,
		IMax:   c.IMax,
		IMin:   c.IMin,
		CmdMax: c.CmdMax,
		CmdMin: c.CmdMin,
	}
}
