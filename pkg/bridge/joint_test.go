// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"testing"
	"time"
)

// fakeDriver records what a joint was told to do
type fakeDriver struct {
	position, velocity float64
	force              float64
	setPosition        float64
	published          []float64
	forceCalls         int
}

func (d *fakeDriver) Position() float64       { return d.position }
func (d *fakeDriver) Velocity() float64       { return d.velocity }
func (d *fakeDriver) SetForce(f float64)      { d.force = f; d.forceCalls++ }
func (d *fakeDriver) SetPosition(p float64)   { d.setPosition = p }
func (d *fakeDriver) PublishTarget(v float64) { d.published = append(d.published, v) }

func TestPIDJoint_Velocity(t *testing.T) {
	d := &fakeDriver{velocity: 10}
	j := NewPIDJoint(d, &PID{P: 0.5})
	j.SetTarget(30, ControlVelocity, 4*time.Millisecond)
	// err = 10 - 30, force = -(0.5 * -20)
	if d.force != 10 {
		t.Errorf("force = %f, want 10", d.force)
	}
}

func TestPIDJoint_Position(t *testing.T) {
	d := &fakeDriver{position: 1.5}
	j := NewPIDJoint(d, &PID{P: 2})
	j.SetTarget(0.5, ControlPosition, 4*time.Millisecond)
	if d.force != -2 {
		t.Errorf("force = %f, want -2", d.force)
	}
}

func TestPIDJoint_Kinematic(t *testing.T) {
	d := &fakeDriver{}
	j := NewPIDJoint(d, &PID{P: 1})
	j.SetTarget(0.7, ControlPositionKinematic, time.Millisecond)
	if d.setPosition != 0.7 {
		t.Errorf("position = %f, want 0.7", d.setPosition)
	}
	if d.forceCalls != 0 {
		t.Error("kinematic control must not apply force")
	}
}

func TestPIDJoint_Topic(t *testing.T) {
	d := &fakeDriver{}
	j := NewPIDJoint(d, nil)
	j.SetTarget(0.25, ControlPositionTopic, time.Millisecond)
	j.SetTarget(0.5, ControlPositionTopic, time.Millisecond)
	if len(d.published) != 2 || d.published[1] != 0.5 {
		t.Errorf("published = %v", d.published)
	}
}

func TestPIDJoint_UndefinedTypeIgnored(t *testing.T) {
	d := &fakeDriver{}
	j := NewPIDJoint(d, &PID{P: 1})
	j.SetTarget(1, ControlType("torque"), time.Millisecond)
	if d.forceCalls != 0 || d.setPosition != 0 || len(d.published) != 0 {
		t.Error("undefined control type should leave the joint alone")
	}
}
