// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

// flowMinStepUs is the smallest gyro integration step
const flowMinStepUs = 1000

// FlowAccumulator integrates body rates between optical-flow samples.
// A rate is folded in only once more than 1 ms has elapsed since the last
// fold; shorter steps carry over to the next one.
type FlowAccumulator struct {
	sum     Vec3
	lastUs  uint64
	started bool
}

// Add integrates gyro (rad/s) up to timeUs
func (a *FlowAccumulator) Add(timeUs uint64, gyro Vec3) {
	if !a.started {
		a.lastUs = timeUs
		a.started = true
		return
	}
	if timeUs <= a.lastUs {
		return
	}
	dt := timeUs - a.lastUs
	if dt > flowMinStepUs {
		a.sum = a.sum.Add(gyro.Scale(float64(dt) / 1e6))
		a.lastUs = timeUs
	}
}

// Sum returns the integrated angle since the last Take, in radians
func (a *FlowAccumulator) Sum() Vec3 {
	return a.sum
}

// Take returns the integrated angle and resets it to zero
func (a *FlowAccumulator) Take() Vec3 {
	sum := a.sum
	a.sum = Vec3{}
	return sum
}
