// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

import "time"

// DefaultUpdateInterval is the sensor emission period (250 Hz)
const DefaultUpdateInterval = 4 * time.Millisecond

// RateGate decides when enough simulation time has passed to emit again.
// A zero interval opens the gate on every tick.
type RateGate struct {
	Interval time.Duration
	last     time.Duration
}

// Ready reports whether now is at least one interval past the last emission
func (g *RateGate) Ready(now time.Duration) bool {
	if g.Interval <= 0 {
		return true
	}
	return now-g.last >= g.Interval
}

// Mark records an emission at now
func (g *RateGate) Mark(now time.Duration) {
	g.last = now
}

// Reset forgets the last emission
func (g *RateGate) Reset() {
	g.last = 0
}
