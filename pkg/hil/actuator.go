// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// MaxChannels is the number of controls carried by HIL_ACTUATOR_CONTROLS
const MaxChannels = 16

// DefaultActuatorTimeout is how long a reference stays valid without a new
// actuator frame
const DefaultActuatorTimeout = 200 * time.Millisecond

// ChannelMapping converts one raw control value into an actuator target
type ChannelMapping struct {
	Input        int // index into the controls array
	Offset       float64
	Scale        float64
	ZeroArmed    float64
	ZeroDisarmed float64
}

// Mapping holds one ChannelMapping per output channel
type Mapping []ChannelMapping

// DefaultMapping passes each control through unchanged
func DefaultMapping(n int) Mapping {
	m := make(Mapping, n)
	for i := range m {
		m[i] = ChannelMapping{Input: i, Scale: 1}
	}
	return m
}

// Validate checks channel count and input indices
func (m Mapping) Validate() error {
	if len(m) > MaxChannels {
		return fmt.Errorf("%d channels configured, at most %d supported", len(m), MaxChannels)
	}
	for i, ch := range m {
		if ch.Input < 0 || ch.Input >= MaxChannels {
			return fmt.Errorf("channel %d: input index %d out of range", i, ch.Input)
		}
	}
	return nil
}

// ActuatorReference is one complete set of actuator targets
type ActuatorReference struct {
	Values []float64
	Armed  bool
	Time   time.Duration // simulation time the frame was decoded
}

// IsArmed reports whether the safety-armed mode flag is set
func IsArmed(msg *common.MessageHilActuatorControls) bool {
	return msg.Mode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
}

// DecodeActuators applies the channel mapping to an actuator-control message.
// Disarmed frames yield each channel's disarmed zero regardless of controls.
func DecodeActuators(msg *common.MessageHilActuatorControls, m Mapping, now time.Duration) ActuatorReference {
	ref := ActuatorReference{
		Values: make([]float64, len(m)),
		Armed:  IsArmed(msg),
		Time:   now,
	}
	for i, ch := range m {
		if ref.Armed {
			ref.Values[i] = (float64(msg.Controls[ch.Input])+ch.Offset)*ch.Scale + ch.ZeroArmed
		} else {
			ref.Values[i] = ch.ZeroDisarmed
		}
	}
	return ref
}

// ActuatorState publishes the latest reference. Writers replace the whole
// reference at once so readers never see a partial update.
type ActuatorState struct {
	ref atomic.Pointer[ActuatorReference]
}

// Store replaces the current reference
func (s *ActuatorState) Store(ref ActuatorReference) {
	s.ref.Store(&ref)
}

// Load returns the current reference, or false before the first Store
func (s *ActuatorState) Load() (ActuatorReference, bool) {
	ref := s.ref.Load()
	if ref == nil {
		return ActuatorReference{}, false
	}
	return *ref, true
}

// Output returns the reference to apply at now: the stored values, or all
// zeros once the reference is older than timeout. ok is false until the
// first reference arrives.
func (s *ActuatorState) Output(now, timeout time.Duration) (values []float64, ok bool) {
	ref, ok := s.Load()
	if !ok {
		return nil, false
	}
	return ref.Output(now, timeout), true
}

// Output returns a copy of the values, or all zeros when the reference is
// older than timeout at now
func (r ActuatorReference) Output(now, timeout time.Duration) []float64 {
	values := make([]float64, len(r.Values))
	if timeout > 0 && now-r.Time > timeout {
		return values
	}
	copy(values, r.Values)
	return values
}
