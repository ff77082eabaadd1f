// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/hilbridge/pkg/config"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPID_Proportional(t *testing.T) {
	p := &PID{P: 2}
	if got := p.Update(1, 10*time.Millisecond); !approx(got, -2, 1e-12) {
		t.Errorf("Update() = %f, want -2", got)
	}
	if got := p.Update(-0.5, 10*time.Millisecond); !approx(got, 1, 1e-12) {
		t.Errorf("Update() = %f, want 1", got)
	}
}

func TestPID_Integral(t *testing.T) {
	p := &PID{I: 1}
	for i := 0; i < 10; i++ {
		p.Update(1, 100*time.Millisecond)
	}
	if got := p.Update(0, 100*time.Millisecond); !approx(got, -1, 1e-9) {
		t.Errorf("Update() = %f, want -1 after 1s of unit error", got)
	}
}

func TestPID_IntegralClamp(t *testing.T) {
	p := &PID{I: 1, IMax: 0.2, IMin: -0.2}
	for i := 0; i < 50; i++ {
		p.Update(1, 100*time.Millisecond)
	}
	if got := p.Update(0, 100*time.Millisecond); !approx(got, -0.2, 1e-9) {
		t.Errorf("Update() = %f, want -0.2", got)
	}
	// Windup was discarded so the term recovers immediately
	if got := p.Update(-1, 100*time.Millisecond); !approx(got, -0.1, 1e-9) {
		t.Errorf("Update() = %f, want -0.1", got)
	}
}

func TestPID_Derivative(t *testing.T) {
	p := &PID{D: 0.1}
	if got := p.Update(0, 10*time.Millisecond); got != 0 {
		t.Errorf("first Update() = %f, want 0", got)
	}
	if got := p.Update(1, 10*time.Millisecond); !approx(got, -10, 1e-9) {
		t.Errorf("Update() = %f, want -10", got)
	}
}

func TestPID_CommandLimits(t *testing.T) {
	p := &PID{P: 100, CmdMax: 5, CmdMin: -5}
	if got := p.Update(1, time.Millisecond); got != -5 {
		t.Errorf("Update() = %f, want -5", got)
	}
	if got := p.Update(-1, time.Millisecond); got != 5 {
		t.Errorf("Update() = %f, want 5", got)
	}

	// Limits with max <= min are ignored
	p = &PID{P: 100}
	if got := p.Update(1, time.Millisecond); got != -100 {
		t.Errorf("Update() = %f, want -100 without limits", got)
	}
}

func TestPID_ZeroStepKeepsCommand(t *testing.T) {
	p := &PID{P: 1}
	p.Update(3, time.Millisecond)
	if got := p.Update(10, 0); got != -3 {
		t.Errorf("Update(dt=0) = %f, want previous command -3", got)
	}
}

func TestPID_Reset(t *testing.T) {
	p := &PID{I: 1, D: 1}
	p.Update(1, time.Second)
	p.Reset()
	if got := p.Update(0, time.Second); got != 0 {
		t.Errorf("Update() after Reset = %f, want 0", got)
	}
}

func TestPIDFromConfig(t *testing.T) {
	p := PIDFromConfig(config.PIDConfig{P: 1, I: 2, D: 3, IMax: 4, IMin: -4, CmdMax: 5, CmdMin: -5})
	if p.P != 1 || p.I != 2 || p.D != 3 || p.IMax != 4 || p.IMin != -4 || p.CmdMax != 5 || p.CmdMin != -5 {
		t.Errorf("PIDFromConfig() = %+v", p)
	}
}
