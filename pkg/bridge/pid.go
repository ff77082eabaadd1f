// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "time"

// PID is a joint controller acting on the error (measured - target).
// The output is the negated PID sum so a positive error pushes back.
// Limits apply only when max > min.
//
// Not safe for concurrent use.
type PID struct {
	P, I, D        float64
	IMax, IMin     float64
	CmdMax, CmdMin float64

	iErr     float64
	prevErr  float64
	havePrev bool
	cmd      float64
}

// Update advances the controller by dt and returns the new command
func (p *PID) Update(err float64, dt time.Duration) float64 {
	if dt <= 0 {
		return p.cmd
	}
	sec := dt.Seconds()

	p.iErr += err * sec
	iTerm := p.I * p.iErr
	if p.IMax > p.IMin && p.I != 0 {
		if iTerm > p.IMax {
			iTerm = p.IMax
			p.iErr = iTerm / p.I
		} else if iTerm < p.IMin {
			iTerm = p.IMin
			p.iErr = iTerm / p.I
		}
	}

	derivative := 0.0
	if p.havePrev {
		derivative = (err - p.prevErr) / sec
	}
	p.prevErr = err
	p.havePrev = true

	cmd := -(p.P*err + iTerm + p.D*derivative)
	if p.CmdMax > p.CmdMin {
		if cmd > p.CmdMax {
			cmd = p.CmdMax
		}
		if cmd < p.CmdMin {
			cmd = p.CmdMin
		}
	}
	p.cmd = cmd
	return cmd
}

// Reset clears the integral and derivative history
func (p *PID) Reset() {
	p.iErr = 0
	p.prevErr = 0
	p.havePrev = false
	p.cmd = 0
}
