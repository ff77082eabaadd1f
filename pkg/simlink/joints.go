// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simlink

import (
	"sync"

	"github.com/Thermoquad/hilbridge/pkg/bridge"
	"github.com/Thermoquad/hilbridge/pkg/config"
)

// JointBank mirrors the simulator's joints. Measurements arrive with each
// tick; commands are collected and returned with the actuator event.
type JointBank struct {
	mu       sync.Mutex
	joints   map[string]*remoteJoint
	commands map[string]JointCommand
}

// NewJointBank creates an empty bank
func NewJointBank() *JointBank {
	return &JointBank{
		joints:   make(map[string]*remoteJoint),
		commands: make(map[string]JointCommand),
	}
}

// Joint returns the driver for a named joint, creating it on first use
func (b *JointBank) Joint(name string) bridge.JointDriver {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.joints[name]
	if !ok {
		j = &remoteJoint{bank: b, name: name}
		b.joints[name] = j
	}
	return j
}

// Update stores the measured joint states of a tick
func (b *JointBank) Update(states map[string]JointState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, st := range states {
		if j, ok := b.joints[name]; ok {
			j.state = st
		}
	}
}

// TakeCommands returns and clears the commands issued since the last call
func (b *JointBank) TakeCommands() map[string]JointCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return nil
	}
	out := b.commands
	b.commands = make(map[string]JointCommand)
	return out
}

func (b *JointBank) command(name string, mode uint8, value float64) {
	b.mu.Lock()
	b.commands[name] = JointCommand{Mode: mode, Value: value}
	b.mu.Unlock()
}

type remoteJoint struct {
	bank  *JointBank
	name  string
	state JointState // guarded by bank.mu
}

func (j *remoteJoint) Position() float64 {
	j.bank.mu.Lock()
	defer j.bank.mu.Unlock()
	return j.state.Position
}

func (j *remoteJoint) Velocity() float64 {
	j.bank.mu.Lock()
	defer j.bank.mu.Unlock()
	return j.state.Velocity
}

func (j *remoteJoint) SetForce(force float64) { j.bank.command(j.name, CommandForce, force) }
func (j *remoteJoint) SetPosition(position float64) {
	j.bank.command(j.name, CommandPosition, position)
}
func (j *remoteJoint) PublishTarget(value float64) { j.bank.command(j.name, CommandTarget, value) }

// BindJoints attaches a PID joint to every configured channel that names
// a simulator joint. Returns the number of joints bound.
func BindJoints(b *bridge.Bridge, channels []config.ChannelConfig, bank *JointBank) int {
	n := 0
	for i, ch := range channels {
		if ch.Joint == "" {
			continue
		}
		joint := bridge.NewPIDJoint(bank.Joint(ch.Joint), bridge.PIDFromConfig(ch.PID))
		b.SetJoint(i, joint, bridge.ControlType(ch.ControlType))
		n++
	}
	return n
}
