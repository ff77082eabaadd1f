// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simlink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/hilbridge/pkg/bridge"
	"github.com/Thermoquad/hilbridge/pkg/hil"
)

// Observer is told about every tick result. It runs on the receive
// goroutine and must not block.
type Observer func(sim hil.SimContext, out bridge.Output)

// Session feeds simulator events into a bridge and answers each tick with
// the actuator reference.
type Session struct {
	Client  *Client
	Bridge  *bridge.Bridge
	Joints  *JointBank
	Observe Observer

	dropWarn rate.Sometimes
}

// NewSession creates a session. joints may be nil when no channel drives
// a simulator joint.
func NewSession(c *Client, b *bridge.Bridge, joints *JointBank) *Session {
	if joints == nil {
		joints = NewJointBank()
	}
	return &Session{
		Client:   c,
		Bridge:   b,
		Joints:   joints,
		dropWarn: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Run processes events until the context ends or the simulator goes away.
// A normal close by the simulator returns nil.
func (s *Session) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Client.conn.Close()
		case <-done:
		}
	}()

	for {
		kind, ev, err := s.Client.Next()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := s.Handle(kind, ev); err != nil {
			return err
		}
	}
}

// Handle processes one decoded event
func (s *Session) Handle(kind Kind, ev any) error {
	in := s.Bridge.Inputs()
	switch e := ev.(type) {
	case *IMUEvent:
		offer(s, kind, in.IMU, e.Sample())
	case *GPSEvent:
		offer(s, kind, in.GPS, e.Sample())
	case *GroundtruthEvent:
		offer(s, kind, in.Groundtruth, e.Sample())
	case *RangeEvent:
		if kind == KindSonar {
			offer(s, kind, in.Sonar, e.Sample())
		} else {
			offer(s, kind, in.Lidar, e.Sample())
		}
	case *OpticalFlowEvent:
		offer(s, kind, in.OpticalFlow, e.Sample())
	case *IRLockEvent:
		offer(s, kind, in.IRLock, e.Sample())
	case *VisionEvent:
		offer(s, kind, in.Vision, e.Sample())
	case *TickEvent:
		return s.tick(e)
	default:
		return fmt.Errorf("unexpected %s event from simulator", kind)
	}
	return nil
}

func (s *Session) tick(e *TickEvent) error {
	s.Joints.Update(e.Joints)
	sim := e.Context()
	out := s.Bridge.Tick(sim)
	if s.Observe != nil {
		s.Observe(sim, out)
	}

	// Joint commands go out even before the first actuator frame
	reply := ActuatorEvent{
		Armed:  out.Armed,
		TimeUs: e.TimeUs,
		Joints: s.Joints.TakeCommands(),
	}
	if !out.Published && reply.Joints == nil {
		return nil
	}
	copy(reply.Controls[:], out.Motor)
	if err := s.Client.Send(KindActuators, reply); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return fmt.Errorf("send actuators: %w", err)
	}
	return nil
}

// offer queues a sample without blocking the receive loop
func offer[T any](s *Session, kind Kind, ch chan T, v T) {
	select {
	case ch <- v:
	default:
		s.dropWarn.Do(func() {
			log.Printf("[simlink] %s queue full, dropping sample", kind)
		})
	}
}
