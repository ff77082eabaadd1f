// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// Router chooses the transport for outbound frames and fans inbound frames
// out to the relay peer and the decode handler.
//
// With a serial link attached, frames sent without a destination port go
// to the serial queue, frames from UDP are mirrored onto serial, and frames
// from serial are relayed to the ground station port over UDP. Every
// inbound frame reaches the decode handler exactly once.
type Router struct {
	mu      sync.RWMutex
	serial  *SerialLink
	udp     *UDPLink
	qgcPort int
	decode  FrameHandler

	sendWarn rate.Sometimes
}

// NewRouter creates a router delivering inbound frames to decode.
// qgcPort is the UDP port serial frames are relayed to.
func NewRouter(decode FrameHandler, qgcPort int) *Router {
	return &Router{
		decode:   decode,
		qgcPort:  qgcPort,
		sendWarn: rate.Sometimes{Interval: time.Second},
	}
}

// AttachUDP sets the UDP transport
func (r *Router) AttachUDP(u *UDPLink) {
	r.mu.Lock()
	r.udp = u
	r.mu.Unlock()
}

// StartSerial starts a serial link on port whose frames flow through the router
func (r *Router) StartSerial(ctx context.Context, port Port, cfg SerialConfig) error {
	s, err := StartSerialLink(ctx, port, cfg, r.HandleSerialFrame)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.serial = s
	r.mu.Unlock()
	return nil
}

// SerialEnabled reports whether a serial link is attached
func (r *Router) SerialEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.serial != nil
}

// UDP returns the attached UDP link, nil if none
func (r *Router) UDP() *UDPLink {
	_, udp := r.links()
	return udp
}

func (r *Router) links() (*SerialLink, *UDPLink) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.serial, r.udp
}

// Send routes an outbound frame. A zero destPort selects the serial queue
// when serial is enabled; otherwise the frame goes to the UDP peer, with
// destPort overriding the peer port when non-zero.
func (r *Router) Send(f *mavlink.Frame, destPort int) {
	serial, udp := r.links()
	if serial != nil && destPort == 0 {
		serial.Send(f)
		return
	}
	if udp == nil {
		return
	}
	if err := udp.SendTo(f, destPort); err != nil {
		r.sendWarn.Do(func() {
			log.Printf("[udp] %v", err)
		})
	}
}

// HandleUDPFrame mirrors a network frame onto serial and decodes it
func (r *Router) HandleUDPFrame(f *mavlink.Frame) {
	if serial, _ := r.links(); serial != nil {
		serial.Send(f)
	}
	if r.decode != nil {
		r.decode(f)
	}
}

// HandleSerialFrame relays a serial frame to the ground station and decodes it
func (r *Router) HandleSerialFrame(f *mavlink.Frame) {
	if _, udp := r.links(); udp != nil {
		if err := udp.SendTo(f, r.qgcPort); err != nil {
			r.sendWarn.Do(func() {
				log.Printf("[router] relay to ground station failed: %v", err)
			})
		}
	}
	if r.decode != nil {
		r.decode(f)
	}
}

// Poll drains at most one pending UDP datagram without blocking
func (r *Router) Poll() int {
	_, udp := r.links()
	if udp == nil {
		return 0
	}
	n, err := udp.Poll(r.HandleUDPFrame)
	if err != nil {
		log.Printf("[udp] poll: %v", err)
	}
	return n
}

// Close shuts down both transports
func (r *Router) Close() {
	r.mu.Lock()
	serial, udp := r.serial, r.udp
	r.serial, r.udp = nil, nil
	r.mu.Unlock()

	if serial != nil {
		if err := serial.Close(); err != nil {
			log.Printf("[serial] close: %v", err)
		}
	}
	if udp != nil {
		if err := udp.Close(); err != nil {
			log.Printf("[udp] close: %v", err)
		}
	}
}
