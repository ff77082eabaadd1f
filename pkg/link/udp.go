// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// UDP defaults matching the PX4 SITL plugin
const (
	DefaultMavlinkPort = 14560
	DefaultQGCPort     = 14550
)

// AnyAddr is the configuration sentinel for "accept any source"
const AnyAddr = "INADDR_ANY"

// maxDatagram is large enough for any UDP payload
const maxDatagram = 65535

// ParseAddr resolves an IPv4 host and port. An empty host or AnyAddr
// yields the unspecified address.
func ParseAddr(host string, port int) (*net.UDPAddr, error) {
	if port < 0 || port > 0xFFFF {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if host == "" || host == AnyAddr {
		return &net.UDPAddr{IP: net.IPv4zero, Port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid address %q", host)
	}
	return &net.UDPAddr{IP: ip.To4(), Port: port}, nil
}

// UDPLink is a bound datagram socket with a default peer. The peer starts
// as the configured destination and follows the source of the most
// recently received datagram.
type UDPLink struct {
	conn    *net.UDPConn
	peer    atomic.Pointer[net.UDPAddr]
	decoder *mavlink.Decoder
	stats   *mavlink.Statistics
	buf     []byte
}

// UDPConfig configures a UDPLink
type UDPConfig struct {
	Bind    *net.UDPAddr
	Peer    *net.UDPAddr
	Decoder []mavlink.DecoderOption
	Stats   *mavlink.Statistics
}

// ListenUDP binds the local socket
func ListenUDP(cfg UDPConfig) (*UDPLink, error) {
	conn, err := net.ListenUDP("udp4", cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.Bind, err)
	}

	u := &UDPLink{
		conn:    conn,
		decoder: mavlink.NewDecoder(cfg.Decoder...),
		stats:   cfg.Stats,
		buf:     make([]byte, maxDatagram),
	}
	if cfg.Peer != nil {
		peer := *cfg.Peer
		u.peer.Store(&peer)
	}
	return u, nil
}

// LocalAddr returns the bound address
func (u *UDPLink) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Peer returns the current default destination, or nil if none is known
func (u *UDPLink) Peer() *net.UDPAddr {
	return u.peer.Load()
}

// SendTo sends a frame to the current peer. A non-zero port replaces the
// peer's port for this datagram only.
func (u *UDPLink) SendTo(f *mavlink.Frame, port int) error {
	peer := u.peer.Load()
	if peer == nil {
		return fmt.Errorf("no UDP peer known")
	}
	dest := peer
	if port != 0 {
		dest = &net.UDPAddr{IP: peer.IP, Port: port, Zone: peer.Zone}
	}

	_, err := u.conn.WriteToUDP(f.Bytes(), dest)
	if u.stats != nil {
		if err != nil {
			u.stats.CountSendError()
		} else {
			u.stats.CountSent()
		}
	}
	if err != nil {
		return fmt.Errorf("send to %s: %w", dest, err)
	}
	return nil
}

// Poll reads at most one pending datagram without blocking and hands every
// frame it contains to handler. Returns the number of frames delivered.
func (u *UDPLink) Poll(handler FrameHandler) (int, error) {
	n, src, err := recvNonBlocking(u.conn, u.buf)
	if err != nil {
		return 0, fmt.Errorf("recv: %w", err)
	}
	if n == 0 && src == nil {
		return 0, nil
	}
	if src != nil {
		u.peer.Store(src)
	}

	// Datagrams carry whole frames
	u.decoder.Reset()
	delivered := 0
	for _, b := range u.buf[:n] {
		f, err := u.decoder.DecodeByte(b)
		if u.stats != nil {
			u.stats.Update(f, err)
		}
		if err != nil {
			log.Printf("[udp] discarded frame from %s: %v", src, err)
			continue
		}
		if f != nil {
			delivered++
			if handler != nil {
				handler(f)
			}
		}
	}
	return delivered, nil
}

// Close closes the socket
func (u *UDPLink) Close() error {
	return u.conn.Close()
}
