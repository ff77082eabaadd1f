// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !(linux || darwin || freebsd)

package link

import (
	"errors"
	"net"
	"os"
	"time"
)

// recvNonBlocking approximates a zero-timeout receive with a short deadline
func recvNonBlocking(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, nil, err
	}
	n, src, err := conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, src, nil
}
