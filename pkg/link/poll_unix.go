// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux || darwin || freebsd

package link

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// recvNonBlocking performs a zero-timeout receive on conn. It returns
// (0, nil, nil) when no datagram is pending.
func recvNonBlocking(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, err
	}

	var (
		n       int
		from    unix.Sockaddr
		recvErr error
	)
	err = rc.Read(func(fd uintptr) bool {
		n, from, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK) {
			return 0, nil, nil
		}
		return 0, nil, recvErr
	}

	var src *net.UDPAddr
	switch sa := from.(type) {
	case *unix.SockaddrInet4:
		src = &net.UDPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]).To4(), Port: sa.Port}
	case *unix.SockaddrInet6:
		src = &net.UDPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
	}
	return n, src, nil
}
