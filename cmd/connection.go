// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/Thermoquad/hilbridge/pkg/link"
	"github.com/Thermoquad/hilbridge/pkg/simlink"
)

// PasswordEnv holds the WebSocket password when set
const PasswordEnv = "HILBRIDGE_PASSWORD"

// Connection provides a common interface for reading/writing bytes from
// serial, UDP or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = simlink.ErrConnectionClosed

// WebSocketConnection wraps a WebSocket connection carrying raw MAVLink bytes
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// UDPConnection listens for datagrams and replies to the last sender
type UDPConnection struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (u *UDPConnection) Read(p []byte) (int, error) {
	n, from, err := u.conn.ReadFromUDP(p)
	if err == nil {
		u.peer = from
	}
	return n, err
}

func (u *UDPConnection) Write(p []byte) (int, error) {
	if u.peer == nil {
		return 0, fmt.Errorf("no UDP peer known")
	}
	return u.conn.WriteToUDP(p, u.peer)
}

func (u *UDPConnection) Close() error {
	return u.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	return link.OpenSerialPort(portName, baudRate)
}

// OpenUDPConnection binds a UDP socket on host:port
func OpenUDPConnection(listen string) (Connection, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, fmt.Errorf("invalid UDP address %q: %v", listen, err)
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UDP port %q: %v", portStr, err)
	}
	addr, err := link.ParseAddr(host, port)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %v", addr, err)
	}
	return &UDPConnection{conn: conn}, nil
}

// OpenWebSocketConnection opens a WebSocket carrying raw MAVLink bytes.
// Dialing, TLS and Basic auth are shared with the simulator client.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	conn, err := simlink.DialConn(context.Background(), simlink.Config{
		URL:         wsURL,
		Username:    username,
		Password:    password,
		NoSSLVerify: skipSSLVerify,
	})
	if err != nil {
		return nil, err
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// promptPassword asks for a password only when a username is set
func promptPassword(username string) (string, error) {
	if username == "" {
		return "", nil
	}
	return GetPassword()
}

// OpenConnection opens a serial, UDP or WebSocket connection based on flags
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		password, err := promptPassword(wsUsername)
		if err != nil {
			return nil, "", err
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if udpListen != "" {
		conn, err := OpenUDPConnection(udpListen)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("UDP: %s", udpListen), nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("one of --port, --udp or --url must be specified")
}
