// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simlink

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned after the simulator connection has failed
var ErrConnectionClosed = errors.New("simulator connection closed")

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
)

// Config describes how to reach the simulator
type Config struct {
	URL         string
	Username    string
	Password    string
	NoSSLVerify bool
}

// Client is a WebSocket connection to the simulator
type Client struct {
	conn *websocket.Conn

	wmu    sync.Mutex
	closed bool // set by the reader once the connection fails
}

// Dial connects to the simulator with optional HTTP Basic auth
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := DialConn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// DialConn opens the WebSocket connection itself. Only ws:// and wss://
// URLs are accepted; Basic auth is sent when both username and password
// are set.
func DialConn(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.NoSSLVerify}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return conn, nil
}

// Next blocks for the next event. Non-binary messages are skipped.
func (c *Client) Next() (Kind, any, error) {
	if c.closed {
		return 0, nil, ErrConnectionClosed
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed = true
			return 0, nil, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return DecodeEvent(data)
	}
}

// Send writes one event
func (c *Client) Send(kind Kind, payload any) error {
	data, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a close frame and releases the connection
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
