// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// echoServer echoes binary messages back after a text greeting, behind
// Basic auth
func echoServer(t *testing.T, user, pass string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOpenWebSocketConnection(t *testing.T) {
	url := echoServer(t, "fcu", "secret")

	if _, err := OpenWebSocketConnection(url, "fcu", "wrong", false); err == nil {
		t.Fatal("OpenWebSocketConnection() with a wrong password should fail")
	}
	if _, err := OpenWebSocketConnection("http://localhost/", "", "", false); err == nil {
		t.Fatal("OpenWebSocketConnection() should reject http://")
	}

	conn, err := OpenWebSocketConnection(url, "fcu", "secret", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection() error = %v", err)
	}
	defer conn.Close()

	frame := []byte{0xFD, 0x00, 0x00, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// The text greeting is skipped; the echo arrives in small reads
	var got []byte
	buf := make([]byte, 4)
	for len(got) < len(frame) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("Read() = % X, want % X", got, frame)
	}
}
