// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// decodeRecorder counts frames reaching the decode path
type decodeRecorder struct {
	mu     sync.Mutex
	frames []*mavlink.Frame
}

func (r *decodeRecorder) handle(f *mavlink.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *decodeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestRouter_SendSerialWhenEnabled(t *testing.T) {
	port := newFakePort()
	r := NewRouter(nil, DefaultQGCPort)
	if err := r.StartSerial(context.Background(), port, SerialConfig{}); err != nil {
		t.Fatalf("StartSerial() error = %v", err)
	}
	defer r.Close()

	remote := listenRaw(t)
	r.AttachUDP(loopback(t, remote.LocalAddr().(*net.UDPAddr)))

	f := testFrames(t, 1)[0]
	r.Send(f, 0)
	waitFor(t, "serial write", func() bool { return bytes.Equal(port.Written(), f.Bytes()) })

	// An explicit port bypasses the serial queue
	r.Send(f, remote.LocalAddr().(*net.UDPAddr).Port)
	if got := readDatagram(t, remote); !bytes.Equal(got, f.Bytes()) {
		t.Error("explicit port should send over UDP")
	}
}

func TestRouter_SendUDPWithoutSerial(t *testing.T) {
	remote := listenRaw(t)
	r := NewRouter(nil, DefaultQGCPort)
	r.AttachUDP(loopback(t, remote.LocalAddr().(*net.UDPAddr)))

	if r.SerialEnabled() {
		t.Fatal("SerialEnabled() should be false")
	}
	f := testFrames(t, 1)[0]
	r.Send(f, 0)
	if got := readDatagram(t, remote); !bytes.Equal(got, f.Bytes()) {
		t.Error("frame should go to the UDP peer")
	}
}

func TestRouter_SerialFrameRelayedAndDecodedOnce(t *testing.T) {
	qgc := listenRaw(t)
	qgcPort := qgc.LocalAddr().(*net.UDPAddr).Port

	rec := &decodeRecorder{}
	r := NewRouter(rec.handle, qgcPort)
	r.AttachUDP(loopback(t, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: qgcPort}))

	port := newFakePort()
	if err := r.StartSerial(context.Background(), port, SerialConfig{}); err != nil {
		t.Fatalf("StartSerial() error = %v", err)
	}
	defer r.Close()

	f := testFrames(t, 1)[0]
	port.inject(f.Bytes())

	if got := readDatagram(t, qgc); !bytes.Equal(got, f.Bytes()) {
		t.Error("serial frame should be relayed to the ground station")
	}
	waitFor(t, "decode", func() bool { return rec.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("decoded %d times, want exactly 1", rec.count())
	}
}

func TestRouter_UDPFrameMirroredToSerialAndDecodedOnce(t *testing.T) {
	rec := &decodeRecorder{}
	r := NewRouter(rec.handle, DefaultQGCPort)
	u := loopback(t, nil)
	r.AttachUDP(u)

	port := newFakePort()
	if err := r.StartSerial(context.Background(), port, SerialConfig{}); err != nil {
		t.Fatalf("StartSerial() error = %v", err)
	}
	defer r.Close()

	remote := listenRaw(t)
	f := testFrames(t, 1)[0]
	if _, err := remote.WriteToUDP(f.Bytes(), u.LocalAddr()); err != nil {
		t.Fatalf("WriteToUDP() error = %v", err)
	}

	waitFor(t, "poll", func() bool { return r.Poll() > 0 })
	waitFor(t, "serial mirror", func() bool { return bytes.Equal(port.Written(), f.Bytes()) })
	if rec.count() != 1 {
		t.Errorf("decoded %d times, want exactly 1", rec.count())
	}
}

func TestRouter_PollWithoutUDP(t *testing.T) {
	r := NewRouter(nil, DefaultQGCPort)
	if n := r.Poll(); n != 0 {
		t.Errorf("Poll() = %d without a socket, want 0", n)
	}
	// Sending without any transport is a no-op
	r.Send(testFrames(t, 1)[0], 0)
	r.Close()
}
