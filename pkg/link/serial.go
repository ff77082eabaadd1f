// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// Serial defaults matching the PX4 SITL plugin
const (
	DefaultSerialDevice = "/dev/ttyACM0"
	DefaultBaudRate     = 921600
)

// readTimeout bounds how long the reader goroutine waits before it
// rechecks for shutdown
const readTimeout = 100 * time.Millisecond

// closeGrace is how long Close waits for the goroutines before it closes
// the device under a write or read that will not return on its own
const closeGrace = 500 * time.Millisecond

// Port is the byte-stream device a SerialLink drives.
// go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// FrameHandler receives each frame recovered from a transport
type FrameHandler func(f *mavlink.Frame)

// OpenSerialPort opens a device at the given baud rate with fixed 8N1
// framing and no flow control
func OpenSerialPort(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	ok := false
	defer func() {
		if !ok {
			_ = port.Close()
		}
	}()

	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to flush %s: %w", device, err)
	}

	ok = true
	return port, nil
}

// SerialConfig configures a SerialLink
type SerialConfig struct {
	QueueSize int
	Decoder   []mavlink.DecoderOption
	Stats     *mavlink.Statistics
}

// SerialLink owns a serial device, its transmit queue and frame decoder.
// Reads and writes run on dedicated goroutines; Close joins both before
// the device is released.
type SerialLink struct {
	port    Port
	queue   *TxQueue
	decoder *mavlink.Decoder
	handler FrameHandler
	stats   *mavlink.Statistics

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	errWarn   rate.Sometimes
	readWarn  rate.Sometimes
}

// StartSerialLink starts the reader and writer goroutines on port.
// handler runs on the reader goroutine for every valid frame.
func StartSerialLink(ctx context.Context, port Port, cfg SerialConfig, handler FrameHandler) (*SerialLink, error) {
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &SerialLink{
		port:     port,
		queue:    NewTxQueue(cfg.QueueSize, cfg.Stats),
		decoder:  mavlink.NewDecoder(cfg.Decoder...),
		handler:  handler,
		stats:    cfg.Stats,
		cancel:   cancel,
		errWarn:  rate.Sometimes{Interval: time.Second},
		readWarn: rate.Sometimes{Interval: time.Second},
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.queue.Run(ctx, port)
	}()

	return s, nil
}

// Send queues a frame for transmission. Returns false if the queue is full.
func (s *SerialLink) Send(f *mavlink.Frame) bool {
	return s.queue.Enqueue(f)
}

// Queue exposes the transmit queue for inspection
func (s *SerialLink) Queue() *TxQueue {
	return s.queue
}

func (s *SerialLink) readLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := s.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.readWarn.Do(func() {
				log.Printf("[serial] read error: %v", err)
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, b := range buf[:n] {
			f, err := s.decoder.DecodeByte(b)
			if s.stats != nil {
				s.stats.Update(f, err)
			}
			if err != nil {
				s.errWarn.Do(func() {
					log.Printf("[serial] discarded frame: %v", err)
				})
				continue
			}
			if f != nil && s.handler != nil {
				s.handler(f)
			}
		}
	}
}

// Close stops both goroutines, waits for them to exit and then closes
// the device. Frames still queued are discarded. A device call that is
// still blocked after closeGrace is released by closing the device first.
func (s *SerialLink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		closed := false
		select {
		case <-done:
		case <-time.After(closeGrace):
			log.Printf("[serial] device call still blocked after %v, closing device", closeGrace)
			err = s.port.Close()
			closed = true
			<-done
		}

		s.queue.Reset()
		s.decoder.Reset()
		if !closed {
			err = s.port.Close()
		}
	})
	return err
}
