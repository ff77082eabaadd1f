// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link moves MAVLink frames between the bridge and the autopilot
// over a serial device and a UDP socket.
package link

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// DefaultQueueSize is the transmit queue capacity used when none is configured
const DefaultQueueSize = 1000

// retryDelay paces drain attempts while the device keeps failing
const retryDelay = 10 * time.Millisecond

// ErrZeroWrite is returned when a device write makes no progress without error
var ErrZeroWrite = errors.New("link: write returned zero bytes")

// pendingFrame is a queued frame plus the number of bytes already written
type pendingFrame struct {
	frame *mavlink.Frame
	sent  int
}

// TxQueue is a bounded FIFO of outbound frames with at most one write in
// flight. The lock covers queue mutation only, never the device write.
type TxQueue struct {
	mu       sync.Mutex
	frames   []*pendingFrame
	capacity int
	inFlight bool
	wake     chan struct{}

	sent      uint64
	dropped   uint64
	abandoned uint64

	stats    *mavlink.Statistics
	dropWarn rate.Sometimes
}

// NewTxQueue creates a queue holding at most capacity frames
func NewTxQueue(capacity int, stats *mavlink.Statistics) *TxQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &TxQueue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		stats:    stats,
		dropWarn: rate.Sometimes{Interval: time.Second},
	}
}

// Enqueue appends a frame at the tail. A full queue drops the new frame
// and returns false; queued frames are never evicted.
func (q *TxQueue) Enqueue(f *mavlink.Frame) bool {
	q.mu.Lock()
	if len(q.frames) >= q.capacity {
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		if q.stats != nil {
			q.stats.CountQueueDrop()
		}
		q.dropWarn.Do(func() {
			log.Printf("[serial] transmit queue full (%d frames), dropped %d so far", q.capacity, dropped)
		})
		return false
	}
	q.frames = append(q.frames, &pendingFrame{frame: f})
	q.mu.Unlock()

	q.signal()
	return true
}

// DrainStep writes queued frames to w until the queue is empty, a write
// fails or ctx ends. It returns immediately if another write is already in
// flight. A failed frame is abandoned and the next call starts at the next
// frame. Once ctx ends no further write is started and ctx.Err() is returned.
func (q *TxQueue) DrainStep(ctx context.Context, w io.Writer) error {
	q.mu.Lock()
	if q.inFlight || len(q.frames) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.inFlight = true
	head := q.frames[0]
	q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			q.mu.Lock()
			q.inFlight = false
			q.mu.Unlock()
			return err
		}

		n, err := w.Write(head.frame.Bytes()[head.sent:])
		if err == nil && n == 0 {
			err = ErrZeroWrite
		}

		q.mu.Lock()
		if err != nil {
			q.popLocked()
			q.abandoned++
			q.inFlight = false
			q.mu.Unlock()
			if q.stats != nil {
				q.stats.CountAbandoned()
			}
			log.Printf("[serial] write failed, abandoning frame %d: %v", head.frame.MessageID(), err)
			return err
		}

		head.sent += n
		if head.sent >= head.frame.Len() {
			q.popLocked()
			q.sent++
			if q.stats != nil {
				q.stats.CountSent()
			}
			if len(q.frames) == 0 {
				q.inFlight = false
				q.mu.Unlock()
				return nil
			}
			head = q.frames[0]
		}
		q.mu.Unlock()
	}
}

func (q *TxQueue) popLocked() {
	q.frames[0] = nil
	q.frames = q.frames[1:]
}

// Run drains the queue into w whenever frames are enqueued, until ctx ends.
// After a failed write the remaining frames are retried after retryDelay.
func (q *TxQueue) Run(ctx context.Context, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		err := q.DrainStep(ctx, w)
		if ctx.Err() != nil {
			return
		}
		if err != nil && q.Len() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
				q.signal()
			}
		}
	}
}

func (q *TxQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued frames, including one in flight
func (q *TxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Counts returns how many frames were written, dropped and abandoned
func (q *TxQueue) Counts() (sent, dropped, abandoned uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent, q.dropped, q.abandoned
}

// Reset discards all queued frames. Only call while no drain is running.
func (q *TxQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = q.frames[:0]
	q.inFlight = false
}
