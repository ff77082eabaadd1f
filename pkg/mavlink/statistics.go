// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of link statistics
type Counters struct {
	StartTime time.Time

	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	SignatureErrors uint64
	HeaderErrors    uint64
	DecodeErrors    uint64
	SentFrames      uint64
	SendErrors      uint64
	QueueDrops      uint64
	AbandonedWrites uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Errors returns the total number of discarded inbound frames
func (c Counters) Errors() uint64 {
	return c.CRCErrors + c.SignatureErrors + c.HeaderErrors + c.DecodeErrors
}

// Statistics tracks frame counts and error rates for one bridge.
// Safe for concurrent use by the tick loop and the serial goroutines.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// Update records the outcome of one decoder result
func (s *Statistics) Update(f *Frame, decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decodeErr == nil && f == nil {
		return
	}
	s.c.TotalFrames++

	switch {
	case decodeErr == nil:
		s.c.ValidFrames++
	case errors.Is(decodeErr, ErrBadCRC):
		s.c.CRCErrors++
	case errors.Is(decodeErr, ErrBadSignature):
		s.c.SignatureErrors++
	case errors.Is(decodeErr, ErrBadHeader):
		s.c.HeaderErrors++
	default:
		s.c.DecodeErrors++
	}
}

// CountSent records a frame handed to a transport
func (s *Statistics) CountSent() {
	s.mu.Lock()
	s.c.SentFrames++
	s.mu.Unlock()
}

// CountSendError records a failed UDP send or serial write
func (s *Statistics) CountSendError() {
	s.mu.Lock()
	s.c.SendErrors++
	s.mu.Unlock()
}

// CountQueueDrop records a frame rejected by a full transmit queue
func (s *Statistics) CountQueueDrop() {
	s.mu.Lock()
	s.c.QueueDrops++
	s.mu.Unlock()
}

// CountAbandoned records a frame abandoned after a device write error
func (s *Statistics) CountAbandoned() {
	s.mu.Lock()
	s.c.AbandonedWrites++
	s.mu.Unlock()
}

// Snapshot returns the current counters with rates filled in
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.FrameRate = float64(c.TotalFrames) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var validPercent, errorPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
		errorPercent = float64(c.Errors()) * 100.0 / float64(c.TotalFrames)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(c.StartTime).Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", c.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", c.ValidFrames, validPercent)

	if c.Errors() > 0 {
		result += fmt.Sprintf("Dropped Frames:  %8d (%.1f%%)\n", c.Errors(), errorPercent)
		if c.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC Errors:       %5d\n", c.CRCErrors)
		}
		if c.SignatureErrors > 0 {
			result += fmt.Sprintf("  Signature Errors: %5d\n", c.SignatureErrors)
		}
		if c.HeaderErrors > 0 {
			result += fmt.Sprintf("  Header Errors:    %5d\n", c.HeaderErrors)
		}
		if c.DecodeErrors > 0 {
			result += fmt.Sprintf("  Decode Errors:    %5d\n", c.DecodeErrors)
		}
	}

	result += fmt.Sprintf("Sent Frames:     %8d\n", c.SentFrames)
	if c.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", c.SendErrors)
	}
	if c.QueueDrops > 0 {
		result += fmt.Sprintf("Queue Drops:     %8d\n", c.QueueDrops)
	}
	if c.AbandonedWrites > 0 {
		result += fmt.Sprintf("Abandoned:       %8d\n", c.AbandonedWrites)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}
