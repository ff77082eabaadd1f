// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SigningKey is a MAVLink v2 shared secret
type SigningKey [32]byte

// signingEpoch is the zero point of the 48-bit signing timestamp
var signingEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseKey decodes a 64-character hex string into a signing key
func ParseKey(s string) (SigningKey, error) {
	var key SigningKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid signing key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("invalid signing key: expected %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// signature computes the 48-bit signature over everything preceding it in
// frame plus the link id and timestamp bytes of the signature block.
func signature(key SigningKey, frame []byte) []byte {
	h := sha256.New()
	h.Write(key[:])
	h.Write(frame[:len(frame)-6])
	return h.Sum(nil)[:6]
}

// Signer appends signature blocks to outbound v2 frames.
type Signer struct {
	mu     sync.Mutex
	key    SigningKey
	linkID uint8
	last   uint64
	now    func() time.Time
}

// NewSigner creates a signer for the given key and link id
func NewSigner(key SigningKey, linkID uint8) *Signer {
	return &Signer{key: key, linkID: linkID, now: time.Now}
}

// timestamp returns a strictly increasing 10us tick count since the epoch
func (s *Signer) timestamp() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := uint64(s.now().Sub(signingEpoch) / (10 * time.Microsecond))
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

// Sign appends the signature block to an unsigned v2 frame whose
// incompat flags already carry IncompatFlagSigned.
func (s *Signer) Sign(frame []byte) []byte {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], s.timestamp())
	frame = append(frame, s.linkID)
	frame = append(frame, ts[:6]...)
	frame = append(frame, make([]byte, 6)...)
	copy(frame[len(frame)-6:], signature(s.key, frame))
	return frame
}

// SigningConfig controls inbound signature verification
type SigningConfig struct {
	Key            SigningKey
	AcceptUnsigned bool

	mu      sync.Mutex
	streams map[uint32]uint64
}

// Verify checks the signature block of a complete signed frame and rejects
// timestamps that do not advance on their (link, system, component) stream.
func (c *SigningConfig) Verify(frame []byte) bool {
	if len(frame) < HeaderLenV2+ChecksumLen+SignatureLen {
		return false
	}
	if !bytes.Equal(signature(c.Key, frame), frame[len(frame)-6:]) {
		return false
	}

	block := frame[len(frame)-SignatureLen:]
	var raw [8]byte
	copy(raw[:], block[1:7])
	ts := binary.LittleEndian.Uint64(raw[:])
	stream := uint32(block[0])<<16 | uint32(frame[5])<<8 | uint32(frame[6])

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streams == nil {
		c.streams = make(map[uint32]uint64)
	}
	if last, ok := c.streams[stream]; ok && ts <= last {
		return false
	}
	c.streams[stream] = ts
	return true
}
