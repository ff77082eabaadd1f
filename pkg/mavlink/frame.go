// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"time"
)

// Frame is one complete, already-encoded MAVLink packet.
// The wire bytes are never modified after construction.
type Frame struct {
	raw       []byte
	timestamp time.Time
}

func newFrame(raw []byte) *Frame {
	return &Frame{raw: raw, timestamp: time.Now()}
}

// Bytes returns the wire representation. Callers must not modify it.
func (f *Frame) Bytes() []byte {
	return f.raw
}

// Len returns the total wire length in bytes
func (f *Frame) Len() int {
	return len(f.raw)
}

// Version returns 1 or 2 depending on the start marker
func (f *Frame) Version() int {
	if f.raw[0] == StxV1 {
		return 1
	}
	return 2
}

func (f *Frame) headerLen() int {
	if f.Version() == 1 {
		return HeaderLenV1
	}
	return HeaderLenV2
}

// Length returns the payload length declared in the header
func (f *Frame) Length() uint8 {
	return f.raw[1]
}

// IncompatFlags returns the v2 incompatibility flags (0 for v1)
func (f *Frame) IncompatFlags() uint8 {
	if f.Version() == 1 {
		return 0
	}
	return f.raw[2]
}

// Sequence returns the packet sequence number
func (f *Frame) Sequence() uint8 {
	if f.Version() == 1 {
		return f.raw[2]
	}
	return f.raw[4]
}

// SystemID returns the sender system id
func (f *Frame) SystemID() uint8 {
	if f.Version() == 1 {
		return f.raw[3]
	}
	return f.raw[5]
}

// ComponentID returns the sender component id
func (f *Frame) ComponentID() uint8 {
	if f.Version() == 1 {
		return f.raw[4]
	}
	return f.raw[6]
}

// MessageID returns the message id (8 bits in v1, 24 bits in v2)
func (f *Frame) MessageID() uint32 {
	if f.Version() == 1 {
		return uint32(f.raw[5])
	}
	return uint32(f.raw[7]) | uint32(f.raw[8])<<8 | uint32(f.raw[9])<<16
}

// Payload returns the (possibly truncated) payload bytes
func (f *Frame) Payload() []byte {
	start := f.headerLen()
	return f.raw[start : start+int(f.Length())]
}

// Checksum returns the CRC carried by the frame
func (f *Frame) Checksum() uint16 {
	off := f.headerLen() + int(f.Length())
	return binary.LittleEndian.Uint16(f.raw[off : off+ChecksumLen])
}

// Signed reports whether the frame carries a v2 signature block
func (f *Frame) Signed() bool {
	return f.IncompatFlags()&IncompatFlagSigned != 0
}

// Signature returns the link id, 48-bit timestamp and signature of a signed frame
func (f *Frame) Signature() (linkID uint8, timestamp uint64, sig []byte, ok bool) {
	if !f.Signed() || len(f.raw) < SignatureLen {
		return 0, 0, nil, false
	}
	block := f.raw[len(f.raw)-SignatureLen:]
	var ts [8]byte
	copy(ts[:], block[1:7])
	return block[0], binary.LittleEndian.Uint64(ts[:]), block[7:], true
}

// Timestamp returns when the frame was decoded or encoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
