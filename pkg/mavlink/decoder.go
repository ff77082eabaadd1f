// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoder outcomes other than "incomplete" and "frame ready"
var (
	ErrBadCRC       = errors.New("mavlink: bad checksum")
	ErrBadSignature = errors.New("mavlink: bad signature")
	ErrBadHeader    = errors.New("mavlink: bad header")
)

// Decoder implements the MAVLink frame decoder state machine.
// Not safe for concurrent use; each byte stream owns one Decoder.
type Decoder struct {
	state   int
	buffer  []byte
	crc     uint16
	dialect *Dialect
	signing *SigningConfig
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithDecoderDialect selects the dialect used to look up CRC extras
func WithDecoderDialect(d *Dialect) DecoderOption {
	return func(dec *Decoder) {
		if d != nil {
			dec.dialect = d
		}
	}
}

// WithSigning enables signature verification on inbound frames
func WithSigning(cfg *SigningConfig) DecoderOption {
	return func(dec *Decoder) {
		dec.signing = cfg
	}
}

// NewDecoder creates a new frame decoder using the common dialect
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameLen),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dialect == nil {
		d.dialect = CommonDialect()
	}
	return d
}

// Reset discards any partial frame and returns to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.crc = crcInitial
}

// Pending returns the number of bytes held for the frame in progress
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

func (d *Decoder) start(b byte) {
	d.buffer = append(d.buffer[:0], b)
	d.crc = crcInitial
	d.state = stateHeader
}

func (d *Decoder) headerLen() int {
	if d.buffer[0] == StxV1 {
		return HeaderLenV1
	}
	return HeaderLenV2
}

func (d *Decoder) payloadLen() int {
	return int(d.buffer[1])
}

func (d *Decoder) signed() bool {
	return d.buffer[0] == StxV2 && d.buffer[2]&IncompatFlagSigned != 0
}

func (d *Decoder) messageID() uint32 {
	if d.buffer[0] == StxV1 {
		return uint32(d.buffer[5])
	}
	return uint32(d.buffer[7]) | uint32(d.buffer[8])<<8 | uint32(d.buffer[9])<<16
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns ErrBadCRC, ErrBadSignature or ErrBadHeader (wrapped) when the
// frame in progress is discarded; the decoder is already resynchronised
// when that happens and the next byte can be fed immediately.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == StxV1 || b == StxV2 {
			d.start(b)
		}
		return nil, nil

	case stateHeader:
		d.buffer = append(d.buffer, b)
		d.crc = AccumulateCRC(d.crc, b)
		if d.buffer[0] == StxV2 && len(d.buffer) == 3 && b&^IncompatFlagSigned != 0 {
			d.Reset()
			return nil, fmt.Errorf("%w: unsupported incompat flags 0x%02X", ErrBadHeader, b)
		}
		if len(d.buffer) == d.headerLen() {
			if d.payloadLen() == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		d.buffer = append(d.buffer, b)
		d.crc = AccumulateCRC(d.crc, b)
		if len(d.buffer) == d.headerLen()+d.payloadLen() {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.buffer = append(d.buffer, b)
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.buffer = append(d.buffer, b)
		msgID := d.messageID()
		extra, ok := d.dialect.CRCExtra(msgID)
		if !ok {
			return d.fail(b, fmt.Errorf("%w: unknown message id %d", ErrBadCRC, msgID))
		}
		expected := AccumulateCRC(d.crc, extra)
		received := binary.LittleEndian.Uint16(d.buffer[len(d.buffer)-ChecksumLen:])
		if expected != received {
			return d.fail(b, fmt.Errorf("%w: message %d expected 0x%04X, got 0x%04X", ErrBadCRC, msgID, expected, received))
		}
		if d.signed() {
			d.state = stateSignature
			return nil, nil
		}
		if d.signing != nil && !d.signing.AcceptUnsigned {
			return d.fail(b, fmt.Errorf("%w: unsigned message %d rejected", ErrBadSignature, msgID))
		}
		return d.complete(), nil

	case stateSignature:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < d.headerLen()+d.payloadLen()+ChecksumLen+SignatureLen {
			return nil, nil
		}
		if d.signing != nil && !d.signing.Verify(d.buffer) {
			return d.fail(b, fmt.Errorf("%w: message %d", ErrBadSignature, d.messageID()))
		}
		return d.complete(), nil

	default:
		d.Reset()
		return nil, fmt.Errorf("%w: invalid decoder state %d", ErrBadHeader, d.state)
	}
}

// complete hands out a copy of the buffered frame and returns to idle
func (d *Decoder) complete() *Frame {
	raw := make([]byte, len(d.buffer))
	copy(raw, d.buffer)
	d.Reset()
	return newFrame(raw)
}

// fail drops the frame in progress. A start marker consumed as the failing
// byte begins a new candidate frame right away.
func (d *Decoder) fail(b byte, err error) (*Frame, error) {
	d.Reset()
	if b == StxV1 || b == StxV2 {
		d.start(b)
	}
	return nil, err
}

// Decode feeds every byte of data through the decoder and returns the
// frames completed along the way plus the number of discarded frames.
func (d *Decoder) Decode(data []byte) ([]*Frame, int) {
	var frames []*Frame
	dropped := 0
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			dropped++
			continue
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, dropped
}
