// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Encoder builds complete MAVLink frames from gomavlib messages.
// The sequence number advances once per encoded frame.
type Encoder struct {
	mu          sync.Mutex
	systemID    uint8
	componentID uint8
	sequence    uint8
	version     int
	dialect     *Dialect
	signer      *Signer
}

// EncoderOption configures an Encoder
type EncoderOption func(*Encoder)

// WithEncoderDialect selects the dialect used to serialise payloads
func WithEncoderDialect(d *Dialect) EncoderOption {
	return func(e *Encoder) {
		if d != nil {
			e.dialect = d
		}
	}
}

// WithSigner signs every outbound v2 frame
func WithSigner(s *Signer) EncoderOption {
	return func(e *Encoder) {
		e.signer = s
	}
}

// WithVersion selects MAVLink v1 or v2 framing (default 2)
func WithVersion(v int) EncoderOption {
	return func(e *Encoder) {
		e.version = v
	}
}

// NewEncoder creates a frame encoder for the given source ids
func NewEncoder(systemID, componentID uint8, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		systemID:    systemID,
		componentID: componentID,
		version:     2,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dialect == nil {
		e.dialect = CommonDialect()
	}
	return e
}

// Encode serialises a message into a new frame
func (e *Encoder) Encode(msg message.Message) (*Frame, error) {
	payload, extra, err := e.dialect.encode(msg, e.version == 2)
	if err != nil {
		return nil, err
	}
	return e.EncodeRaw(msg.GetID(), payload, extra)
}

// EncodeRaw frames an already-serialised payload
func (e *Encoder) EncodeRaw(msgID uint32, payload []byte, crcExtra byte) (*Frame, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadLen)
	}

	e.mu.Lock()
	seq := e.sequence
	e.sequence++
	e.mu.Unlock()

	var buf []byte
	switch e.version {
	case 1:
		if msgID > 0xFF {
			return nil, fmt.Errorf("message id %d does not fit a v1 frame", msgID)
		}
		buf = make([]byte, 0, HeaderLenV1+len(payload)+ChecksumLen)
		buf = append(buf, StxV1, byte(len(payload)), seq, e.systemID, e.componentID, byte(msgID))
	case 2:
		var incompat byte
		if e.signer != nil {
			incompat |= IncompatFlagSigned
		}
		buf = make([]byte, 0, MaxFrameLen)
		buf = append(buf, StxV2, byte(len(payload)), incompat, 0, seq, e.systemID, e.componentID,
			byte(msgID), byte(msgID>>8), byte(msgID>>16))
	default:
		return nil, fmt.Errorf("unsupported MAVLink version %d", e.version)
	}

	buf = append(buf, payload...)
	crc := AccumulateCRC(CalculateCRC(buf[1:]), crcExtra)
	buf = binary.LittleEndian.AppendUint16(buf, crc)

	if e.version == 2 && e.signer != nil {
		buf = e.signer.Sign(buf)
	}
	return newFrame(buf), nil
}
