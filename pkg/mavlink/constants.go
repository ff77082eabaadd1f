// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mavlink implements MAVLink framing for the HIL bridge.
//
// It provides an incremental byte-at-a-time frame decoder with checksum and
// signature validation, a frame encoder backed by gomavlib message
// definitions, and helpers for formatting frames and tracking link
// statistics. Payload layouts come from the gomavlib common dialect; this
// package only handles the wire framing around them.
package mavlink

// Start-of-frame markers
const (
	StxV1 = 0xFE
	StxV2 = 0xFD
)

// Frame size limits
const (
	HeaderLenV1   = 6  // STX + len + seq + sysid + compid + msgid
	HeaderLenV2   = 10 // STX + len + incompat + compat + seq + sysid + compid + msgid(3)
	ChecksumLen   = 2
	SignatureLen  = 13 // link id + 48-bit timestamp + 48-bit signature
	MaxPayloadLen = 255
	MaxFrameLen   = HeaderLenV2 + MaxPayloadLen + ChecksumLen + SignatureLen
)

// IncompatFlagSigned marks a v2 frame that carries a signature block.
const IncompatFlagSigned = 0x01

// CRC-16/MCRF4XX (X.25) configuration
const (
	crcInitial = 0xFFFF
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeader
	statePayload
	stateCRC1
	stateCRC2
	stateSignature
)

// Defaults used by the PX4 SITL plugin when talking HIL.
const (
	DefaultSystemID    = 1
	DefaultComponentID = 200
)
