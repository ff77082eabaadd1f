// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomMessage builds one of a few HIL-related messages with random fields
func randomMessage(rng *rand.Rand) message.Message {
	switch rng.Intn(4) {
	case 0:
		return &common.MessageHeartbeat{
			Type:           2,
			CustomMode:     rng.Uint32(),
			MavlinkVersion: 3,
		}
	case 1:
		return &common.MessageHilSensor{
			TimeUsec:    rng.Uint64(),
			Xacc:        rng.Float32(),
			Zacc:        -9.81,
			AbsPressure: 1013.25 * rng.Float32(),
			Temperature: 20,
			Id:          uint8(rng.Intn(2)),
		}
	case 2:
		var controls [16]float32
		for i := range controls {
			controls[i] = rng.Float32()*2 - 1
		}
		return &common.MessageHilActuatorControls{
			TimeUsec: rng.Uint64(),
			Controls: controls,
			Mode:     0x80,
			Flags:    rng.Uint64(),
		}
	default:
		return &common.MessageHilGps{
			TimeUsec:          rng.Uint64(),
			FixType:           3,
			Lat:               rng.Int31(),
			Lon:               -rng.Int31(),
			Alt:               488000,
			SatellitesVisible: 10,
		}
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it never panics and always returns to a sane state
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		data := make([]byte, rng.Intn(512))
		rng.Read(data)

		for _, b := range data {
			f, err := d.DecodeByte(b)
			if err != nil && f != nil {
				t.Fatalf("round %d: frame and error returned together", i)
			}
			if err != nil && !errors.Is(err, ErrBadCRC) && !errors.Is(err, ErrBadSignature) && !errors.Is(err, ErrBadHeader) {
				t.Fatalf("round %d: unexpected error type %v", i, err)
			}
			if d.Pending() > MaxFrameLen {
				t.Fatalf("round %d: decoder buffered %d bytes", i, d.Pending())
			}
		}
	}
}

// TestFuzzDecoder_FramesSurviveNoise interleaves valid frames with noise
// that contains no start markers and checks every frame is recovered
func TestFuzzDecoder_FramesSurviveNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		e := NewEncoder(uint8(rng.Intn(256)), uint8(rng.Intn(256)), WithVersion(1+rng.Intn(2)))
		var stream []byte
		var want [][]byte

		for j := 0; j < 1+rng.Intn(5); j++ {
			for k := rng.Intn(8); k > 0; k-- {
				b := byte(rng.Intn(0xFD))
				stream = append(stream, b)
			}
			f, err := e.Encode(randomMessage(rng))
			if err != nil {
				t.Fatalf("round %d: Encode() error = %v", i, err)
			}
			stream = append(stream, f.Bytes()...)
			want = append(want, f.Bytes())
		}

		frames, dropped := NewDecoder().Decode(stream)
		if dropped != 0 {
			t.Fatalf("round %d: %d frames dropped", i, dropped)
		}
		if len(frames) != len(want) {
			t.Fatalf("round %d: got %d frames, want %d", i, len(frames), len(want))
		}
		for j := range want {
			if !bytes.Equal(frames[j].Bytes(), want[j]) {
				t.Fatalf("round %d frame %d differs", i, j)
			}
		}
	}
}

// TestFuzzDecoder_ReferenceParser checks that whatever the decoder emits
// from a noisy stream is parsed identically, in order, by gomavlib's reader
func TestFuzzDecoder_ReferenceParser(t *testing.T) {
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}
	rng := newFuzzRng(t)

	dialectRW, err := dialect.NewReadWriter(common.Dialect)
	if err != nil {
		t.Fatalf("dialect.NewReadWriter() error = %v", err)
	}

	for i := 0; i < rounds; i++ {
		e := NewEncoder(1, 200, WithVersion(1+rng.Intn(2)))
		var stream []byte
		for j := 0; j < 20; j++ {
			switch rng.Intn(3) {
			case 0:
				noise := make([]byte, rng.Intn(32))
				rng.Read(noise)
				stream = append(stream, noise...)
			case 1:
				f, _ := e.Encode(randomMessage(rng))
				raw := append([]byte(nil), f.Bytes()...)
				raw[rng.Intn(len(raw))] ^= byte(1 + rng.Intn(255))
				stream = append(stream, raw...)
			default:
				f, _ := e.Encode(randomMessage(rng))
				stream = append(stream, f.Bytes()...)
			}
		}

		frames, _ := NewDecoder().Decode(stream)
		var concat []byte
		for _, f := range frames {
			concat = append(concat, f.Bytes()...)
		}

		reader, err := frame.NewReader(frame.ReaderConf{
			Reader:    bytes.NewReader(concat),
			DialectRW: dialectRW,
		})
		if err != nil {
			t.Fatalf("frame.NewReader() error = %v", err)
		}

		for j, f := range frames {
			ref, err := reader.Read()
			if err != nil {
				t.Fatalf("round %d frame %d: reference parser error = %v", i, j, err)
			}
			if ref.GetSystemID() != f.SystemID() || ref.GetComponentID() != f.ComponentID() {
				t.Fatalf("round %d frame %d: ids differ", i, j)
			}
			if ref.GetSequenceNumber() != f.Sequence() {
				t.Fatalf("round %d frame %d: sequence %d vs %d", i, j, ref.GetSequenceNumber(), f.Sequence())
			}
			if ref.GetMessage().GetID() != f.MessageID() {
				t.Fatalf("round %d frame %d: message id %d vs %d", i, j, ref.GetMessage().GetID(), f.MessageID())
			}
			if ref.GetChecksum() != f.Checksum() {
				t.Fatalf("round %d frame %d: checksum 0x%04X vs 0x%04X", i, j, ref.GetChecksum(), f.Checksum())
			}
		}
		if _, err := reader.Read(); err == nil {
			t.Fatalf("round %d: reference parser found an extra frame", i)
		}
	}
}
