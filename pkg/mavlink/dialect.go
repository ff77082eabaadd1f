// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Dialect maps message ids to gomavlib payload codecs and CRC extras.
type Dialect struct {
	codecs map[uint32]*message.ReadWriter
	names  map[uint32]string
}

// NewDialect builds the codec table for a gomavlib dialect definition
func NewDialect(d *dialect.Dialect) (*Dialect, error) {
	out := &Dialect{
		codecs: make(map[uint32]*message.ReadWriter, len(d.Messages)),
		names:  make(map[uint32]string, len(d.Messages)),
	}
	for _, msg := range d.Messages {
		rw, err := message.NewReadWriter(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", msg.GetID(), err)
		}
		out.codecs[msg.GetID()] = rw
		out.names[msg.GetID()] = messageName(msg)
	}
	return out, nil
}

var (
	commonOnce    sync.Once
	commonDialect *Dialect
)

// CommonDialect returns the shared table for the MAVLink common dialect
func CommonDialect() *Dialect {
	commonOnce.Do(func() {
		d, err := NewDialect(common.Dialect)
		if err != nil {
			panic(fmt.Sprintf("mavlink: common dialect: %v", err))
		}
		commonDialect = d
	})
	return commonDialect
}

// CRCExtra returns the CRC seed byte for a message id
func (d *Dialect) CRCExtra(id uint32) (byte, bool) {
	rw, ok := d.codecs[id]
	if !ok {
		return 0, false
	}
	return rw.CRCExtra(), true
}

// Name returns the MAVLink name of a message id (e.g. HIL_SENSOR)
func (d *Dialect) Name(id uint32) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", id)
}

// Decode parses the payload of a frame into its gomavlib message struct
func (d *Dialect) Decode(f *Frame) (message.Message, error) {
	rw, ok := d.codecs[f.MessageID()]
	if !ok {
		return nil, fmt.Errorf("unknown message id %d", f.MessageID())
	}
	msg, err := rw.Read(&message.MessageRaw{
		ID:      f.MessageID(),
		Payload: f.Payload(),
	}, f.Version() == 2)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.Name(f.MessageID()), err)
	}
	return msg, nil
}

// encode serialises a message payload. v2 payloads are trimmed of
// trailing zero bytes, keeping at least one byte.
func (d *Dialect) encode(msg message.Message, v2 bool) ([]byte, byte, error) {
	rw, ok := d.codecs[msg.GetID()]
	if !ok {
		return nil, 0, fmt.Errorf("unknown message id %d", msg.GetID())
	}
	payload := rw.Write(msg, v2).Payload
	if v2 {
		payload = trimPayload(payload)
	}
	return payload, rw.CRCExtra(), nil
}

func trimPayload(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{0}
	}
	end := len(payload)
	for end > 1 && payload[end-1] == 0 {
		end--
	}
	return payload[:end]
}

// messageName converts a gomavlib struct name (MessageHilSensor) to the
// MAVLink message name (HIL_SENSOR).
func messageName(msg message.Message) string {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return camelToSnake(strings.TrimPrefix(t.Name(), "Message"))
}

func camelToSnake(s string) string {
	out := make([]byte, 0, len(s)+8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i > 0 && c >= 'A' && c <= 'Z' {
			out = append(out, '_')
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
