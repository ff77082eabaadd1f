// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// FormatFrame formats a frame header into a human-readable line
func FormatFrame(f *Frame, d *Dialect) string {
	if d == nil {
		d = CommonDialect()
	}
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (%d) v%d seq=%d sys=%d comp=%d len=%d",
		timestamp, d.Name(f.MessageID()), f.MessageID(), f.Version(),
		f.Sequence(), f.SystemID(), f.ComponentID(), f.Length())
	if f.Signed() {
		linkID, ts, _, _ := f.Signature()
		result += fmt.Sprintf(" signed(link=%d ts=%d)", linkID, ts)
	}
	return result + "\n"
}

// FormatMessage lists the exported fields of a decoded message, one per line
func FormatMessage(msg message.Message) string {
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Sprintf("  %v\n", msg)
	}

	var s strings.Builder
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fmt.Fprintf(&s, "  %s: %v\n", strings.ToLower(camelToSnake(field.Name)), v.Field(i).Interface())
	}
	return s.String()
}

// FormatHex formats raw bytes as a spaced hex dump
func FormatHex(data []byte) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				s.WriteString("\n")
			} else {
				s.WriteString(" ")
			}
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	return s.String()
}
