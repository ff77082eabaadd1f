// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/Thermoquad/hilbridge/pkg/bridge"
	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{26*time.Hour + 2*time.Minute + 5*time.Second, "1 day, 2 hours, 2 minutes, and 5 seconds"},
		{2 * time.Hour, "2 hours"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestMonitorModel_ActuatorFrame(t *testing.T) {
	m := newMonitorModel("TEST", "test", nil)

	msg := &common.MessageHilActuatorControls{TimeUsec: 2000000, Mode: common.MAV_MODE_FLAG_SAFETY_ARMED}
	msg.Controls[1] = 0.5
	f, err := mavlink.NewEncoder(1, 1).Encode(msg)
	if err != nil {
		t.Fatal(err)
	}

	updated, _ := m.Update(syncMsg{})
	updated, _ = updated.Update(frameMsg{frame: f})
	m = updated.(monitorModel)

	if m.actuators == nil || !m.actuators.armed || m.actuators.values[1] != 0.5 {
		t.Fatalf("actuators = %+v", m.actuators)
	}
	if m.actuators.simTime != 2*time.Second {
		t.Errorf("simTime = %v, want 2s", m.actuators.simTime)
	}
	if m.stats.Snapshot().ValidFrames != 1 {
		t.Errorf("ValidFrames = %d, want 1", m.stats.Snapshot().ValidFrames)
	}
	if m.counts[f.MessageID()] != 1 {
		t.Errorf("count = %d, want 1", m.counts[f.MessageID()])
	}
	if !strings.Contains(m.View(), "ARMED") {
		t.Error("View() should show the arm state")
	}
}

func TestMonitorModel_ErrorsLoggedAfterSync(t *testing.T) {
	m := newMonitorModel("TEST", "test", nil)

	updated, _ := m.Update(frameMsg{decodeErr: mavlink.ErrBadCRC})
	m = updated.(monitorModel)
	if len(m.eventLog) != 0 {
		t.Error("errors before sync should not be logged")
	}

	updated, _ = m.Update(syncMsg{invalidFrames: 3})
	updated, _ = updated.Update(frameMsg{decodeErr: mavlink.ErrBadCRC})
	m = updated.(monitorModel)
	if len(m.eventLog) != 2 || !m.eventLog[1].isError {
		t.Errorf("eventLog = %+v", m.eventLog)
	}
	if m.stats.Snapshot().CRCErrors != 1 {
		t.Errorf("CRCErrors = %d, want 1", m.stats.Snapshot().CRCErrors)
	}
}

func TestMonitorModel_BridgeOutput(t *testing.T) {
	stats := mavlink.NewStatistics()
	m := newMonitorModel("TEST", "test", stats)
	if !m.synchronized {
		t.Error("a bridge-fed monitor needs no sync")
	}

	updated, _ := m.Update(outputMsg{sim: time.Second, out: bridge.Output{Motor: []float64{1, 2}, Published: true}})
	m = updated.(monitorModel)
	if m.actuators == nil || m.actuators.values[1] != 2 || m.actuators.armed {
		t.Errorf("actuators = %+v", m.actuators)
	}

	updated, _ = m.Update(logLineMsg{text: "hello"})
	m = updated.(monitorModel)
	if len(m.eventLog) != 1 || m.eventLog[0].message != "hello" {
		t.Errorf("eventLog = %+v", m.eventLog)
	}
}
