// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hilbridge/pkg/bridge"
	"github.com/Thermoquad/hilbridge/pkg/hil"
	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Latest actuator reference, either decoded from the link or produced by
// the running bridge
type actuatorView struct {
	values    []float64
	armed     bool
	published bool
	simTime   time.Duration
	updated   time.Time
}

// TUI model
type monitorModel struct {
	title         string
	source        string
	stats         *mavlink.Statistics
	countFrames   bool // frames arrive through frameMsg and must be counted
	dialect       *mavlink.Dialect
	counts        map[uint32]uint64
	messages      table.Model
	actuators     *actuatorView
	eventLog      []logEntry
	maxLogEntries int
	synchronized  bool
	invalidFrames int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame     *mavlink.Frame
	decodeErr error
}
type syncMsg struct {
	invalidFrames int
}
type outputMsg struct {
	sim time.Duration
	out bridge.Output
}
type logLineMsg struct {
	text    string
	isError bool
}

// logWriter turns log output into monitor events
type logWriter struct {
	p *tea.Program
}

func (w logWriter) Write(b []byte) (int, error) {
	text := strings.TrimSpace(string(b))
	if text != "" {
		w.p.Send(logLineMsg{text: text})
	}
	return len(b), nil
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := uint64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newMonitorModel(title, source string, stats *mavlink.Statistics) monitorModel {
	countFrames := false
	if stats == nil {
		stats = mavlink.NewStatistics()
		countFrames = true
	}

	messages := table.New(
		table.WithColumns([]table.Column{
			{Title: "Message", Width: 28},
			{Title: "ID", Width: 6},
			{Title: "Count", Width: 10},
		}),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	messages.SetStyles(styles)

	return monitorModel{
		title:         title,
		source:        source,
		stats:         stats,
		countFrames:   countFrames,
		dialect:       mavlink.CommonDialect(),
		counts:        make(map[uint32]uint64),
		messages:      messages,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		synchronized:  !countFrames,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.counts = make(map[uint32]uint64)
			m.refreshTable()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		}
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refreshTable()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidFrames = msg.invalidFrames
		if msg.invalidFrames > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after rejecting %d frames", msg.invalidFrames), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case frameMsg:
		m.handleFrame(msg)

	case outputMsg:
		m.actuators = &actuatorView{
			values:    msg.out.Motor,
			armed:     msg.out.Armed,
			published: msg.out.Published,
			simTime:   msg.sim,
			updated:   time.Now(),
		}

	case logLineMsg:
		m.addLogEntry(msg.text, msg.isError)
	}

	return m, nil
}

func (m *monitorModel) handleFrame(msg frameMsg) {
	if msg.decodeErr != nil {
		if m.synchronized {
			if m.countFrames {
				m.stats.Update(nil, msg.decodeErr)
			}
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		}
		return
	}
	if msg.frame == nil {
		return
	}
	if m.countFrames {
		m.stats.Update(msg.frame, nil)
	}
	m.counts[msg.frame.MessageID()]++

	if msg.frame.MessageID() != (&common.MessageHilActuatorControls{}).GetID() {
		return
	}
	decoded, err := m.dialect.Decode(msg.frame)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("HIL_ACTUATOR_CONTROLS: %v", err), true)
		return
	}
	controls := decoded.(*common.MessageHilActuatorControls)
	values := make([]float64, len(controls.Controls))
	for i, c := range controls.Controls {
		values[i] = float64(c)
	}
	m.actuators = &actuatorView{
		values:    values,
		armed:     hil.IsArmed(controls),
		published: true,
		simTime:   time.Duration(controls.TimeUsec) * time.Microsecond,
		updated:   time.Now(),
	}
}

func (m *monitorModel) refreshTable() {
	ids := make([]uint32, 0, len(m.counts))
	for id := range m.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.counts[ids[i]] > m.counts[ids[j]] })

	rows := make([]table.Row, len(ids))
	for i, id := range ids {
		rows[i] = table.Row{m.dialect.Name(id), fmt.Sprintf("%d", id), fmt.Sprintf("%d", m.counts[id])}
	}
	m.messages.SetRows(rows)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	c := m.stats.Snapshot()

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Uptime: %s | 'r' reset, 'q' quit",
		m.source, formatUptime(time.Since(c.StartTime)))))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	}

	// Statistics
	var validPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
	}
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", c.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.ValidFrames, validPercent)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", c.SentFrames)),
	))
	if c.Errors() > 0 {
		stats.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			labelStyle.Render("Dropped:"), errorStyle.Render(fmt.Sprintf("%d", c.Errors())),
			headerStyle.Render("crc"), c.CRCErrors,
			headerStyle.Render("signature"), c.SignatureErrors,
			headerStyle.Render("header"), c.HeaderErrors,
		))
	}
	if c.SendErrors > 0 || c.QueueDrops > 0 || c.AbandonedWrites > 0 {
		stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Send errors:"), errorStyle.Render(fmt.Sprintf("%d", c.SendErrors)),
			labelStyle.Render("Queue drops:"), warningStyle.Render(fmt.Sprintf("%d", c.QueueDrops)),
			labelStyle.Render("Abandoned:"), warningStyle.Render(fmt.Sprintf("%d", c.AbandonedWrites)),
		))
	}
	errorRate := valueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	if c.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", c.FrameRate)),
		labelStyle.Render("Error Rate:"), errorRate,
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Actuators
	if m.actuators != nil {
		s.WriteString(labelStyle.Render("Actuators:"))
		s.WriteString("\n")
		act := strings.Builder{}
		armed := warningStyle.Render("DISARMED")
		if m.actuators.armed {
			armed = errorStyle.Render("ARMED")
		}
		act.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("State:"), armed,
			labelStyle.Render("Sim time:"), valueStyle.Render(m.actuators.simTime.Truncate(time.Millisecond).String()),
		))
		if !m.actuators.published {
			act.WriteString(headerStyle.Render("(no actuator frame yet)"))
		}
		for i, v := range m.actuators.values {
			act.WriteString(fmt.Sprintf("%s %s", labelStyle.Render(fmt.Sprintf("%2d:", i)), valueStyle.Render(fmt.Sprintf("%+8.3f", v))))
			if i%4 == 3 {
				act.WriteString("\n")
			} else {
				act.WriteString("  ")
			}
		}
		s.WriteString(boxStyle.Render(strings.TrimRight(act.String(), "\n ")))
		s.WriteString("\n\n")
	}

	// Messages
	if len(m.counts) > 0 {
		s.WriteString(labelStyle.Render("Messages:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.messages.View()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 30
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
