// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model
type model struct {
	connInfo      string
	deviceName    string
	statsInterval int
	showAll       bool
	statsFn       func() gaia.Statistics
	stats         gaia.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	linkState     link.State
	settings      *headset.Settings
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg tappedFrame
type settingsMsg headset.Settings
type stateMsg link.State

// formatUptime formats a duration in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
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

	// Join with commas and "and" for last item
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

func initialModel(connInfo, deviceName string, statsInterval int, showAll bool, statsFn func() gaia.Statistics) model {
	return model{
		connInfo:      connInfo,
		deviceName:    deviceName,
		statsInterval: statsInterval,
		showAll:       showAll,
		statsFn:       statsFn,
		stats:         statsFn(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
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

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.statsFn()
		return m, tickCmd()

	case stateMsg:
		prev := m.linkState
		m.linkState = link.State(msg)
		if prev.Phase != msg.Phase || prev.Reason != msg.Reason {
			m.addLogEntry("Link: "+m.linkState.String(), msg.Phase == link.Failed)
		}

	case settingsMsg:
		s := headset.Settings(msg)
		if m.settings != nil {
			for _, c := range settingChanges(*m.settings, s) {
				m.addLogEntry(c, false)
			}
		}
		m.settings = &s

	case frameMsg:
		if msg.dir == gaia.DirectionTX {
			break
		}
		name := gaia.CommandName(msg.frame.Vendor, msg.frame.Command)
		if errs := gaia.ValidateFrame(msg.frame); len(errs) > 0 {
			for _, err := range errs {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s %s", name, strings.TrimSpace(gaia.FormatPayload(msg.frame))), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// Styles shared by the monitor and control views
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("GAIASTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Mode: %s | Press 'q' to quit",
		m.connInfo, m.deviceName, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Link status
	if m.linkState.Phase == link.Connected {
		s.WriteString(statsValueStyle.Render("✓ Connected"))
		if m.linkState.Channel.ID != 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (channel %s)", formatChannel(m.linkState.Channel))))
		}
	} else {
		s.WriteString(warningStyle.Render("⏳ " + m.linkState.String()))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(renderStats(m.stats)))
	s.WriteString("\n\n")

	// Headset section (only shown once a snapshot arrived)
	if m.settings != nil {
		s.WriteString(statsLabelStyle.Render("Headset:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(renderHeadset(*m.settings)))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22 // Reserve space for header, stats and headset
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderLog(m.errorLog, logHeight, "01/02/06 15:04:05.000")))

	return s.String()
}

func formatChannel(ch link.Channel) string {
	if ch.Exact {
		return fmt.Sprintf("%d, %s", ch.ID, ch.Class)
	}
	return fmt.Sprintf("%d, %s (guessed)", ch.ID, ch.Class)
}

// renderStats renders the traffic counters box content
func renderStats(st gaia.Statistics) string {
	var errors uint64 = st.ErrorResponses + st.Timeouts + st.WriteFailures + st.Malformed + st.AnomalousValues
	var errorPercent float64
	if st.FramesReceived > 0 {
		errorPercent = float64(st.ErrorResponses+st.Malformed+st.AnomalousValues) * 100.0 / float64(st.FramesReceived)
	}

	content := strings.Builder{}
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("RX:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("TX:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesSent)),
		statsLabelStyle.Render("Notifications:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Notifications)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errors, errorPercent))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if st.Timeouts > 0 || st.ErrorResponses > 0 || st.WriteFailures > 0 {
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", st.Timeouts)),
			statsLabelStyle.Render("Error responses:"), errorStyle.Render(fmt.Sprintf("%d", st.ErrorResponses)),
			statsLabelStyle.Render("Write failures:"), errorStyle.Render(fmt.Sprintf("%d", st.WriteFailures)),
		))
	}

	if st.GarbageBytes > 0 || st.Unsolicited > 0 {
		content.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Garbage bytes:"), warningStyle.Render(fmt.Sprintf("%d", st.GarbageBytes)),
			statsLabelStyle.Render("Unsolicited:"), warningStyle.Render(fmt.Sprintf("%d", st.Unsolicited)),
		))
	}

	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
		statsLabelStyle.Render("Up:"), statsValueStyle.Render(formatUptime(uint64(time.Since(st.StartTime).Milliseconds()))),
	))
	return content.String()
}

// renderHeadset renders the most watched settings
func renderHeadset(s headset.Settings) string {
	battery := "?"
	if s.Battery > 0 {
		battery = fmt.Sprintf("%d%%", s.Battery)
	}
	return fmt.Sprintf("%s %s   %s %s   %s %s\n%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Battery:"), statsValueStyle.Render(battery),
		statsLabelStyle.Render("Charging:"), statsValueStyle.Render(s.Info.Charging.String()),
		statsLabelStyle.Render("Codec:"), statsValueStyle.Render(s.Info.Codec),
		statsLabelStyle.Render("ANC:"), statsValueStyle.Render(onOff(s.ANCEnabled)),
		statsLabelStyle.Render("Transparency:"), statsValueStyle.Render(fmt.Sprintf("%d", s.Transparency)),
		statsLabelStyle.Render("EQ:"), statsValueStyle.Render(s.EQ.String()),
		statsLabelStyle.Render("Sidetone:"), statsValueStyle.Render(fmt.Sprintf("%d", s.Sidetone)),
	)
}

// renderLog renders the newest height entries of log
func renderLog(log []errorLogEntry, height int, layout string) string {
	logContent := strings.Builder{}
	startIdx := len(log) - height
	if startIdx < 0 {
		startIdx = 0
	}

	if len(log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
		return logContent.String()
	}
	for i := startIdx; i < len(log); i++ {
		entry := log[i]
		timestamp := entry.timestamp.Format(layout)
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				errorStyle.Render("✗ "+entry.message),
			))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				warningStyle.Render("ℹ "+entry.message),
			))
		}
	}
	return logContent.String()
}
