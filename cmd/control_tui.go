// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

// Focus states
const (
	focusSettingList = iota
	focusValueInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// settingItem is one row of the setting list
type settingItem struct {
	setting
	current string
}

// Implement list.Item interface
func (i settingItem) Title() string       { return i.name }
func (i settingItem) Description() string { return i.current }
func (i settingItem) FilterValue() string { return i.name }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	link     *controlLink
	connInfo string

	settingList list.Model

	// Link and headset state
	linkState  link.State
	device     link.Device
	settings   *headset.Settings
	connecting bool
	busy       bool // a write or refresh is in flight

	// Monitoring (shared with the monitor TUI)
	stats         gaia.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	// Control
	valueInput   textinput.Model
	focusedField int

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlStateMsg link.State

type controlSettingsMsg headset.Settings

type connectResultMsg struct {
	device link.Device
	err    error
}

type applyResultMsg struct {
	name  string
	value string
	err   error
}

type refreshResultMsg struct {
	err error
}

var (
	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("12")).
			Padding(0, 2)

	focusedButtonStyle = buttonStyle.
				Background(lipgloss.Color("10"))
)

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(cl *controlLink, connInfo string) controlModel {
	ti := textinput.New()
	ti.CharLimit = 16
	ti.Width = 16

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	items := make([]list.Item, len(settings))
	for i, s := range settings {
		items[i] = settingItem{setting: s, current: "?"}
	}
	settingList := list.New(items, delegate, 30, 10)
	settingList.Title = "Settings"
	settingList.SetShowStatusBar(false)
	settingList.SetShowHelp(false)
	settingList.SetFilteringEnabled(false)

	return controlModel{
		link:          cl,
		connInfo:      connInfo,
		settingList:   settingList,
		connecting:    true,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		valueInput:    ti,
		focusedField:  focusSettingList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.link.connect())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats = m.link.sess.manager.Stats()
		return m, controlTickCmd()

	case controlStateMsg:
		prev := m.linkState
		m.linkState = link.State(msg)
		if prev.Phase != msg.Phase || prev.Reason != msg.Reason {
			m.addLogEntry("Link: "+m.linkState.String(), msg.Phase == link.Failed)
			if prev.Phase == link.Connected && msg.Phase != link.Connected {
				m.addLogEntry("Connection lost - press 'r' to reconnect", true)
			}
		}

	case controlSettingsMsg:
		s := headset.Settings(msg)
		if m.settings != nil {
			for _, c := range settingChanges(*m.settings, s) {
				m.addLogEntry(c, false)
			}
		}
		m.settings = &s
		m.updateSettingList()

	case connectResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connect failed: %v", msg.err), true)
		} else {
			m.device = msg.device
			m.addLogEntry(fmt.Sprintf("Connected to %s", msg.device), false)
		}

	case applyResultMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Failed to set %s: %v", msg.name, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Set %s to %s", msg.name, msg.value), false)
		}

	case refreshResultMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Refresh failed: %v", msg.err), true)
		} else {
			m.addLogEntry("Settings refreshed", false)
		}
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusValueInput {
		m.valueInput, cmd = m.valueInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusSettingList {
		m.settingList, cmd = m.settingList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "esc":
		m.focusedField = focusSettingList
		m.valueInput.Blur()
		return m, nil
	}

	// Pass through to focused component
	if m.focusedField == focusValueInput {
		var cmd tea.Cmd
		m.valueInput, cmd = m.valueInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "r":
		if m.connecting || m.linkState.Phase == link.Connected {
			return m, nil
		}
		m.connecting = true
		m.addLogEntry("Reconnecting...", false)
		return m, m.link.connect()

	case "f":
		if m.busy || m.linkState.Phase != link.Connected {
			return m, nil
		}
		m.busy = true
		return m, m.link.refresh()

	case "up", "k", "down", "j":
		if m.focusedField == focusSettingList {
			var cmd tea.Cmd
			m.settingList, cmd = m.settingList.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	// Only the list handles mouse input
	m.settingList, _ = m.settingList.Update(msg)

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	if m.getSelectedSetting() == nil {
		m.focusedField = focusSettingList
		return m
	}

	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusValueInput {
		m.valueInput.Focus()
	} else {
		m.valueInput.Blur()
	}

	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	selected := m.getSelectedSetting()
	if selected == nil {
		return m, nil
	}

	// Enter on the list starts editing the selected setting
	if m.focusedField == focusSettingList {
		m.valueInput.SetValue("")
		m.valueInput.Placeholder = selected.current
		m.focusedField = focusValueInput
		m.valueInput.Focus()
		return m, textinput.Blink
	}

	if m.linkState.Phase != link.Connected {
		m.addLogEntry("Cannot send command: not connected", true)
		return m, nil
	}
	if m.busy {
		m.addLogEntry("Cannot send command: previous command still running", true)
		return m, nil
	}

	value := strings.TrimSpace(m.valueInput.Value())
	if value == "" {
		m.addLogEntry(fmt.Sprintf("Enter a value for %s (%s)", selected.name, selected.usage), true)
		return m, nil
	}

	m.busy = true
	m.focusedField = focusSettingList
	m.valueInput.Blur()
	m.valueInput.SetValue("")
	return m, m.link.apply(selected.setting, value)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	helpText := "q=quit Tab=switch Enter=edit/apply f=refresh"
	if m.linkState.Phase != link.Connected && !m.connecting {
		helpText += " r=reconnect"
	}
	s.WriteString(titleStyle.Render("GAIASTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	switch {
	case m.connecting:
		connStatus = warningStyle.Render("CONNECTING...")
	case m.linkState.Phase != link.Connected:
		connStatus = errorStyle.Render(m.linkState.String())
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")

	// Device below header
	if m.device.Address != "" {
		s.WriteString(fmt.Sprintf(" %s %s",
			statsLabelStyle.Render("Headset:"),
			statsValueStyle.Render(m.device.String())))
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderControlView())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlView() string {
	var s strings.Builder

	// Layout: left panel (settings) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusSettingList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	settingPanel := listStyle.Render(m.settingList.View())

	controlPanel := boxStyle.Width(rightWidth).Render(m.renderControlPanel())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, settingPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	if m.settings != nil {
		s.WriteString(m.renderHeadsetInfo())
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderEventLog())

	return s.String()
}

func (m controlModel) renderControlPanel() string {
	var s strings.Builder

	selected := m.getSelectedSetting()
	if selected == nil {
		s.WriteString(headerStyle.Render("No setting selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Setting:"), selected.name))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Current:"), statsValueStyle.Render(selected.current)))
	s.WriteString(headerStyle.Render("Values: " + selected.usage))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("New value: "))
	if m.focusedField == focusValueInput {
		s.WriteString(m.valueInput.View())
	} else {
		val := m.valueInput.Value()
		if val == "" {
			val = selected.current
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	btnText := "[ Apply ]"
	if m.busy {
		btnText = "[ Working... ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	st := m.stats
	var errorPercent float64
	if st.FramesReceived > 0 {
		errorPercent = float64(st.ErrorResponses+st.Malformed+st.AnomalousValues) * 100.0 / float64(st.FramesReceived)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("RX:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("TX:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesSent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Timeouts:"), func() string {
			if st.Timeouts > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.Timeouts))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderHeadsetInfo() string {
	hs := *m.settings

	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("HEADSET"))
	content.WriteString(" | ")

	battery := "?"
	if hs.Battery > 0 {
		battery = fmt.Sprintf("%d%%", hs.Battery)
	}
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Battery:"), statsValueStyle.Render(battery),
		statsLabelStyle.Render("Charging:"), statsValueStyle.Render(hs.Info.Charging.String()),
		statsLabelStyle.Render("Codec:"), statsValueStyle.Render(hs.Info.Codec),
		statsLabelStyle.Render("Firmware:"), statsValueStyle.Render(hs.Info.FirmwareVersion)))

	if len(hs.PairedDevices) > 0 {
		content.WriteString("\n")
		content.WriteString(statsLabelStyle.Render(fmt.Sprintf("Paired (max %d):", hs.MaxBTConnections)))
		for _, d := range hs.PairedDevices {
			content.WriteString("\n  " + formatPairedDevice(d, hs.OwnDeviceIndex))
		}
	}

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m controlModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(renderLog(m.errorLog, 8, "15:04:05.000"))
	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) getSelectedSetting() *settingItem {
	item, ok := m.settingList.SelectedItem().(settingItem)
	if !ok {
		return nil
	}
	return &item
}

// updateSettingList refreshes the displayed values from the latest snapshot
func (m *controlModel) updateSettingList() {
	if m.settings == nil {
		return
	}
	items := make([]list.Item, len(settings))
	for i, s := range settings {
		items[i] = settingItem{setting: s, current: s.value(*m.settings)}
	}
	m.settingList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 2
	if listHeight < 5 {
		listHeight = 5
	}
	m.settingList.SetSize(28, listHeight)
}
