// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/cupola/pkg/device"
	"github.com/Thermoquad/cupola/pkg/eventlog"
	"github.com/Thermoquad/cupola/pkg/poll"
	"github.com/Thermoquad/cupola/pkg/station"
	"github.com/Thermoquad/cupola/pkg/supervisor"
	"github.com/Thermoquad/cupola/pkg/telegram"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	kind      eventlog.Kind
	message   string
}

func (e eventLogEntry) isError() bool {
	switch e.kind {
	case eventlog.Malformed, eventlog.InvalidState, eventlog.Transport, eventlog.Watchdog:
		return true
	}
	return false
}

// chanSink hands events to the dashboard. Events are dropped rather than
// stalling the scheduler when the UI falls behind.
type chanSink chan eventLogEntry

func (c chanSink) Event(kind eventlog.Kind, text string) {
	select {
	case c <- eventLogEntry{timestamp: time.Now(), kind: kind, message: text}:
	default:
	}
}

type dashboardKeys struct {
	Open           key.Binding
	Close          key.Binding
	FanOn          key.Binding
	FanOff         key.Binding
	IntensifierOn  key.Binding
	IntensifierOff key.Binding
	HeaterOn       key.Binding
	HeaterOff      key.Binding
	Reset          key.Binding
	Manual         key.Binding
	Override       key.Binding
	Darker         key.Binding
	Lighter        key.Binding
	HumidityDown   key.Binding
	HumidityUp     key.Binding
	ClearStats     key.Binding
	Help           key.Binding
	Quit           key.Binding
}

func (k dashboardKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Close, k.Help, k.Quit}
}

func (k dashboardKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Close, k.Reset},
		{k.FanOn, k.FanOff, k.IntensifierOn, k.IntensifierOff},
		{k.HeaterOn, k.HeaterOff},
		{k.Manual, k.Override, k.Darker, k.Lighter, k.HumidityDown, k.HumidityUp},
		{k.ClearStats, k.Help, k.Quit},
	}
}

var defaultKeys = dashboardKeys{
	Open:           key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open cover")),
	Close:          key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close cover")),
	FanOn:          key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fan on")),
	FanOff:         key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "fan off")),
	IntensifierOn:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "intensifier on")),
	IntensifierOff: key.NewBinding(key.WithKeys("I"), key.WithHelp("I", "intensifier off")),
	HeaterOn:       key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "heater on")),
	HeaterOff:      key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "heater off")),
	Reset:          key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset slave")),
	Manual:         key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "toggle manual")),
	Override:       key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "toggle safety override")),
	Darker:         key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "darkness threshold -1°")),
	Lighter:        key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "darkness threshold +1°")),
	HumidityDown:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "humidity limits -1%")),
	HumidityUp:     key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "humidity limits +1%")),
	ClearStats:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "clear statistics")),
	Help:           key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// commandFor maps the command keys to dome commands.
func (k dashboardKeys) commandFor(msg tea.KeyMsg) (telegram.Message, bool) {
	switch {
	case key.Matches(msg, k.Open):
		return telegram.CommandOpenCover, true
	case key.Matches(msg, k.Close):
		return telegram.CommandCloseCover, true
	case key.Matches(msg, k.FanOn):
		return telegram.CommandFanOn, true
	case key.Matches(msg, k.FanOff):
		return telegram.CommandFanOff, true
	case key.Matches(msg, k.IntensifierOn):
		return telegram.CommandIntensifierOn, true
	case key.Matches(msg, k.IntensifierOff):
		return telegram.CommandIntensifierOff, true
	case key.Matches(msg, k.HeaterOn):
		return telegram.CommandHeaterOn, true
	case key.Matches(msg, k.HeaterOff):
		return telegram.CommandHeaterOff, true
	case key.Matches(msg, k.Reset):
		return telegram.CommandReset, true
	}
	return telegram.Message{}, false
}

// TUI model
type model struct {
	sup      *supervisor.Supervisor
	connInfo string
	events   chanSink
	started  time.Time

	cycle        supervisor.Cycle
	stats        poll.Statistics
	connectivity poll.Connectivity
	values       station.Values

	errorLog      []eventLogEntry
	maxLogEntries int

	keys    dashboardKeys
	help    help.Model
	spinner spinner.Model

	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time
type eventMsg eventLogEntry

func initialModel(sup *supervisor.Supervisor, connInfo string, events chanSink) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return model{
		sup:           sup,
		connInfo:      connInfo,
		events:        events,
		started:       time.Now(),
		errorLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		keys:          defaultKeys,
		help:          help.New(),
		spinner:       sp,
		width:         80,
		height:        24,
	}
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	add := func(n int64, unit string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+unit)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	add(seconds, "second")

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

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForEvent(m.events),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(events chanSink) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.ClearStats):
			m.sup.Scheduler().ResetStatistics()
			m.addLogEntry(eventlog.Report, "statistics cleared")
		case m.adjustSettings(msg):
		default:
			if cmd, ok := m.keys.commandFor(msg); ok {
				if err := m.sup.Command(cmd); err != nil {
					m.addLogEntry(eventlog.Transport, err.Error())
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.cycle = m.sup.Last()
		m.stats = m.sup.Scheduler().Statistics()
		m.connectivity = m.sup.Scheduler().Connectivity()
		m.values = m.sup.Settings().Values()
		return m, tickCmd()

	case eventMsg:
		m.errorLog = append(m.errorLog, eventLogEntry(msg))
		m.trimLog()
		return m, waitForEvent(m.events)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// adjustSettings applies the settings keys to the local evaluation.
// Rejected values are logged and the previous setting stays.
func (m *model) adjustSettings(msg tea.KeyMsg) bool {
	s := m.sup.Settings()
	v := s.Values()
	shift := func(d float64) station.HumidityLimits {
		return station.HumidityLimits{Lower: v.Humidity.Lower + d, Upper: v.Humidity.Upper + d}
	}

	var err error
	switch {
	case key.Matches(msg, m.keys.Manual):
		s.SetManual(!v.Manual)
	case key.Matches(msg, m.keys.Override):
		s.SetSafetyOverride(!v.SafetyOverride)
	case key.Matches(msg, m.keys.Darker):
		err = s.SetDarknessThreshold(v.DarknessThreshold - 1)
	case key.Matches(msg, m.keys.Lighter):
		err = s.SetDarknessThreshold(v.DarknessThreshold + 1)
	case key.Matches(msg, m.keys.HumidityDown):
		err = s.SetHumidityLimits(shift(-1))
	case key.Matches(msg, m.keys.HumidityUp):
		err = s.SetHumidityLimits(shift(1))
	default:
		return false
	}
	if err != nil {
		m.addLogEntry(eventlog.Config, err.Error())
		return true
	}

	m.values = s.Values()
	m.addLogEntry(eventlog.Config, fmt.Sprintf("darkness below %.1f°, humidity %.0f%%/%.0f%%, manual %s, override %s",
		m.values.DarknessThreshold, m.values.Humidity.Lower, m.values.Humidity.Upper,
		onOffText(m.values.Manual), onOffText(m.values.SafetyOverride)))
	return true
}

func (m *model) addLogEntry(kind eventlog.Kind, message string) {
	m.errorLog = append(m.errorLog, eventLogEntry{
		timestamp: time.Now(),
		kind:      kind,
		message:   message,
	})
	m.trimLog()
}

// trimLog keeps only the last N entries
func (m *model) trimLog() {
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CUPOLA - DOME STATUS"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Up %s | Automatic commands are not sent",
		m.connInfo, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Link status
	switch m.connectivity {
	case poll.Online:
		s.WriteString(statsValueStyle.Render("✓ Dome answering"))
	case poll.Unreachable:
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Waiting for the dome to answer..."))
	default:
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Opening link..."))
	}
	s.WriteString("\n\n")

	// Station
	state := m.cycle.Decision.State
	stateStyle := statsValueStyle
	switch state {
	case station.DomeUnreachable, station.Inconsistent, station.RainOrHumid:
		stateStyle = errorStyle
	case station.Daylight, station.Manual:
		stateStyle = warningStyle
	}

	stationContent := strings.Builder{}
	stationContent.WriteString(fmt.Sprintf("%s %s   %s\n",
		statsLabelStyle.Render("State:"), stateStyle.Render(fmt.Sprintf("%s (%c)", state, state.Code())),
		headerStyle.Render(state.Tooltip()),
	))
	stationContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Sun:"), statsValueStyle.Render(fmt.Sprintf("%.1f°", m.cycle.SunAltitude)),
		statsLabelStyle.Render("Darkness below:"), statsValueStyle.Render(fmt.Sprintf("%.1f°", m.values.DarknessThreshold)),
	))
	stationContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Humidity limits:"),
		statsValueStyle.Render(fmt.Sprintf("%.0f%% / %.0f%%", m.values.Humidity.Lower, m.values.Humidity.Upper)),
		statsLabelStyle.Render("Manual:"), onOff(m.values.Manual, warningStyle, statsValueStyle),
		statsLabelStyle.Render("Override:"), onOff(m.values.SafetyOverride, errorStyle, statsValueStyle),
	))
	if len(m.cycle.Decision.Commands) > 0 {
		labels := make([]string, 0, len(m.cycle.Decision.Commands))
		for _, c := range m.cycle.Decision.Commands {
			labels = append(labels, c.Name())
		}
		stationContent.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Would send:"), warningStyle.Render(strings.Join(labels, ", ")),
		))
	}
	s.WriteString(boxStyle.Render(stationContent.String()))
	s.WriteString("\n\n")

	// Dome
	st := m.cycle.Status
	domeContent := strings.Builder{}
	if st.Basic == nil {
		domeContent.WriteString(headerStyle.Render("Basic status: no recent reply"))
	} else {
		b := st.Basic
		domeContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Status:"), statsValueStyle.Render(flagList(device.StatusFlags(b.Status).Names()))))
		domeContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Sensors:"), statsValueStyle.Render(flagList(device.EnvFlags(b.Env).Names()))))
		errs := device.ErrorFlags(b.Errors).Names()
		errText := statsValueStyle.Render("none")
		if len(errs) > 0 {
			errText = errorStyle.Render(flagList(errs))
		}
		domeContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Errors:"), errText,
			statsLabelStyle.Render("Uptime:"),
			statsValueStyle.Render(formatUptime(time.Duration(b.Alive)*time.Second/device.AliveTicksPerSecond)),
		))
	}
	if st.Env != nil {
		domeContent.WriteString(fmt.Sprintf("\n%s %s   %s %s   %s %s   %s %s",
			statsLabelStyle.Render("Humidity:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", st.Env.Humidity)),
			statsLabelStyle.Render("Ambient:"), statsValueStyle.Render(fmt.Sprintf("%.1f°C", st.Env.Ambient)),
			statsLabelStyle.Render("Lens:"), statsValueStyle.Render(fmt.Sprintf("%.1f°C", st.Env.Lens)),
			statsLabelStyle.Render("CPU:"), statsValueStyle.Render(fmt.Sprintf("%.1f°C", st.Env.CPU)),
		))
	}
	if st.Shaft != nil {
		domeContent.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Shaft:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Shaft.Position)),
		))
	}
	s.WriteString(boxStyle.Render(domeContent.String()))
	s.WriteString("\n\n")

	// Statistics
	var validPercent float64
	if m.stats.Frames > 0 {
		validPercent = float64(m.stats.Decoded()) * 100.0 / float64(m.stats.Frames)
	}
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Frames)),
		statsLabelStyle.Render("Decoded:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Decoded(), validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors())),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Commands)),
		statsLabelStyle.Render("Reconnects:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Reconnects)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 28 // Reserve space for header and boxes
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			line := fmt.Sprintf("%s: %s", entry.kind, entry.message)
			if entry.isError() {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+line),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+line),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func onOff(on bool, onStyle, offStyle lipgloss.Style) string {
	if on {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

func onOffText(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func flagList(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, " ")
}
