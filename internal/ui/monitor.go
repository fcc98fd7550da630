// ABOUTME: Engine monitor TUI
// ABOUTME: Real-time display of master state and loaded song instances using bubbletea
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/whiteroom-audio/playback-go/internal/engine"
	"github.com/whiteroom-audio/playback-go/pkg/bridge"
)

// Monitor runs the engine status TUI, polling snapshots through the
// bridge.
type Monitor struct {
	handle   bridge.Handle
	name     string
	port     int
	program  *tea.Program
	quitChan chan struct{}
}

// NewMonitor creates a monitor for one engine session.
func NewMonitor(handle bridge.Handle, name string, port int) *Monitor {
	return &Monitor{
		handle:   handle,
		name:     name,
		port:     port,
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until the user quits. It blocks.
func (m *Monitor) Start() error {
	model := monitorModel{
		handle:    m.handle,
		name:      m.name,
		port:      m.port,
		startTime: time.Now(),
		quitChan:  m.quitChan,
	}
	m.program = tea.NewProgram(model, tea.WithAltScreen())
	_, err := m.program.Run()
	return err
}

// Stop shuts the TUI down.
func (m *Monitor) Stop() {
	if m.program != nil {
		m.program.Quit()
	}
}

// QuitChan signals when the user asked to quit.
func (m *Monitor) QuitChan() <-chan struct{} {
	return m.quitChan
}

type monitorModel struct {
	handle    bridge.Handle
	name      string
	port      int
	startTime time.Time
	snapshot  *engine.Snapshot
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return tickEvery()
}

// tempoStep is the master tempo change applied per +/- keypress.
const tempoStep = 0.05

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if snap, err := bridge.StateSnapshot(m.handle); err == nil {
			m.snapshot = snap
		}
		return m, tickEvery()
	}

	return m, nil
}

// handleKey routes transport and tempo keys through the bridge. The
// engine applies them on its next block, so the effect shows up on a
// later snapshot poll.
func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		select {
		case m.quitChan <- struct{}{}:
		default:
		}
		return m, tea.Quit

	case " ":
		if m.snapshot != nil && m.snapshot.Transport == "playing" {
			_ = bridge.MasterPause(m.handle)
		} else {
			_ = bridge.MasterPlay(m.handle)
		}

	case "s":
		_ = bridge.MasterStop(m.handle)

	case "+", "=":
		_ = bridge.SetMasterTempo(m.handle, m.masterTempo()+tempoStep)

	case "-", "_":
		_ = bridge.SetMasterTempo(m.handle, m.masterTempo()-tempoStep)
	}

	return m, nil
}

func (m monitorModel) masterTempo() float64 {
	if m.snapshot == nil {
		return 1.0
	}
	return m.snapshot.MasterTempo
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down engine...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	songHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Playback Engine"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Control port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.port)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	if m.snapshot != nil {
		b.WriteString(headerStyle.Render("Master: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s  tempo %.2fx  volume %.0f%%  sync %s",
			m.snapshot.Transport,
			m.snapshot.MasterTempo,
			m.snapshot.MasterVolume*100,
			m.snapshot.SyncMode)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	count := 0
	if m.snapshot != nil {
		count = len(m.snapshot.Instances)
	}
	b.WriteString(songHeaderStyle.Render(fmt.Sprintf("Loaded Songs (%d)", count)))
	b.WriteString("\n\n")

	if count == 0 {
		b.WriteString(valueStyle.Render("  No songs loaded"))
		b.WriteString("\n")
	} else {
		for _, in := range m.snapshot.Instances {
			b.WriteString(fmt.Sprintf("  • [%d] %s", in.ID, in.Title))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s %s/%s tempo %.2fx vol %.0f%%%s)",
				in.State,
				formatSeconds(in.PositionSeconds),
				formatSeconds(in.DurationSeconds),
				in.Tempo,
				in.Volume*100,
				flagSuffix(in))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("space play/pause · s stop · +/- master tempo · q quit"))

	return b.String()
}

func flagSuffix(in engine.InstanceSnapshot) string {
	var flags []string
	if in.Muted {
		flags = append(flags, "muted")
	}
	if in.Soloed {
		flags = append(flags, "solo")
	}
	if len(flags) == 0 {
		return ""
	}
	return " " + strings.Join(flags, ",")
}

func formatSeconds(s float64) string {
	total := int(s)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
