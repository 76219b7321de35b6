// Package tui renders the assistant's live status: what phase it is
// in, the microphone waveform, and session health.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alkime/parley/internal/assistant"
	"github.com/alkime/parley/internal/tui/components/labeledspinner"
	"github.com/alkime/parley/internal/tui/components/waveform"
	"github.com/alkime/parley/internal/tui/style"
	"github.com/alkime/parley/pkg/uictl"
)

const (
	waveWidth  = 60
	waveHeight = 3
)

// eventMsg carries one assistant event into the update loop.
type eventMsg struct {
	ev assistant.Event
}

// eventsClosedMsg means the assistant loop has ended.
type eventsClosedMsg struct{}

type model struct {
	cancel  context.CancelFunc
	events  <-chan assistant.Event
	dropped func() uint64

	phase   assistant.Phase
	turns   int
	lastErr error

	wave waveform.Model
	spin labeledspinner.Model
}

// New builds the root model. cancel stops the assistant when the user
// quits; levels feeds the waveform; dropped reports capture overruns.
func New(cancel context.CancelFunc, events <-chan assistant.Event, levels uictl.Levels[int16], dropped func() uint64) tea.Model {
	return model{
		cancel:  cancel,
		events:  events,
		dropped: dropped,
		phase:   assistant.PhaseListening,
		wave:    waveform.New(levels, waveWidth, waveHeight),
		spin: labeledspinner.New(spinner.Dot, "Connecting",
			"Opening a live session...", "press q to quit"),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.wave.Init(),
		m.spin.Init(),
		m.waitForEvent(),
	)
}

// waitForEvent blocks on the assistant's event stream.
func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case eventMsg:
		switch msg.ev.Kind {
		case assistant.EventPhase:
			m.phase = msg.ev.Phase
			if m.phase == assistant.PhaseConnecting {
				m.lastErr = nil
			}
			if m.phase == assistant.PhaseConversing {
				m.turns = 0
			}
		case assistant.EventTurnComplete:
			m.turns++
		case assistant.EventSessionError:
			m.lastErr = msg.ev.Err
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, tea.Quit
	}

	// delegate to sub-models
	m.wave, cmd = m.wave.Update(msg)
	cmds = append(cmds, cmd)

	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var sb strings.Builder

	switch m.phase {
	case assistant.PhaseConnecting:
		sb.WriteString(m.spin.View())

	case assistant.PhaseConversing:
		sb.WriteString(style.Title.Render("● Conversing"))
		sb.WriteString("\n\n")
		sb.WriteString(m.wave.View())
		sb.WriteString("\n\n")
		sb.WriteString(style.Subtitle.Render(fmt.Sprintf("turns completed: %d", m.turns)))

	default:
		sb.WriteString(style.Title.Render("Listening"))
		sb.WriteString("\n\n")
		sb.WriteString(m.wave.View())
		sb.WriteString("\n\n")
		sb.WriteString(style.Subtitle.Render("speak to start a conversation"))
	}

	if m.lastErr != nil {
		sb.WriteString("\n\n")
		sb.WriteString(style.Error.Render("session error: " + m.lastErr.Error()))
	}

	if m.dropped != nil {
		if n := m.dropped(); n > 0 {
			sb.WriteString("\n")
			sb.WriteString(style.Muted.Render(fmt.Sprintf("dropped chunks: %d", n)))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(style.Help.Render("press ") + style.Key.Render("q") + style.Help.Render(" to quit"))

	return sb.String()
}
