package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/parley/internal/assistant"
)

//nolint:gochecknoinits // recommend for CI by bubbletea folks
func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

type staticLevels struct {
	samples []int16
}

func (l *staticLevels) Read() []int16 { return l.samples }

func newTestModel(cancel func(), events chan assistant.Event, dropped func() uint64) tea.Model {
	return New(cancel, events, &staticLevels{}, dropped)
}

// pump feeds queued assistant events through the model until the
// channel is drained.
func pump(t *testing.T, m tea.Model, events chan assistant.Event) tea.Model {
	t.Helper()

	for len(events) > 0 {
		root, ok := m.(model)
		require.True(t, ok)

		msg := root.waitForEvent()()
		m, _ = m.Update(msg)
	}

	return m
}

func TestModel_ListeningView(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil, make(chan assistant.Event, 4), nil)

	view := m.View()
	assert.Contains(t, view, "Listening")
	assert.Contains(t, view, "speak to start a conversation")
	assert.Contains(t, view, "q")
}

func TestModel_PhaseTransitions(t *testing.T) {
	t.Parallel()

	events := make(chan assistant.Event, 4)
	events <- assistant.Event{Kind: assistant.EventPhase, Phase: assistant.PhaseConnecting}

	m := newTestModel(nil, events, nil)
	m = pump(t, m, events)

	assert.Contains(t, m.View(), "Connecting")

	events <- assistant.Event{Kind: assistant.EventPhase, Phase: assistant.PhaseConversing}
	m = pump(t, m, events)

	assert.Contains(t, m.View(), "Conversing")
	assert.Contains(t, m.View(), "turns completed: 0")
}

func TestModel_TurnCounter(t *testing.T) {
	t.Parallel()

	events := make(chan assistant.Event, 4)
	events <- assistant.Event{Kind: assistant.EventPhase, Phase: assistant.PhaseConversing}
	events <- assistant.Event{Kind: assistant.EventTurnComplete}
	events <- assistant.Event{Kind: assistant.EventTurnComplete}

	m := newTestModel(nil, events, nil)
	m = pump(t, m, events)

	assert.Contains(t, m.View(), "turns completed: 2")
}

func TestModel_SessionErrorShown(t *testing.T) {
	t.Parallel()

	events := make(chan assistant.Event, 4)
	events <- assistant.Event{Kind: assistant.EventSessionError, Err: errors.New("remote fell over")}

	m := newTestModel(nil, events, nil)
	m = pump(t, m, events)

	assert.Contains(t, m.View(), "session error: remote fell over")
}

func TestModel_ReconnectClearsError(t *testing.T) {
	t.Parallel()

	events := make(chan assistant.Event, 4)
	events <- assistant.Event{Kind: assistant.EventSessionError, Err: errors.New("remote fell over")}
	events <- assistant.Event{Kind: assistant.EventPhase, Phase: assistant.PhaseConnecting}

	m := newTestModel(nil, events, nil)
	m = pump(t, m, events)

	assert.NotContains(t, m.View(), "session error")
}

func TestModel_DroppedCounter(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil, make(chan assistant.Event, 4), func() uint64 { return 7 })

	assert.Contains(t, m.View(), "dropped chunks: 7")
}

func TestModel_QuitCancels(t *testing.T) {
	t.Parallel()

	canceled := false
	m := newTestModel(func() { canceled = true }, make(chan assistant.Event, 4), nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, canceled)
}

func TestModel_EventsClosedQuits(t *testing.T) {
	t.Parallel()

	events := make(chan assistant.Event)
	close(events)

	m := newTestModel(nil, events, nil)
	root, ok := m.(model)
	require.True(t, ok)

	msg := root.waitForEvent()()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
