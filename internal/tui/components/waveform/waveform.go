// Package waveform provides a TUI component for visualizing audio amplitude.
package waveform

import (
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alkime/parley/internal/tui/style"
	"github.com/alkime/parley/pkg/uictl"
)

// Block characters for amplitude visualization (8 levels, bottom to top).
// Index 0 = empty (space), 1-8 = increasing fill levels.
const blockChars = " ▁▂▃▄▅▆▇█"

// TickMsg triggers a waveform redraw.
type TickMsg struct{}

// Model renders microphone amplitude as vertical bars, older samples
// on the left, newest on the right.
type Model struct {
	levels uictl.Levels[int16]
	width  int
	height int
}

// New creates a waveform that aggregates the Levels source down to
// width columns across height rows.
func New(levels uictl.Levels[int16], width, height int) Model {
	if height < 1 {
		height = 1
	}

	return Model{
		levels: levels,
		width:  width,
		height: height,
	}
}

// Init returns the initial tick command.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles tick messages for animation.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(TickMsg); ok {
		return m, m.tick()
	}

	return m, nil
}

// View renders the waveform as ASCII art.
func (m Model) View() string {
	if m.levels == nil {
		return m.renderEmpty()
	}

	samples := m.levels.Read()
	if len(samples) == 0 {
		return m.renderEmpty()
	}

	return m.renderWaveform(samples)
}

// tick schedules the next redraw at ~20 FPS.
func (m Model) tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) renderWaveform(samples []int16) string {
	levels := m.columnLevels(samples)
	runes := []rune(blockChars)

	var sb strings.Builder

	for row := 0; row < m.height; row++ {
		if row > 0 {
			sb.WriteString("\n")
		}

		var rowSB strings.Builder

		for col := 0; col < m.width; col++ {
			rowSB.WriteRune(runes[m.blockIndexForRow(levels[col], row)])
		}

		sb.WriteString(style.Progress.Render(rowSB.String()))
	}

	return sb.String()
}

// columnLevels buckets the samples into width columns and maps each
// bucket's peak amplitude to a level from 0 to height*8.
func (m Model) columnLevels(samples []int16) []int {
	levels := make([]int, m.width)
	bucketSize := max(1, len(samples)/m.width)
	maxLevel := m.height * 8

	for col := 0; col < m.width; col++ {
		start := col * bucketSize
		if start >= len(samples) {
			continue
		}

		end := min(start+bucketSize, len(samples))
		levels[col] = amplitudeToLevel(maxAbsAmplitude(samples[start:end]), maxLevel)
	}

	return levels
}

// blockIndexForRow returns the block character index (0-8) for a
// column level at a row. Row 0 is the top.
func (m Model) blockIndexForRow(level, row int) int {
	rowFromBottom := m.height - 1 - row
	fill := level - rowFromBottom*8

	switch {
	case fill <= 0:
		return 0
	case fill >= 8:
		return 8
	default:
		return fill
	}
}

// renderEmpty draws a baseline when no samples have arrived yet.
func (m Model) renderEmpty() string {
	var sb strings.Builder

	for row := 0; row < m.height; row++ {
		if row > 0 {
			sb.WriteString("\n")
		}

		ch := " "
		if row == m.height-1 {
			ch = "▁"
		}

		sb.WriteString(style.Muted.Render(strings.Repeat(ch, m.width)))
	}

	return sb.String()
}

func maxAbsAmplitude(samples []int16) int16 {
	var maxAmp int16

	for _, s := range samples {
		// -32768 has no positive int16 equivalent.
		if s == math.MinInt16 {
			return math.MaxInt16
		}

		if s < 0 {
			s = -s
		}

		if s > maxAmp {
			maxAmp = s
		}
	}

	return maxAmp
}

// amplitudeToLevel maps an amplitude (0-32767) to a display level
// (0-maxLevel) on a square-root curve, so quiet audio stays visible.
func amplitudeToLevel(amp int16, maxLevel int) int {
	if amp == 0 {
		return 0
	}

	normalized := float64(amp) / math.MaxInt16
	scaled := math.Sqrt(normalized) * float64(maxLevel)

	return min(int(scaled), maxLevel)
}
