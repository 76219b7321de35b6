// Package style defines lipgloss styles for the TUI.
package style

import "github.com/charmbracelet/lipgloss"

// UI styles using lipgloss.
// These are package-level for convenience; lipgloss styles are value types
// and safe for concurrent use.
//
// Variable names intentionally omit "Style" suffix since they're accessed
// via the style package (e.g., style.Title reads better than style.TitleStyle).
var (
	// Title is used for the assistant phase headline.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	// Subtitle is used for secondary text.
	Subtitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// Error is used for error messages.
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	// Help is used for keyboard shortcut hints.
	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	// Key is used for highlighting keyboard keys.
	Key = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true)

	// Progress is used for the live waveform.
	Progress = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	// Muted is used for de-emphasized text (e.g., drop counters).
	Muted = lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))
)
