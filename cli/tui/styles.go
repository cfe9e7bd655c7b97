// Package tui provides Bubble Tea views for the mediasync CLI.
//
// Rules:
//   - TUI is opt-in only (--tui flag)
//   - Views only read engine or journal data; the one control is reset
//   - TUI views show the same payloads as non-TUI rendering
package tui

import "github.com/charmbracelet/lipgloss"

// Palette, keyed by what the color means on screen.
var (
	accentColor   = lipgloss.Color("#7C3AED")
	receivedColor = lipgloss.Color("#3B82F6")
	playedColor   = lipgloss.Color("#10B981")
	queueColor    = lipgloss.Color("#F59E0B")
	failedColor   = lipgloss.Color("#EF4444")
	dimColor      = lipgloss.Color("#6B7280")
	textColor     = lipgloss.Color("#F9FAFB")

	kindColors = map[string]lipgloss.Color{
		"audio":    lipgloss.Color("#22D3EE"),
		"video":    lipgloss.Color("#A78BFA"),
		"subtitle": lipgloss.Color("#FBBF24"),
	}
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(18)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(playedColor)
	WarningStyle = lipgloss.NewStyle().Foreground(queueColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(failedColor)

	// SubtitleStyle frames the cue currently on screen.
	SubtitleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(kindColors["subtitle"]).
			Padding(0, 2).
			Width(64)

	counterBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(16).
			Align(lipgloss.Center)
	counterLabelStyle = lipgloss.NewStyle().Foreground(dimColor)
	counterValueStyle = lipgloss.NewStyle().Bold(true)
)

// StateStyle returns a style for an engine state, packet outcome or
// session reason.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "active", "played", "stream_end":
		return SuccessStyle
	case "processing", "canceled":
		return WarningStyle
	case "failed", "transport_error", "source_error":
		return ErrorStyle
	default:
		return ValueStyle
	}
}

// KindStyle colors a track kind name.
func KindStyle(kind string) lipgloss.Style {
	if c, ok := kindColors[kind]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return ValueStyle
}

// counterBox renders one headline counter in a bordered box.
func counterBox(label, value string, color lipgloss.Color) string {
	return counterBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(
		lipgloss.Center,
		counterValueStyle.Foreground(color).Render(value),
		counterLabelStyle.Render(label),
	))
}

func row(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}
