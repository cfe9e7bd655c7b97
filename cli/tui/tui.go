package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// View names accepted by Run.
const (
	ViewStatsSession = "stats_session"
)

// Run shows data in the static view named view.
// The live monitor is started with RunMonitor instead.
func Run(view string, data any) error {
	if !IsTUISupported(view) {
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
	p := tea.NewProgram(NewStatsModel(data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// IsTUISupported reports whether view has a static TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// SupportedTUIViews lists the static views.
func SupportedTUIViews() []string {
	return []string{ViewStatsSession}
}

type keyMap struct {
	Quit  key.Binding
	Reset key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset session"),
	),
}
