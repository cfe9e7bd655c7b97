package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/mediasync/journal"
)

// StatsModel shows one finished session's metrics record.
type StatsModel struct {
	data     any
	quitting bool
}

// NewStatsModel creates a stats model over a *journal.SessionSummary.
func NewStatsModel(data any) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	s, ok := m.data.(*journal.SessionSummary)
	if !ok {
		return "Invalid data type for " + ViewStatsSession
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session " + s.SessionID))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		counterBox("Received", fmt.Sprint(s.Received), receivedColor),
		counterBox("Played", fmt.Sprint(s.Played), playedColor),
		counterBox("Failed", fmt.Sprint(s.Failed), failedColor),
		counterBox("Success", fmt.Sprintf("%.1f%%", s.SuccessRate*100), accentColor),
	))
	b.WriteString("\n\n")

	rows := []string{
		row("Source", s.Source),
		row("Started", s.SessionStart),
		row("Completed", s.CompletedAt),
		row("Duration", s.Duration().String()),
		row("Avg latency", fmt.Sprintf("%dms", s.AvgLatencyMs)),
		row("Avg jitter", fmt.Sprintf("%dms", s.AvgJitterMs)),
		row("Avg processing", fmt.Sprintf("%dms", s.AvgProcessingMs)),
		row("Avg network", fmt.Sprintf("%dms", s.AvgNetworkMs)),
		row("Rejected", fmt.Sprintf("invalid=%d mismatch=%d dup=%d stale=%d",
			s.Invalid, s.SessionMismatch, s.Duplicates, s.Stale)),
		row("Out of order", fmt.Sprint(s.OutOfOrder)),
		row("Track failures", fmt.Sprint(s.TrackFailures)),
		row("Tracks", formatKinds(s.TracksByKind)),
	}
	b.WriteString(strings.Join(rows, "\n"))

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// RenderStatsStatic renders the stats view without a terminal program.
func RenderStatsStatic(data any) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(NewStatsModel(data).View())
}

func formatKinds(byKind map[string]int64) string {
	var parts []string
	for _, k := range []string{"audio", "video", "subtitle"} {
		if n, ok := byKind[k]; ok {
			parts = append(parts, KindStyle(k).Render(k)+fmt.Sprintf("=%d", n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
