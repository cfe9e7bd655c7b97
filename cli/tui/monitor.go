package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/player"
)

// Feed is the live data behind the monitor.
type Feed struct {
	Title string
	// Snapshots is required. The monitor exits when it closes.
	Snapshots <-chan metrics.Snapshot
	// Subtitles is optional.
	Subtitles <-chan player.SubtitleEvent
	// Reset is optional; bound to the r key.
	Reset func()
}

type snapshotMsg metrics.Snapshot

type subtitleMsg player.SubtitleEvent

type feedClosedMsg struct{}

// MonitorModel is the live playback dashboard.
type MonitorModel struct {
	feed     Feed
	snap     metrics.Snapshot
	subtitle string
	resets   int
	width    int
	quitting bool
}

// NewMonitorModel creates a monitor over feed.
func NewMonitorModel(feed Feed) MonitorModel {
	if feed.Title == "" {
		feed.Title = "mediasync"
	}
	return MonitorModel{feed: feed}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(waitSnapshot(m.feed.Snapshots), waitSubtitle(m.feed.Subtitles))
}

func waitSnapshot(ch <-chan metrics.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func waitSubtitle(ch <-chan player.SubtitleEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return subtitleMsg(ev)
	}
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = metrics.Snapshot(msg)
		return m, waitSnapshot(m.feed.Snapshots)

	case subtitleMsg:
		m.subtitle = cueText(player.SubtitleEvent(msg))
		return m, waitSubtitle(m.feed.Subtitles)

	case feedClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Reset):
			if m.feed.Reset != nil {
				m.feed.Reset()
				m.resets++
				m.subtitle = ""
			}
			return m, nil
		}
	}
	return m, nil
}

func cueText(ev player.SubtitleEvent) string {
	texts := make([]string, 0, len(ev.Cues))
	for _, c := range ev.Cues {
		if c.Speaker != "" {
			texts = append(texts, c.Speaker+": "+c.Text)
		} else {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.feed.Title))
	b.WriteString("\n")

	state := s.State
	if s.Processing {
		state = "processing"
	}
	session := s.SessionID
	if session == "" {
		session = "-"
	}
	lastSeq := "-"
	if s.HasLastSeq {
		lastSeq = fmt.Sprint(s.LastSeq)
	}
	b.WriteString(row("State", StateStyle(state).Render(state)) + "\n")
	b.WriteString(row("Session", session) + "\n")
	b.WriteString(row("Last seq", lastSeq) + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		counterBox("Received", fmt.Sprint(s.Received), receivedColor),
		counterBox("Played", fmt.Sprint(s.Played), playedColor),
		counterBox("Failed", fmt.Sprint(s.Failed), failedColor),
		counterBox("Queue", fmt.Sprintf("%d/%d", s.QueueLength, s.MaxQueueLength), queueColor),
	))
	b.WriteString("\n\n")

	rows := []string{
		row("Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate*100)),
		row("Throughput", fmt.Sprintf("%.1f/min", s.ThroughputPerMinute)),
		row("Avg latency", ms(s.AverageLatency)),
		row("Avg jitter", ms(s.AverageJitter)),
		row("Avg processing", ms(s.AverageProcessingTime)),
		row("Avg network", ms(s.AverageNetworkLatency)),
		row("Rejected", fmt.Sprintf("invalid=%d mismatch=%d dup=%d stale=%d",
			s.Invalid, s.SessionMismatch, s.Duplicates, s.Stale)),
		row("Track failures", fmt.Sprint(s.TrackFailures)),
	}
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n\n")

	if m.feed.Subtitles != nil {
		text := m.subtitle
		if text == "" {
			text = lipgloss.NewStyle().Foreground(dimColor).Render("(no subtitle)")
		}
		b.WriteString(SubtitleStyle.Render(text))
		b.WriteString("\n")
	}

	help := "q quit"
	if m.feed.Reset != nil {
		help += " • r reset session"
	}
	b.WriteString(HelpStyle.Render(help))
	return b.String()
}

func ms(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// RunMonitor runs the live monitor until the feed closes or the user quits.
func RunMonitor(feed Feed) error {
	p := tea.NewProgram(NewMonitorModel(feed), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
