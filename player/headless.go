package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// ErrAudioInterrupted is the terminal value of a clip cut short by Stop or
// by a newer Play.
var ErrAudioInterrupted = errors.New("audio interrupted")

// HeadlessAudio is an AudioSink without an output device. A clip "plays"
// for the duration hinted by the last SetDurationHint call.
type HeadlessAudio struct {
	mu      sync.Mutex
	hint    time.Duration
	current string
	stop    chan struct{}
	logger  *log.Logger
}

// NewHeadlessAudio creates a headless audio sink. logger may be nil.
func NewHeadlessAudio(logger *log.Logger) *HeadlessAudio {
	return &HeadlessAudio{logger: logger}
}

// SetDurationHint implements DurationHinter.
func (a *HeadlessAudio) SetDurationHint(d time.Duration) {
	a.mu.Lock()
	a.hint = d
	a.mu.Unlock()
}

// Play implements AudioSink. Starting a new clip interrupts the previous
// one, whose channel then yields ErrAudioInterrupted.
func (a *HeadlessAudio) Play(src string) (<-chan error, error) {
	a.mu.Lock()
	if a.stop != nil {
		close(a.stop)
	}
	stop := make(chan struct{})
	a.stop = stop
	a.current = src
	d := a.hint
	a.mu.Unlock()

	a.logger.Debug("audio play", map[string]any{"src": src, "duration_ms": d.Milliseconds()})

	done := make(chan error, 1)
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			done <- nil
		case <-stop:
			done <- ErrAudioInterrupted
		}
	}()
	return done, nil
}

// Stop implements AudioSink.
func (a *HeadlessAudio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	a.current = ""
}

// Current returns the source currently playing, or "".
func (a *HeadlessAudio) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// LogVideo is a VideoSink that records and logs clip changes.
type LogVideo struct {
	mu       sync.Mutex
	idleClip string
	current  string
	changes  int
	logger   *log.Logger
}

// NewLogVideo creates a logging video sink that idles on idleClip.
func NewLogVideo(idleClip string, logger *log.Logger) *LogVideo {
	return &LogVideo{idleClip: idleClip, current: idleClip, logger: logger}
}

// ChangeVideo implements VideoSink.
func (v *LogVideo) ChangeVideo(_ context.Context, path string) error {
	v.mu.Lock()
	v.current = path
	v.changes++
	v.mu.Unlock()
	v.logger.Info("video change", map[string]any{"path": path})
	return nil
}

// Idle implements VideoSink.
func (v *LogVideo) Idle(ctx context.Context) error {
	v.mu.Lock()
	idle := v.idleClip
	v.mu.Unlock()
	return v.ChangeVideo(ctx, idle)
}

// Current returns the clip currently shown.
func (v *LogVideo) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// SubtitleEvent is one emission to a ChannelSubtitles sink.
// A nil Cues slice means the display was cleared.
type SubtitleEvent struct {
	Cues     []types.SubtitleCue
	Duration time.Duration
	At       time.Time
}

// ChannelSubtitles is a SubtitleSink that publishes cues on a channel.
// Events are dropped when the consumer falls behind.
type ChannelSubtitles struct {
	events  chan SubtitleEvent
	dropped uint64
	mu      sync.Mutex
}

// NewChannelSubtitles creates a sink with the given channel capacity.
func NewChannelSubtitles(capacity int) *ChannelSubtitles {
	if capacity <= 0 {
		capacity = 16
	}
	return &ChannelSubtitles{events: make(chan SubtitleEvent, capacity)}
}

// Events returns the event channel.
func (s *ChannelSubtitles) Events() <-chan SubtitleEvent {
	return s.events
}

// ShowSubtitles implements SubtitleSink.
func (s *ChannelSubtitles) ShowSubtitles(cues []types.SubtitleCue, dur time.Duration) {
	if cues == nil {
		cues = []types.SubtitleCue{}
	}
	s.emit(SubtitleEvent{Cues: cues, Duration: dur, At: time.Now()})
}

// Clear implements SubtitleSink.
func (s *ChannelSubtitles) Clear() {
	s.emit(SubtitleEvent{At: time.Now()})
}

// Dropped returns the number of events dropped.
func (s *ChannelSubtitles) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *ChannelSubtitles) emit(ev SubtitleEvent) {
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}
