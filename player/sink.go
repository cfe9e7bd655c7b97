// Package player drives external playback sinks for the tracks of a packet.
//
// The engine never owns a sink. Sinks are injected at construction and the
// players only use the narrow contracts below.
package player

import (
	"context"
	"time"

	"github.com/pithecene-io/mediasync/types"
)

// AudioSink is a single shared audio output.
type AudioSink interface {
	// Play sets the source and starts playback. The returned channel yields
	// exactly one value when playback terminates: nil when the clip ended,
	// non-nil when the sink reported an error.
	Play(src string) (<-chan error, error)
	// Stop pauses playback and rewinds to the start.
	Stop()
}

// DurationHinter is optionally implemented by audio sinks that cannot
// observe the clip length themselves (e.g. headless sinks).
type DurationHinter interface {
	SetDurationHint(d time.Duration)
}

// VideoSink is the external video transition manager.
type VideoSink interface {
	// ChangeVideo switches to the clip at path.
	ChangeVideo(ctx context.Context, path string) error
	// Idle returns to the default clip.
	Idle(ctx context.Context) error
}

// SubtitleSink receives parsed cues for display.
type SubtitleSink interface {
	ShowSubtitles(cues []types.SubtitleCue, dur time.Duration)
	Clear()
}

// TrackPlayer plays one track to completion.
//
// Play never returns an error: failures are reported in the outcome and
// the call still settles. A panic inside a sink propagates to the caller.
type TrackPlayer interface {
	Kind() types.TrackKind
	Play(ctx context.Context, track types.MediaTrack) types.TrackOutcome
	// Stop returns the sink to its default state.
	Stop(ctx context.Context)
}

// waitFor blocks for d or until ctx is done. Returns false on ctx.
func waitFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
