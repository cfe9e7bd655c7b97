package player

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// VideoPlayer switches the video sink to the track's clip and settles after
// the track duration. The transition itself is not awaited: a transition
// error observed before the duration elapses marks the track failed.
type VideoPlayer struct {
	sink   VideoSink
	logger *log.Logger
}

// NewVideoPlayer creates a video player. logger may be nil.
func NewVideoPlayer(sink VideoSink, logger *log.Logger) *VideoPlayer {
	return &VideoPlayer{sink: sink, logger: logger}
}

// Kind implements TrackPlayer.
func (p *VideoPlayer) Kind() types.TrackKind { return types.TrackVideo }

// Play implements TrackPlayer.
func (p *VideoPlayer) Play(ctx context.Context, track types.MediaTrack) types.TrackOutcome {
	start := time.Now()
	out := types.TrackOutcome{Kind: types.TrackVideo}

	// The transition outlives the track: it is detached from ctx.
	changed := make(chan error, 1)
	go func() {
		changed <- p.sink.ChangeVideo(context.WithoutCancel(ctx), track.PayloadRef)
	}()

	ok := waitFor(ctx, track.Duration())
	out.Elapsed = time.Since(start)

	var err error
	select {
	case err = <-changed:
	default:
	}
	if err == nil && !ok {
		out.TimedOut = true
		err = fmt.Errorf("video playback not settled: %w", ctx.Err())
	}

	if err != nil {
		out.Error = err.Error()
		p.logger.Warn("video track failed", map[string]any{
			"payload_ref": track.PayloadRef,
			"error":       err.Error(),
		})
		return out
	}
	out.OK = true
	return out
}

// Stop implements TrackPlayer.
func (p *VideoPlayer) Stop(ctx context.Context) {
	if err := p.sink.Idle(ctx); err != nil {
		p.logger.Warn("video sink failed to return to idle", map[string]any{
			"error": err.Error(),
		})
	}
}
