package player

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// AudioPlayer plays audio tracks on a shared AudioSink.
// It settles on the sink's terminal event. Sink errors settle the track
// as failed without failing the packet.
//
// The sink is a single output, so audio tracks of one packet take turns
// on it; other kinds still run alongside.
type AudioPlayer struct {
	sink   AudioSink
	logger *log.Logger
	turn   chan struct{} // holds a token while a track owns the sink
}

// NewAudioPlayer creates an audio player. logger may be nil.
func NewAudioPlayer(sink AudioSink, logger *log.Logger) *AudioPlayer {
	return &AudioPlayer{sink: sink, logger: logger, turn: make(chan struct{}, 1)}
}

// Kind implements TrackPlayer.
func (p *AudioPlayer) Kind() types.TrackKind { return types.TrackAudio }

// Play implements TrackPlayer.
func (p *AudioPlayer) Play(ctx context.Context, track types.MediaTrack) types.TrackOutcome {
	start := time.Now()
	out := types.TrackOutcome{Kind: types.TrackAudio}

	select {
	case p.turn <- struct{}{}:
		defer func() { <-p.turn }()
	case <-ctx.Done():
		out.TimedOut = true
		out.Elapsed = time.Since(start)
		out.Error = fmt.Sprintf("audio sink busy: %v", ctx.Err())
		return out
	}

	if h, ok := p.sink.(DurationHinter); ok {
		h.SetDurationHint(track.Duration())
	}

	done, err := p.sink.Play(track.PayloadRef)
	if err == nil {
		select {
		case err = <-done:
		case <-ctx.Done():
			out.TimedOut = true
			err = fmt.Errorf("audio playback not settled: %w", ctx.Err())
		}
	}

	out.Elapsed = time.Since(start)
	if err != nil {
		out.Error = err.Error()
		p.logger.Warn("audio track failed", map[string]any{
			"payload_ref": track.PayloadRef,
			"error":       err.Error(),
		})
		return out
	}
	out.OK = true
	return out
}

// Stop implements TrackPlayer.
func (p *AudioPlayer) Stop(context.Context) {
	p.sink.Stop()
}
