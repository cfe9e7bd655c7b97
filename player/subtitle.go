package player

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// SubtitlePlayer parses cue data from the payload reference, emits it to the
// subtitle sink and settles after the track duration.
type SubtitlePlayer struct {
	sink   SubtitleSink
	logger *log.Logger
}

// NewSubtitlePlayer creates a subtitle player. logger may be nil.
func NewSubtitlePlayer(sink SubtitleSink, logger *log.Logger) *SubtitlePlayer {
	return &SubtitlePlayer{sink: sink, logger: logger}
}

// Kind implements TrackPlayer.
func (p *SubtitlePlayer) Kind() types.TrackKind { return types.TrackSubtitle }

// Play implements TrackPlayer.
func (p *SubtitlePlayer) Play(ctx context.Context, track types.MediaTrack) types.TrackOutcome {
	start := time.Now()
	out := types.TrackOutcome{Kind: types.TrackSubtitle}

	cues, err := ParseCues(track.PayloadRef, track.Dur)
	if err == nil {
		p.sink.ShowSubtitles(cues, track.Duration())
		if !waitFor(ctx, track.Duration()) {
			out.TimedOut = true
			err = fmt.Errorf("subtitle display not settled: %w", ctx.Err())
		}
	}

	out.Elapsed = time.Since(start)
	if err != nil {
		out.Error = err.Error()
		p.logger.Warn("subtitle track failed", map[string]any{
			"error": err.Error(),
		})
		return out
	}
	out.OK = true
	return out
}

// Stop implements TrackPlayer.
func (p *SubtitlePlayer) Stop(context.Context) {
	p.sink.Clear()
}

type cueDocument struct {
	Cues []types.SubtitleCue `json:"cues"`
}

// ParseCues parses a subtitle payload.
//
// Accepted forms:
//   - a JSON array of cues
//   - a JSON object {"cues": [...]}
//   - anything else is one plain-text cue spanning durMs
//
// A payload that starts like JSON but fails to parse is an error.
func ParseCues(payload string, durMs int64) ([]types.SubtitleCue, error) {
	trimmed := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(trimmed, "["):
		var cues []types.SubtitleCue
		if err := json.Unmarshal([]byte(trimmed), &cues); err != nil {
			return nil, fmt.Errorf("invalid subtitle cue list: %w", err)
		}
		return cues, nil
	case strings.HasPrefix(trimmed, "{"):
		var doc cueDocument
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return nil, fmt.Errorf("invalid subtitle document: %w", err)
		}
		return doc.Cues, nil
	case trimmed == "":
		return nil, fmt.Errorf("empty subtitle payload")
	default:
		return []types.SubtitleCue{{Text: trimmed, StartMs: 0, EndMs: durMs}}, nil
	}
}
