package player

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// PanicError reports a panic raised by a player or sink during dispatch.
type PanicError struct {
	Kind  types.TrackKind
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s player panicked: %v", e.Kind, e.Value)
}

// Set bundles one player per track kind.
type Set struct {
	players map[types.TrackKind]TrackPlayer
}

// NewSet creates a player set. Later players replace earlier ones of the
// same kind.
func NewSet(players ...TrackPlayer) *Set {
	s := &Set{players: make(map[types.TrackKind]TrackPlayer, len(players))}
	for _, p := range players {
		s.players[p.Kind()] = p
	}
	return s
}

// NewSinkSet creates the standard audio/video/subtitle set.
func NewSinkSet(audio AudioSink, video VideoSink, subtitle SubtitleSink, logger *log.Logger) *Set {
	return NewSet(
		NewAudioPlayer(audio, logger),
		NewVideoPlayer(video, logger),
		NewSubtitlePlayer(subtitle, logger),
	)
}

// PlayPacket starts every track of pkt concurrently and waits for all of
// them to settle. Outcomes are returned in track order.
//
// Track failures are reported in the outcomes only. The returned error is
// non-nil only when a player panicked (*PanicError) or a track has no
// player; the remaining tracks still settle first.
func (s *Set) PlayPacket(ctx context.Context, pkt *types.MediaPacket) ([]types.TrackOutcome, error) {
	outcomes := make([]types.TrackOutcome, len(pkt.Tracks))

	var g errgroup.Group
	for i, track := range pkt.Tracks {
		p, ok := s.players[track.Kind]
		if !ok {
			outcomes[i] = types.TrackOutcome{Kind: track.Kind, Error: "no player"}
			g.Go(func() error {
				return fmt.Errorf("no player for track kind %s", track.Kind)
			})
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = types.TrackOutcome{Kind: track.Kind, Error: fmt.Sprint(r)}
					err = &PanicError{Kind: track.Kind, Value: r, Stack: debug.Stack()}
				}
			}()
			outcomes[i] = p.Play(ctx, track)
			return nil
		})
	}

	return outcomes, g.Wait()
}

// Stop returns every sink to its default state. Panics from sinks are
// swallowed so that teardown always reaches every sink.
func (s *Set) Stop(ctx context.Context) {
	for _, kind := range types.TrackKinds {
		p, ok := s.players[kind]
		if !ok {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			p.Stop(ctx)
		}()
	}
}
