package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/types"
)

// drain dispatches every eligible packet in seq order, one at a time.
// It is safe to call from any goroutine at any time: if a drain loop is
// already running the call is a no-op, and that loop re-checks the buffer
// after each packet settles.
func (e *Engine) drain() {
	e.mu.Lock()
	if e.processing || e.state != StateActive {
		e.mu.Unlock()
		return
	}
	e.processing = true
	e.collector.SetProcessing(true)
	epoch := e.epoch

	for {
		sp := e.nextEligibleLocked(time.Now())
		if sp == nil {
			break
		}
		e.buffer.pop()
		e.inFlightSeq, e.hasInFlight = sp.pkt.Seq, true
		e.collector.SetQueueLength(e.buffer.len())
		e.mu.Unlock()
		e.publish()

		result := e.dispatch(sp)

		e.mu.Lock()
		if e.epoch != epoch {
			// Reset while in flight: the new session owns all state now.
			e.mu.Unlock()
			e.logger.Debug("discarding result from previous session", map[string]any{
				"session_id": result.SessionID,
				"seq":        result.Seq,
			})
			return
		}
		e.lastSeq = sp.pkt.Seq
		e.hasLastSeq = true
		e.hasInFlight = false
		e.collector.RecordSettled(settlement(sp, result))
		e.mu.Unlock()

		if e.cfg.OnSettled != nil {
			e.cfg.OnSettled(result)
		}
		e.publish()

		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return
		}
	}

	e.processing = false
	e.collector.SetProcessing(false)
	e.mu.Unlock()
	e.publish()
}

// nextEligibleLocked returns the head of the buffer if it is the next seq
// in order and its jitter window has elapsed. Before the first dispatch of
// a session the lowest buffered seq starts the sequence. Heads at or below
// the last dispatched seq can never play and are discarded as stale.
func (e *Engine) nextEligibleLocked(now time.Time) *scheduledPacket {
	head := e.buffer.peek()
	for head != nil && e.hasLastSeq && head.pkt.Seq <= e.lastSeq {
		e.buffer.pop()
		e.collector.IncStale()
		e.collector.SetQueueLength(e.buffer.len())
		e.logger.Warn("discarding buffered packet behind last dispatched seq", map[string]any{
			"seq":      head.pkt.Seq,
			"last_seq": e.lastSeq,
		})
		head = e.buffer.peek()
	}
	if head == nil {
		return nil
	}
	if e.hasLastSeq && head.pkt.Seq != e.lastSeq+1 {
		return nil
	}
	if now.Before(head.scheduledPlayAt) {
		return nil
	}
	return head
}

// dispatch plays one packet to settlement. Called without the lock.
func (e *Engine) dispatch(sp *scheduledPacket) types.PlaybackResult {
	pkt := sp.pkt
	result := types.PlaybackResult{
		SessionID:  pkt.SessionID,
		Seq:        pkt.Seq,
		Hash:       pkt.Hash,
		ReceivedAt: sp.receivedAt,
		StartedAt:  time.Now(),
	}

	ctx := context.Background()
	if e.cfg.PacketTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PacketTimeout)
		defer cancel()
	}

	e.logger.Debug("dispatching packet", map[string]any{
		"seq":        pkt.Seq,
		"tracks":     len(pkt.Tracks),
		"latency_ms": result.StartedAt.Sub(sp.receivedAt).Milliseconds(),
	})

	outcomes, err := e.playPacket(ctx, pkt)
	result.SettledAt = time.Now()
	result.Tracks = outcomes

	if err != nil {
		result.Outcome = types.PacketFailed
		result.Error = err.Error()
		e.logger.Error("packet dispatch failed", map[string]any{
			"seq":   pkt.Seq,
			"error": err.Error(),
		})
		e.players.Stop(context.Background())
		return result
	}

	result.Outcome = types.PacketPlayed
	return result
}

// playPacket runs the players, converting a panic into an error.
func (e *Engine) playPacket(ctx context.Context, pkt *types.MediaPacket) (outcomes []types.TrackOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("packet playback panicked: %v", r)
		}
	}()
	return e.players.PlayPacket(ctx, pkt)
}

func settlement(sp *scheduledPacket, r types.PlaybackResult) metrics.Settlement {
	s := metrics.Settlement{
		Seq:            r.Seq,
		Played:         r.Outcome == types.PacketPlayed,
		Latency:        r.Latency(),
		ProcessingTime: r.ProcessingTime(),
		At:             r.SettledAt,
	}
	for _, k := range sp.pkt.Kinds() {
		s.Kinds = append(s.Kinds, k.String())
	}
	for _, t := range r.Tracks {
		if !t.OK {
			s.TrackFailures++
		}
	}
	return s
}
