// Package session runs one stream end-to-end: source -> engine -> journal,
// then publishes a completion event when the stream ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/mediasync/adapter"
	"github.com/pithecene-io/mediasync/engine"
	"github.com/pithecene-io/mediasync/journal"
	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/transport/ws"
	"github.com/pithecene-io/mediasync/types"
)

// Reasons reported in Result and SessionCompletedEvent.
const (
	ReasonStreamEnd      = "stream_end"
	ReasonCanceled       = "canceled"
	ReasonTransportError = "transport_error"
	ReasonSourceError    = "source_error"
)

const (
	// DefaultSettledBuffer is the capacity of the settled-result channel
	// between the dispatcher and the journal writer.
	DefaultSettledBuffer = 256
	// DefaultDrainTimeout bounds the wait for buffered packets after the
	// stream ends.
	DefaultDrainTimeout = 5 * time.Second

	finalizeTimeout = 30 * time.Second
)

// Source produces frames until the stream ends.
// *ws.Client and *ReplaySource implement it.
type Source interface {
	Run(ctx context.Context, handler ws.Handler) error
}

// Config configures an Orchestrator.
type Config struct {
	Source  Source
	Players engine.Players
	Engine  engine.Config

	// Policy receives every settled packet. Optional.
	Policy journal.Policy
	// Store receives the final metrics record. Optional. Closed by Policy.Close
	// when both share a store.
	Store journal.Store
	// Adapter is notified when the session completes. Optional.
	Adapter        adapter.Adapter
	AdapterTimeout time.Duration

	// Source and Day are the journal partition values echoed in the event.
	JournalSource string
	JournalDay    string
	StoragePath   string

	SettledBuffer int
	DrainTimeout  time.Duration
	Logger        *log.Logger
}

// Result summarizes a finished session.
type Result struct {
	SessionID    string
	ConnectionID string
	Reason       string
	StartedAt    time.Time
	Duration     time.Duration
	// Metrics is the engine snapshot taken just before it was stopped.
	Metrics metrics.Snapshot
	// Journal is the policy's final stats. Zero without a policy.
	Journal journal.Stats
	// JournalDropped counts settled results that could not be queued for
	// the journal because the writer fell behind.
	JournalDropped int64
	// Undrained is the number of packets still buffered when the engine
	// was stopped.
	Undrained int
	Err       error
}

// Orchestrator owns one engine for the lifetime of one stream.
type Orchestrator struct {
	config Config
	engine *engine.Engine
	logger *log.Logger
	sink   *settledSink

	connID atomic.Value
}

// New creates an orchestrator and its engine.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, errors.New("session requires a source")
	}
	if cfg.Players == nil {
		return nil, errors.New("session requires players")
	}
	if cfg.SettledBuffer <= 0 {
		cfg.SettledBuffer = DefaultSettledBuffer
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = finalizeTimeout
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = cfg.Logger
	}

	o := &Orchestrator{
		config: cfg,
		logger: cfg.Logger,
		sink:   newSettledSink(cfg.SettledBuffer),
	}

	observer := cfg.Engine.OnSettled
	engineCfg := cfg.Engine
	engineCfg.OnSettled = func(r types.PlaybackResult) {
		if !o.sink.send(r) {
			o.logger.Warn("journal queue unavailable, dropping playback record", map[string]any{
				"session_id": r.SessionID,
				"seq":        r.Seq,
			})
		}
		if observer != nil {
			observer(r)
		}
	}
	o.engine = engine.New(engineCfg, cfg.Players)
	return o, nil
}

// Engine returns the orchestrator's engine, for subscribing to snapshots.
func (o *Orchestrator) Engine() *engine.Engine {
	return o.engine
}

// ConnectionID returns the id of the most recent connection, or "".
func (o *Orchestrator) ConnectionID() string {
	id, _ := o.connID.Load().(string)
	return id
}

// Run consumes the source until it ends, then stops the engine, finalizes
// the journal and publishes the completion event.
//
// The returned error is non-nil only when the source failed; the Result is
// always populated.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now()
	o.logger.Info("session starting", nil)

	var g errgroup.Group
	var result *Result

	g.Go(func() error {
		o.writeJournal(ctx)
		return nil
	})

	g.Go(func() error {
		defer o.sink.close()

		srcErr := o.config.Source.Run(ctx, func(f ws.Frame) {
			if f.ConnectionID != "" {
				o.connID.Store(f.ConnectionID)
			}
			o.engine.HandleMessage(f.Data, f.Binary)
		})

		reason := classify(ctx, srcErr)
		if reason == ReasonStreamEnd {
			o.awaitDrain(ctx)
		}

		snap := o.engine.Snapshot()
		undrained := o.engine.QueueLength()
		o.engine.Stop()

		result = &Result{
			SessionID:    snap.SessionID,
			ConnectionID: o.ConnectionID(),
			Reason:       reason,
			StartedAt:    startedAt,
			Metrics:      snap,
			Undrained:    undrained,
		}
		if reason == ReasonTransportError || reason == ReasonSourceError {
			result.Err = srcErr
		}
		return nil
	})

	// Both goroutines always return nil.
	_ = g.Wait()

	o.finalize(ctx, result)
	result.Duration = time.Since(startedAt)

	o.logger.Info("session completed", map[string]any{
		"session_id":    result.SessionID,
		"connection_id": result.ConnectionID,
		"reason":        result.Reason,
		"received":      result.Metrics.Received,
		"played":        result.Metrics.Played,
		"failed":        result.Metrics.Failed,
		"undrained":     result.Undrained,
		"duration":      result.Duration.String(),
	})
	return result, result.Err
}

func classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return ReasonStreamEnd
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return ReasonCanceled
	case ws.IsTransportError(err):
		return ReasonTransportError
	default:
		return ReasonSourceError
	}
}

// awaitDrain waits until the engine has nothing buffered or in flight, so
// packets still inside their jitter window are played before Stop.
// A seq gap never fills after the stream ends, so the wait is bounded.
func (o *Orchestrator) awaitDrain(ctx context.Context) {
	deadline := time.NewTimer(o.config.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		if o.engine.QueueLength() == 0 && !o.engine.Snapshot().Processing {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.logger.Warn("drain timed out", map[string]any{
				"buffered": o.engine.QueueLength(),
			})
			return
		case <-tick.C:
		}
	}
}

// writeJournal hands settled results to the policy until the sink closes.
// Journal failures are logged; playback is never interrupted by storage.
func (o *Orchestrator) writeJournal(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for r := range o.sink.ch {
		if o.config.Policy == nil {
			continue
		}
		if err := o.config.Policy.Record(writeCtx, r); err != nil {
			o.logger.Error("journal write failed", map[string]any{
				"session_id": r.SessionID,
				"seq":        r.Seq,
				"error":      err.Error(),
			})
		}
	}
}

// finalize flushes the journal, writes the metrics record and publishes
// the completion event. All steps are best effort.
func (o *Orchestrator) finalize(ctx context.Context, result *Result) {
	result.JournalDropped = o.sink.dropped.Load()
	logger := o.logger.With(map[string]any{
		"session_id":    result.SessionID,
		"connection_id": result.ConnectionID,
	})

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if p := o.config.Policy; p != nil {
		if err := p.Flush(finalCtx); err != nil {
			logger.Warn("journal flush failed (best effort)", map[string]any{"error": err.Error()})
		}
	}
	if s := o.config.Store; s != nil && result.SessionID != "" {
		if err := s.WriteMetrics(finalCtx, result.SessionID, result.Metrics, time.Now()); err != nil {
			logger.Warn("metrics record write failed", map[string]any{"error": err.Error()})
		}
	}
	if p := o.config.Policy; p != nil {
		if err := p.Close(); err != nil {
			logger.Warn("journal close failed", map[string]any{"error": err.Error()})
		}
		result.Journal = p.Stats()
	}

	if a := o.config.Adapter; a != nil && result.SessionID != "" {
		pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.AdapterTimeout)
		defer pubCancel()
		if err := a.Publish(pubCtx, o.completionEvent(result)); err != nil {
			logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) completionEvent(r *Result) *adapter.SessionCompletedEvent {
	now := time.Now()
	started := r.Metrics.SessionStart
	if started.IsZero() {
		started = r.StartedAt
	}
	return &adapter.SessionCompletedEvent{
		EventType:    adapter.EventTypeSessionCompleted,
		Version:      types.Version,
		SessionID:    r.SessionID,
		ConnectionID: r.ConnectionID,
		Source:       o.config.JournalSource,
		Day:          o.config.JournalDay,
		Reason:       r.Reason,
		StoragePath:  o.config.StoragePath,
		StartedAt:    started.UTC().Format(time.RFC3339Nano),
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		DurationMs:   now.Sub(started).Milliseconds(),
		Received:     r.Metrics.Received,
		Played:       r.Metrics.Played,
		Failed:       r.Metrics.Failed,
		Dropped:      int64(r.Undrained),
		SuccessRate:  r.Metrics.SuccessRate,
		TracksByKind: r.Metrics.TracksByKind,
	}
}

// settledSink is a bounded queue that tolerates sends after close.
// The dispatcher may settle a packet concurrently with Stop.
type settledSink struct {
	mu      sync.Mutex
	ch      chan types.PlaybackResult
	closed  bool
	dropped atomic.Int64
}

func newSettledSink(capacity int) *settledSink {
	return &settledSink{ch: make(chan types.PlaybackResult, capacity)}
}

// send queues r without blocking. Returns false if r was dropped, either
// because the queue is full or because the journal writer has finished.
func (s *settledSink) send(r types.PlaybackResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return false
	}
	select {
	case s.ch <- r:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *settledSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// String formats a result for CLI output.
func (r *Result) String() string {
	return fmt.Sprintf("session %s: %s, received=%d played=%d failed=%d duration=%s",
		r.SessionID, r.Reason, r.Metrics.Received, r.Metrics.Played, r.Metrics.Failed,
		r.Duration.Round(time.Millisecond))
}
