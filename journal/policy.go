package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/types"
)

// Policy controls how playback results reach the store.
// Results are never dropped by a policy: failed writes are retried on the
// next flush or returned to the caller.
type Policy interface {
	// Record hands one settled packet to the policy.
	Record(ctx context.Context, result types.PlaybackResult) error
	// Flush writes anything buffered.
	Flush(ctx context.Context) error
	// Close flushes and closes the store.
	Close() error
	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats are policy counters.
type Stats struct {
	Total      int64 `json:"total"`
	Persisted  int64 `json:"persisted"`
	Buffered   int   `json:"buffered"`
	FlushCount int64 `json:"flush_count"`
	Errors     int64 `json:"errors"`
}

// Policy names.
const (
	PolicyStrict    = "strict"
	PolicyStreaming = "streaming"
)

// NewPolicy builds the named policy over store.
func NewPolicy(name string, store Store, cfg StreamingConfig) (Policy, error) {
	switch name {
	case "", PolicyStrict:
		return NewStrictPolicy(store), nil
	case PolicyStreaming:
		return NewStreamingPolicy(store, cfg)
	default:
		return nil, fmt.Errorf("unknown journal policy %q (expected strict or streaming)", name)
	}
}

// StrictPolicy writes every result immediately.
type StrictPolicy struct {
	store Store

	mu    sync.Mutex
	stats Stats
}

// NewStrictPolicy creates a write-through policy.
func NewStrictPolicy(store Store) *StrictPolicy {
	return &StrictPolicy{store: store}
}

// Record implements Policy.
func (p *StrictPolicy) Record(ctx context.Context, result types.PlaybackResult) error {
	p.mu.Lock()
	p.stats.Total++
	p.mu.Unlock()

	err := p.store.WritePlayback(ctx, []types.PlaybackResult{result})

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.Errors++
		return err
	}
	p.stats.Persisted++
	return nil
}

// Flush implements Policy. Nothing is buffered.
func (p *StrictPolicy) Flush(context.Context) error {
	p.mu.Lock()
	p.stats.FlushCount++
	p.mu.Unlock()
	return nil
}

// Close implements Policy.
func (p *StrictPolicy) Close() error {
	return p.store.Close()
}

// Stats implements Policy.
func (p *StrictPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount flushes after N results accumulate. Zero disables.
	FlushCount int
	// FlushInterval flushes on a timer. Zero disables.
	FlushInterval time.Duration
	// Logger is optional.
	Logger *log.Logger
}

// ErrStreamingInvalidConfig is returned when neither trigger is set.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy batches results and flushes on count or interval.
//
// On a failed flush the batch is restored ahead of newer results and
// retried on the next trigger.
type StreamingPolicy struct {
	store  Store
	config StreamingConfig
	logger *log.Logger

	mu     sync.Mutex // guards buffer and stats
	buffer []types.PlaybackResult
	stats  Stats

	// flushMu serializes flushes from the interval loop and count trigger.
	flushMu sync.Mutex

	stopCh  chan struct{}
	stopped bool
	done    chan struct{}
}

// NewStreamingPolicy creates a batching policy.
func NewStreamingPolicy(store Store, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}
	p := &StreamingPolicy{
		store:  store,
		config: config,
		logger: config.Logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if config.FlushInterval > 0 {
		go p.intervalLoop()
	} else {
		close(p.done)
	}
	return p, nil
}

// Record implements Policy.
func (p *StreamingPolicy) Record(ctx context.Context, result types.PlaybackResult) error {
	p.mu.Lock()
	p.stats.Total++
	p.buffer = append(p.buffer, result)
	shouldFlush := p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount
	p.mu.Unlock()

	if shouldFlush {
		return p.flush(ctx, "count")
	}
	return nil
}

// Flush implements Policy.
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.flush(ctx, "termination")
}

func (p *StreamingPolicy) flush(ctx context.Context, trigger string) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.FlushCount++
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.store.WritePlayback(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.Errors++
		p.buffer = append(batch, p.buffer...)
		p.mu.Unlock()
		p.logger.Error("journal flush failed", map[string]any{
			"trigger": trigger,
			"records": len(batch),
			"error":   err.Error(),
		})
		return err
	}

	p.mu.Lock()
	p.stats.Persisted += int64(len(batch))
	p.mu.Unlock()
	p.logger.Debug("journal flush", map[string]any{
		"trigger": trigger,
		"records": len(batch),
	})
	return nil
}

// Close implements Policy: stops the interval loop, flushes and closes
// the store.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	<-p.done

	flushErr := p.Flush(context.Background())
	return errors.Join(flushErr, p.store.Close())
}

// Stats implements Policy.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Buffered = len(p.buffer)
	return s
}

func (p *StreamingPolicy) intervalLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are logged; the batch stays buffered for the next tick.
			_ = p.flush(context.Background(), "interval")
		case <-p.stopCh:
			return
		}
	}
}

var (
	_ Policy = (*StrictPolicy)(nil)
	_ Policy = (*StreamingPolicy)(nil)
)
