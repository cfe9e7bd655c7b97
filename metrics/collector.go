// Package metrics provides per-session playback metrics for the sync engine.
//
// The Collector accumulates counters, gauges and bounded recent samples. It is
// a leaf package with no internal dependencies; track kinds and engine states
// are passed as strings. Metrics are advisory: nothing in the dispatch path
// reads them back.
package metrics

import (
	"sync"
	"time"
)

// DefaultSampleWindow is the number of recent samples retained per series.
const DefaultSampleWindow = 10

// Collector accumulates metrics for one engine.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Session gauges
	state      string
	sessionID  string
	queueLen   int
	maxQueue   int
	processing bool
	lastSeq    int64
	hasLastSeq bool

	// Ingress
	received        int64
	accepted        int64
	invalid         int64
	sessionMismatch int64
	duplicates      int64
	stale           int64
	outOfOrder      int64
	ignored         int64

	// Dispatch
	played        int64
	failed        int64
	trackFailures int64
	tracksByKind  map[string]int64

	// Samples
	processingTimes   *ring[time.Duration]
	playbackLatencies *ring[time.Duration]
	networkLatencies  *ring[time.Duration]

	// Timestamps
	sessionStart time.Time
	lastReceived time.Time
	lastPlayed   time.Time

	window int
	now    func() time.Time
}

// NewCollector creates a Collector retaining window recent samples per series.
// A window below 1 uses DefaultSampleWindow.
func NewCollector(window int) *Collector {
	if window < 1 {
		window = DefaultSampleWindow
	}
	c := &Collector{window: window, now: time.Now}
	c.clearLocked()
	return c
}

// clearLocked clears every counter, gauge and sample. Caller must hold mu
// or own c exclusively.
func (c *Collector) clearLocked() {
	c.state, c.sessionID = "idle", ""
	c.queueLen, c.maxQueue = 0, 0
	c.processing = false
	c.lastSeq, c.hasLastSeq = 0, false
	c.received, c.accepted, c.invalid, c.sessionMismatch = 0, 0, 0, 0
	c.duplicates, c.stale, c.outOfOrder, c.ignored = 0, 0, 0, 0
	c.played, c.failed, c.trackFailures = 0, 0, 0
	c.tracksByKind = make(map[string]int64)
	c.processingTimes = newRing[time.Duration](c.window)
	c.playbackLatencies = newRing[time.Duration](c.window)
	c.networkLatencies = newRing[time.Duration](c.window)
	c.sessionStart, c.lastReceived, c.lastPlayed = time.Time{}, time.Time{}, time.Time{}
}

// Reset clears all metrics. Called when the engine returns to idle.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
}

// --- Session gauges ---

// SetSession records the bound session and its start time.
func (c *Collector) SetSession(sessionID string, start time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.sessionStart = start
	c.mu.Unlock()
}

// SetState records the engine state name.
func (c *Collector) SetState(state string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// SetProcessing records whether the dispatcher has a packet in flight.
func (c *Collector) SetProcessing(processing bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.processing = processing
	c.mu.Unlock()
}

// SetQueueLength records the current buffer depth and updates the maximum.
func (c *Collector) SetQueueLength(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queueLen = n
	if n > c.maxQueue {
		c.maxQueue = n
	}
	c.mu.Unlock()
}

// --- Ingress ---

// IncReceived records a packet arriving at ingress, valid or not.
func (c *Collector) IncReceived(at time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.received++
	c.lastReceived = at
	c.mu.Unlock()
}

// RecordAccepted records a packet entering the buffer. networkLatency is
// sampled only when known is true.
func (c *Collector) RecordAccepted(networkLatency time.Duration, known bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.accepted++
	if known {
		c.networkLatencies.push(networkLatency)
	}
	c.mu.Unlock()
}

// IncInvalid records a structurally invalid packet.
func (c *Collector) IncInvalid() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invalid++
	c.mu.Unlock()
}

// IncSessionMismatch records a packet for a different session.
func (c *Collector) IncSessionMismatch() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionMismatch++
	c.mu.Unlock()
}

// IncDuplicate records a packet whose seq was already dispatched or buffered.
func (c *Collector) IncDuplicate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.duplicates++
	c.mu.Unlock()
}

// IncStale records a packet older than the last dispatched seq.
func (c *Collector) IncStale() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stale++
	c.mu.Unlock()
}

// IncOutOfOrder records a forward seq gap. Advisory; the packet is still buffered.
func (c *Collector) IncOutOfOrder() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.outOfOrder++
	c.mu.Unlock()
}

// IncIgnored records an inbound message that was not a media packet.
func (c *Collector) IncIgnored() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ignored++
	c.mu.Unlock()
}

// --- Dispatch ---

// Settlement describes one settled packet.
type Settlement struct {
	Seq            int64
	Played         bool
	Kinds          []string
	TrackFailures  int
	Latency        time.Duration
	ProcessingTime time.Duration
	At             time.Time
}

// RecordSettled records a packet leaving flight, played or failed.
func (c *Collector) RecordSettled(s Settlement) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Played {
		c.played++
		c.lastPlayed = s.At
	} else {
		c.failed++
	}
	c.trackFailures += int64(s.TrackFailures)
	for _, k := range s.Kinds {
		c.tracksByKind[k]++
	}
	c.lastSeq = s.Seq
	c.hasLastSeq = true
	c.processingTimes.push(s.ProcessingTime)
	c.playbackLatencies.push(s.Latency)
}

// --- Snapshot ---

// Snapshot is an immutable point-in-time view of engine metrics.
type Snapshot struct {
	State          string `json:"state" yaml:"state"`
	SessionID      string `json:"session_id" yaml:"session_id"`
	QueueLength    int    `json:"queue_length" yaml:"queue_length"`
	MaxQueueLength int    `json:"max_queue_length" yaml:"max_queue_length"`
	Processing     bool   `json:"processing" yaml:"processing"`
	LastSeq        int64  `json:"last_seq" yaml:"last_seq"`
	HasLastSeq     bool   `json:"has_last_seq" yaml:"has_last_seq"`

	Received        int64 `json:"received" yaml:"received"`
	Accepted        int64 `json:"accepted" yaml:"accepted"`
	Played          int64 `json:"played" yaml:"played"`
	Failed          int64 `json:"failed" yaml:"failed"`
	Invalid         int64 `json:"invalid" yaml:"invalid"`
	SessionMismatch int64 `json:"session_mismatch" yaml:"session_mismatch"`
	Duplicates      int64 `json:"duplicates" yaml:"duplicates"`
	Stale           int64 `json:"stale" yaml:"stale"`
	OutOfOrder      int64 `json:"out_of_order" yaml:"out_of_order"`
	TrackFailures   int64 `json:"track_failures" yaml:"track_failures"`
	IgnoredMessages int64 `json:"ignored_messages" yaml:"ignored_messages"`

	TracksByKind map[string]int64 `json:"tracks_by_kind" yaml:"tracks_by_kind"`

	ProcessingTimes   []time.Duration `json:"processing_times" yaml:"processing_times"`
	PlaybackLatencies []time.Duration `json:"playback_latencies" yaml:"playback_latencies"`
	NetworkLatencies  []time.Duration `json:"network_latencies" yaml:"network_latencies"`

	SessionStart time.Time `json:"session_start" yaml:"session_start"`
	LastReceived time.Time `json:"last_received" yaml:"last_received"`
	LastPlayed   time.Time `json:"last_played" yaml:"last_played"`
	TakenAt      time.Time `json:"taken_at" yaml:"taken_at"`

	// Derived
	SuccessRate           float64       `json:"success_rate" yaml:"success_rate"`
	ThroughputPerMinute   float64       `json:"throughput_per_minute" yaml:"throughput_per_minute"`
	AverageProcessingTime time.Duration `json:"average_processing_time" yaml:"average_processing_time"`
	AverageLatency        time.Duration `json:"average_latency" yaml:"average_latency"`
	AverageJitter         time.Duration `json:"average_jitter" yaml:"average_jitter"`
	AverageNetworkLatency time.Duration `json:"average_network_latency" yaml:"average_network_latency"`
}

// Snapshot returns a point-in-time copy with derived values computed.
// The returned Snapshot is safe to read concurrently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	byKind := make(map[string]int64, len(c.tracksByKind))
	for k, v := range c.tracksByKind {
		byKind[k] = v
	}

	s := Snapshot{
		State:          c.state,
		SessionID:      c.sessionID,
		QueueLength:    c.queueLen,
		MaxQueueLength: c.maxQueue,
		Processing:     c.processing,
		LastSeq:        c.lastSeq,
		HasLastSeq:     c.hasLastSeq,

		Received:        c.received,
		Accepted:        c.accepted,
		Played:          c.played,
		Failed:          c.failed,
		Invalid:         c.invalid,
		SessionMismatch: c.sessionMismatch,
		Duplicates:      c.duplicates,
		Stale:           c.stale,
		OutOfOrder:      c.outOfOrder,
		TrackFailures:   c.trackFailures,
		IgnoredMessages: c.ignored,

		TracksByKind: byKind,

		ProcessingTimes:   c.processingTimes.snapshot(),
		PlaybackLatencies: c.playbackLatencies.snapshot(),
		NetworkLatencies:  c.networkLatencies.snapshot(),

		SessionStart: c.sessionStart,
		LastReceived: c.lastReceived,
		LastPlayed:   c.lastPlayed,
		TakenAt:      now,
	}

	if s.Received > 0 {
		s.SuccessRate = float64(s.Played) / float64(s.Received)
	}
	if !c.sessionStart.IsZero() {
		if minutes := now.Sub(c.sessionStart).Minutes(); minutes > 0 {
			s.ThroughputPerMinute = float64(s.Played) / minutes
		}
	}
	s.AverageProcessingTime = mean(s.ProcessingTimes)
	s.AverageLatency = mean(s.PlaybackLatencies)
	s.AverageJitter = meanAbsDelta(s.PlaybackLatencies)
	s.AverageNetworkLatency = mean(s.NetworkLatencies)

	return s
}

func mean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return sum / time.Duration(len(samples))
}

// meanAbsDelta is the mean absolute difference between consecutive samples.
func meanAbsDelta(samples []time.Duration) time.Duration {
	if len(samples) < 2 {
		return 0
	}
	var sum time.Duration
	for i := 1; i < len(samples); i++ {
		d := samples[i] - samples[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / time.Duration(len(samples)-1)
}
