// Package engine implements the media sync engine: ingress validation, a
// jitter/reorder buffer and a strictly sequential dispatcher that drives
// the track players one packet at a time.
//
// Guarantees:
//   - Packets are dispatched in strictly increasing seq order, regardless of
//     arrival order.
//   - At most one packet is in flight. Packet N+1 does not start until every
//     track of packet N has settled.
//   - A packet is not dispatched before receivedAt + JitterWindow.
//   - A seq is dispatched at most once per session.
//   - Packet problems never surface as errors to the caller; they are
//     classified in AcceptResult and counted in metrics.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/types"
	"github.com/pithecene-io/mediasync/wire"
)

// DefaultJitterWindow is the fixed delay before a packet becomes eligible.
const DefaultJitterWindow = 300 * time.Millisecond

// State is the engine lifecycle state.
type State int

const (
	// StateIdle means no session is bound.
	StateIdle State = iota
	// StateActive means a session is bound and the dispatcher is running.
	StateActive
)

// String returns the state name.
func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// ErrSessionActive is returned by Start when a session is already bound.
var ErrSessionActive = errors.New("engine already has an active session")

// Players plays every track of a packet and returns to idle on Stop.
// *player.Set implements it.
type Players interface {
	PlayPacket(ctx context.Context, pkt *types.MediaPacket) ([]types.TrackOutcome, error)
	Stop(ctx context.Context)
}

// Config configures an Engine.
type Config struct {
	// JitterWindow delays dispatch eligibility. Zero means DefaultJitterWindow.
	JitterWindow time.Duration
	// PacketTimeout bounds how long the dispatcher waits for a packet's
	// tracks. Zero disables the bound.
	PacketTimeout time.Duration
	// SampleWindow is the number of recent samples kept per series.
	SampleWindow int
	// Logger is optional.
	Logger *log.Logger
	// OnSettled is called once per settled packet, in seq order, outside
	// the engine lock. It must not block.
	OnSettled func(types.PlaybackResult)
}

func (c Config) withDefaults() Config {
	if c.JitterWindow <= 0 {
		c.JitterWindow = DefaultJitterWindow
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = metrics.DefaultSampleWindow
	}
	return c
}

// Engine synchronizes playback of a stream of media packets.
type Engine struct {
	cfg       Config
	players   Players
	collector *metrics.Collector
	logger    *log.Logger

	mu         sync.Mutex
	state      State
	session    types.SessionContext
	buffer     reorderBuffer
	lastSeq    int64
	hasLastSeq bool
	maxSeq     int64 // highest accepted seq this session
	hasMaxSeq  bool
	// inFlightSeq is the packet popped from the buffer and not yet settled.
	inFlightSeq int64
	hasInFlight bool
	processing  bool
	epoch       uint64
	timers      map[uint64]*time.Timer
	nextTimer   uint64

	subMu sync.Mutex
	subs  map[chan metrics.Snapshot]struct{}
}

// New creates an idle engine driving players.
func New(cfg Config, players Players) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		players:   players,
		collector: metrics.NewCollector(cfg.SampleWindow),
		logger:    cfg.Logger,
		timers:    make(map[uint64]*time.Timer),
		subs:      make(map[chan metrics.Snapshot]struct{}),
	}
	e.collector.SetState(StateIdle.String())
	return e
}

// Start binds the engine to an explicit session. An empty SessionID leaves
// the engine idle; it then binds on the first valid packet.
func (e *Engine) Start(sc types.SessionContext) error {
	e.mu.Lock()
	if e.state == StateActive {
		e.mu.Unlock()
		return ErrSessionActive
	}
	if sc.StartedAt.IsZero() {
		sc.StartedAt = time.Now()
	}
	e.session = sc
	if sc.SessionID != "" {
		e.bindLocked(sc.SessionID, sc.StartedAt)
	}
	e.mu.Unlock()

	e.publish()
	return nil
}

// bindLocked transitions Idle -> Active.
func (e *Engine) bindLocked(sessionID string, at time.Time) {
	e.session.SessionID = sessionID
	if e.session.StartedAt.IsZero() {
		e.session.StartedAt = at
	}
	e.state = StateActive
	e.collector.SetSession(sessionID, e.session.StartedAt)
	e.collector.SetState(StateActive.String())
	e.logger.Info("session bound", map[string]any{
		"session_id": sessionID,
	})
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID returns the bound session, or "".
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return ""
	}
	return e.session.SessionID
}

// Session returns the current session context.
func (e *Engine) Session() types.SessionContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// QueueLength returns the number of buffered packets.
func (e *Engine) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.len()
}

// LastDispatchedSeq returns the last settled seq, and false if none.
func (e *Engine) LastDispatchedSeq() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeq, e.hasLastSeq
}

// HandleMessage decodes one inbound frame and accepts its packet.
// binary selects msgpack decoding; otherwise the frame is JSON.
// Non-packet messages are Ignored; undecodable packets are Invalid.
func (e *Engine) HandleMessage(data []byte, binary bool) AcceptResult {
	format := wire.FormatJSON
	if binary {
		format = wire.FormatMsgpack
	}

	msg, err := wire.Decode(data, format)
	if err != nil {
		if wire.IsUnknownType(err) {
			e.collector.IncIgnored()
			e.logger.Debug("ignoring message", map[string]any{"error": err.Error()})
			return AcceptResult{Class: Ignored, Err: err}
		}
		e.collector.IncReceived(time.Now())
		e.collector.IncInvalid()
		e.logger.Warn("undecodable packet", map[string]any{"error": err.Error()})
		e.publish()
		return AcceptResult{Class: Invalid, Err: err}
	}

	if msg.SessionInfo != nil {
		e.mu.Lock()
		if e.session.Info == nil {
			e.session.Info = msg.SessionInfo
		}
		e.mu.Unlock()
	}

	return e.Accept(msg.Packet, msg.ServerTimestamp)
}

// Accept validates pkt and, if accepted, buffers it for dispatch after the
// jitter window. serverTimestamp is the server send time in seconds since
// the epoch; zero means unknown.
func (e *Engine) Accept(pkt *types.MediaPacket, serverTimestamp float64) AcceptResult {
	now := time.Now()
	e.collector.IncReceived(now)
	defer e.publish()

	if err := Validate(pkt); err != nil {
		e.collector.IncInvalid()
		e.logger.Warn("invalid packet", map[string]any{"error": err.Error()})
		return AcceptResult{Class: Invalid, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		e.bindLocked(pkt.SessionID, now)
	} else if pkt.SessionID != e.session.SessionID {
		e.collector.IncSessionMismatch()
		e.logger.Warn("session mismatch", map[string]any{
			"session_id":        e.session.SessionID,
			"packet_session_id": pkt.SessionID,
			"seq":               pkt.Seq,
		})
		return AcceptResult{Class: SessionMismatch, Err: ErrSessionMismatch}
	}

	if floor, ok := e.floorSeqLocked(); ok && pkt.Seq <= floor {
		err := &SequenceError{Seq: pkt.Seq, LastSeq: e.lastSeq, InFlight: e.hasInFlight && pkt.Seq == e.inFlightSeq}
		// Already playing or already played.
		if pkt.Seq == floor || (e.hasLastSeq && pkt.Seq == e.lastSeq) {
			e.collector.IncDuplicate()
			e.logger.Debug("duplicate packet", map[string]any{"seq": pkt.Seq, "in_flight": err.InFlight})
			return AcceptResult{Class: Duplicate, Err: err}
		}
		e.collector.IncStale()
		e.logger.Debug("stale packet", map[string]any{"seq": pkt.Seq, "floor": floor})
		return AcceptResult{Class: Stale, Err: err}
	}
	if e.buffer.contains(pkt.Seq) {
		e.collector.IncDuplicate()
		e.logger.Debug("duplicate packet", map[string]any{"seq": pkt.Seq, "buffered": true})
		return AcceptResult{Class: Duplicate, Err: &SequenceError{Seq: pkt.Seq, LastSeq: e.lastSeq, Buffered: true}}
	}

	res := AcceptResult{Class: Accepted}
	if expected, ok := e.expectedSeqLocked(); ok && pkt.Seq > expected {
		res.OutOfOrder = true
		e.collector.IncOutOfOrder()
		e.logger.Debug("out of order packet", map[string]any{"seq": pkt.Seq, "expected": expected})
	}

	sp := &scheduledPacket{
		pkt:             pkt,
		receivedAt:      now,
		scheduledPlayAt: now.Add(e.cfg.JitterWindow),
	}
	e.buffer.insert(sp)
	if !e.hasMaxSeq || pkt.Seq > e.maxSeq {
		e.maxSeq = pkt.Seq
		e.hasMaxSeq = true
	}

	var netLatency time.Duration
	known := serverTimestamp > 0
	if known {
		netLatency = now.Sub(time.UnixMilli(int64(serverTimestamp * 1000)))
	}
	e.collector.RecordAccepted(netLatency, known)
	e.collector.SetQueueLength(e.buffer.len())

	e.armLocked(e.cfg.JitterWindow)
	return res
}

// floorSeqLocked returns the highest seq that has left the buffer: the
// in-flight packet if any, else the last settled one. Nothing at or below
// it may be buffered again.
func (e *Engine) floorSeqLocked() (int64, bool) {
	if e.hasInFlight {
		return e.inFlightSeq, true
	}
	return e.lastSeq, e.hasLastSeq
}

// expectedSeqLocked returns the seq that follows everything seen so far:
// max(last dispatched, highest accepted) + 1. A packet above it is counted
// as out of order, so one missing seq is counted once, on the first packet
// that skips it, rather than on every packet buffered behind the gap. The
// counter is advisory and never affects dispatch.
func (e *Engine) expectedSeqLocked() (int64, bool) {
	switch {
	case e.hasLastSeq && e.hasMaxSeq:
		return max(e.lastSeq, e.maxSeq) + 1, true
	case e.hasLastSeq:
		return e.lastSeq + 1, true
	case e.hasMaxSeq:
		return e.maxSeq + 1, true
	default:
		return 0, false
	}
}

// armLocked schedules a drain attempt after d.
func (e *Engine) armLocked(d time.Duration) {
	id := e.nextTimer
	e.nextTimer++
	epoch := e.epoch
	e.timers[id] = time.AfterFunc(d, func() {
		e.mu.Lock()
		delete(e.timers, id)
		stale := e.epoch != epoch
		e.mu.Unlock()
		if !stale {
			e.drain()
		}
	})
}

// Reset discards buffered packets, unbinds the session, returns the sinks
// to their default state and clears metrics. A packet already in flight is
// left to settle; its result is discarded.
func (e *Engine) Reset() {
	e.teardown("reset")
}

// Stop ends the session. It is Reset with the stream considered finished.
func (e *Engine) Stop() {
	e.teardown("stop")
}

func (e *Engine) teardown(reason string) {
	e.mu.Lock()
	sessionID := e.session.SessionID
	dropped := e.buffer.len()

	e.epoch++
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.buffer.clear()
	e.lastSeq, e.hasLastSeq = 0, false
	e.maxSeq, e.hasMaxSeq = 0, false
	e.inFlightSeq, e.hasInFlight = 0, false
	e.processing = false
	e.session = types.SessionContext{}
	e.state = StateIdle

	e.collector.Reset()
	e.collector.SetState(StateIdle.String())
	e.mu.Unlock()

	e.players.Stop(context.Background())

	e.logger.Info("session "+reason, map[string]any{
		"session_id": sessionID,
		"dropped":    dropped,
	})
	e.publish()
}

// Snapshot returns the current metrics.
func (e *Engine) Snapshot() metrics.Snapshot {
	return e.collector.Snapshot()
}

// Subscribe returns a channel receiving a snapshot after every state change,
// and a func that ends the subscription. A slow subscriber only sees the
// latest snapshot; the engine never blocks on it.
func (e *Engine) Subscribe() (<-chan metrics.Snapshot, func()) {
	ch := make(chan metrics.Snapshot, 1)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, ch)
			e.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) publish() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if len(e.subs) == 0 {
		return
	}
	snap := e.collector.Snapshot()
	for ch := range e.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the unread snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
