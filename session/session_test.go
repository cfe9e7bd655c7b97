package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/mediasync/adapter"
	"github.com/pithecene-io/mediasync/engine"
	"github.com/pithecene-io/mediasync/journal"
	"github.com/pithecene-io/mediasync/transport/ws"
	"github.com/pithecene-io/mediasync/types"
)

// --- fakes ---

type recordingPlayers struct {
	mu    sync.Mutex
	order []int64
}

func (p *recordingPlayers) PlayPacket(_ context.Context, pkt *types.MediaPacket) ([]types.TrackOutcome, error) {
	p.mu.Lock()
	p.order = append(p.order, pkt.Seq)
	p.mu.Unlock()
	out := make([]types.TrackOutcome, len(pkt.Tracks))
	for i, tr := range pkt.Tracks {
		out[i] = types.TrackOutcome{Kind: tr.Kind, OK: true}
	}
	return out, nil
}

func (p *recordingPlayers) Stop(context.Context) {}

func (p *recordingPlayers) seqs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.order...)
}

type captureAdapter struct {
	mu     sync.Mutex
	events []*adapter.SessionCompletedEvent
}

func (a *captureAdapter) Publish(_ context.Context, e *adapter.SessionCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *captureAdapter) Close() error { return nil }

type funcSource func(ctx context.Context, h ws.Handler) error

func (f funcSource) Run(ctx context.Context, h ws.Handler) error { return f(ctx, h) }

// --- helpers ---

func packetLine(session string, seq int64, ts float64) string {
	return fmt.Sprintf(`{"type":"media_packet","server_timestamp":%g,"packet":{"sessionId":%q,"seq":%d,"t0":0,"hash":"h%d",`+
		`"tracks":[{"kind":"audio","pts":0,"dur":40,"payloadRef":"a%d.mp3","codec":"mp3"}]}}`,
		ts, session, seq, seq, seq)
}

func replayOf(lines ...string) *ReplaySource {
	body := strings.Join(lines, "\n")
	return &ReplaySource{
		Open:         func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
		ConnectionID: "test-conn",
	}
}

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func TestOrchestrator_ReplayEndToEnd(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	store, err := journal.NewStoreWithFactory(journal.Config{Source: "test", Day: "2026-10-01"}, factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory: %v", err)
	}
	players := &recordingPlayers{}
	notify := &captureAdapter{}

	o, err := New(Config{
		Source: replayOf(
			packetLine("s1", 2, 0),
			`{"type":"heartbeat"}`,
			packetLine("s1", 1, 0),
			"",
			packetLine("s1", 3, 0),
		),
		Players:       players,
		Engine:        engine.Config{JitterWindow: 10 * time.Millisecond},
		Policy:        journal.NewStrictPolicy(store),
		Store:         store,
		Adapter:       notify,
		JournalSource: "test",
		JournalDay:    "2026-10-01",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := players.seqs(); fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("play order = %v, want [1 2 3]", got)
	}
	if res.Reason != ReasonStreamEnd || res.SessionID != "s1" || res.ConnectionID != "test-conn" {
		t.Errorf("result = %+v", res)
	}
	if res.Metrics.Played != 3 || res.Metrics.IgnoredMessages != 1 || res.Undrained != 0 {
		t.Errorf("metrics played=%d ignored=%d undrained=%d",
			res.Metrics.Played, res.Metrics.IgnoredMessages, res.Undrained)
	}
	if res.Journal.Persisted != 3 {
		t.Errorf("journal persisted = %d, want 3", res.Journal.Persisted)
	}
	if o.Engine().State() != engine.StateIdle {
		t.Error("engine should be idle after the session")
	}

	ds, err := journal.OpenWithFactory("", factory)
	if err != nil {
		t.Fatalf("OpenWithFactory: %v", err)
	}
	records, err := journal.QueryPlayback(t.Context(), ds, journal.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("QueryPlayback: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("playback records = %d, want 3", len(records))
	}
	if _, err := journal.QueryLatestMetrics(t.Context(), ds, journal.Filter{SessionID: "s1"}); err != nil {
		t.Errorf("QueryLatestMetrics: %v", err)
	}

	if len(notify.events) != 1 {
		t.Fatalf("events = %d, want 1", len(notify.events))
	}
	ev := notify.events[0]
	if ev.EventType != adapter.EventTypeSessionCompleted || ev.Played != 3 || ev.Reason != ReasonStreamEnd || ev.Source != "test" {
		t.Errorf("event = %+v", ev)
	}
}

func TestOrchestrator_GapLeavesPacketUndrained(t *testing.T) {
	players := &recordingPlayers{}
	notify := &captureAdapter{}
	o, err := New(Config{
		Source:       replayOf(packetLine("s1", 1, 0), packetLine("s1", 3, 0)),
		Players:      players,
		Engine:       engine.Config{JitterWindow: 10 * time.Millisecond},
		Adapter:      notify,
		DrainTimeout: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := players.seqs(); fmt.Sprint(got) != "[1]" {
		t.Errorf("play order = %v, want [1]", got)
	}
	if res.Undrained != 1 {
		t.Errorf("undrained = %d, want 1", res.Undrained)
	}
	if len(notify.events) != 1 || notify.events[0].Dropped != 1 {
		t.Errorf("expected one event with dropped=1, got %+v", notify.events)
	}
}

func TestOrchestrator_Outcomes(t *testing.T) {
	transportErr := &ws.TransportError{URL: "ws://x", Attempts: 3, Err: io.ErrUnexpectedEOF}

	tests := []struct {
		name       string
		source     funcSource
		cancel     bool
		wantReason string
		wantErr    bool
	}{
		{
			name:       "canceled",
			source:     func(ctx context.Context, _ ws.Handler) error { <-ctx.Done(); return ctx.Err() },
			cancel:     true,
			wantReason: ReasonCanceled,
		},
		{
			name:       "transport error",
			source:     func(context.Context, ws.Handler) error { return transportErr },
			wantReason: ReasonTransportError,
			wantErr:    true,
		},
		{
			name:       "source error",
			source:     func(context.Context, ws.Handler) error { return io.ErrClosedPipe },
			wantReason: ReasonSourceError,
			wantErr:    true,
		},
		{
			name:       "clean end",
			source:     func(context.Context, ws.Handler) error { return nil },
			wantReason: ReasonStreamEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(Config{Source: tt.source, Players: &recordingPlayers{}})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			if tt.cancel {
				time.AfterFunc(20*time.Millisecond, cancel)
			}

			res, err := o.Run(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if res == nil || res.Reason != tt.wantReason {
				t.Fatalf("result = %+v, want reason %s", res, tt.wantReason)
			}
		})
	}
}

func TestNew_RequiresSourceAndPlayers(t *testing.T) {
	if _, err := New(Config{Players: &recordingPlayers{}}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := New(Config{Source: replayOf()}); err == nil {
		t.Error("expected error without players")
	}
}

func TestSettledSink(t *testing.T) {
	s := newSettledSink(1)
	if !s.send(types.PlaybackResult{Seq: 1}) {
		t.Fatal("first send should queue")
	}
	if s.send(types.PlaybackResult{Seq: 2}) {
		t.Error("second send should drop when full")
	}
	if s.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", s.dropped.Load())
	}
	s.close()
	s.close()
	if s.send(types.PlaybackResult{Seq: 3}) {
		t.Error("send after close should report a drop")
	}
	if s.dropped.Load() != 2 {
		t.Errorf("dropped after close = %d, want 2", s.dropped.Load())
	}
	if r, ok := <-s.ch; !ok || r.Seq != 1 {
		t.Errorf("queued = %+v,%v", r, ok)
	}
}

func TestReplaySource_Pacing(t *testing.T) {
	src := replayOf(packetLine("s1", 1, 100.0), packetLine("s1", 2, 100.1), "not json")
	src.Speed = 2 // 100ms gap becomes 50ms

	var frames []ws.Frame
	start := time.Now()
	if err := src.Run(t.Context(), func(f ws.Frame) { frames = append(frames, f) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if frames[0].Binary || frames[0].ConnectionID != "test-conn" {
		t.Errorf("frame = %+v", frames[0])
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, expected paced delivery", elapsed)
	}
}

func TestReplaySource_Canceled(t *testing.T) {
	src := replayOf(packetLine("s1", 1, 100), packetLine("s1", 2, 200))
	src.Speed = 1
	src.MaxGap = time.Minute

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := src.Run(ctx, func(ws.Frame) {})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
