package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/types"
)

// sharedFactory lets write and read datasets share one in-memory store.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func result(session string, seq int64) types.PlaybackResult {
	received := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return types.PlaybackResult{
		SessionID:  session,
		Seq:        seq,
		Hash:       fmt.Sprintf("h%d", seq),
		ReceivedAt: received,
		StartedAt:  received.Add(300 * time.Millisecond),
		SettledAt:  received.Add(1300 * time.Millisecond),
		Outcome:    types.PacketPlayed,
		Tracks: []types.TrackOutcome{
			{Kind: types.TrackAudio, OK: true, Elapsed: time.Second},
			{Kind: types.TrackVideo, OK: false, Error: "clip not found"},
		},
	}
}

func TestLodeStore_PlaybackRoundTrip(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	cfg := Config{Source: "ws.example", Day: "2026-10-01"}

	store, err := NewStoreWithFactory(cfg, factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}

	ctx := t.Context()
	if err := store.WritePlayback(ctx, []types.PlaybackResult{result("A", 2), result("A", 1)}); err != nil {
		t.Fatalf("WritePlayback failed: %v", err)
	}
	if err := store.WritePlayback(ctx, []types.PlaybackResult{result("B", 1)}); err != nil {
		t.Fatalf("WritePlayback failed: %v", err)
	}

	ds, err := OpenWithFactory("", factory)
	if err != nil {
		t.Fatalf("OpenWithFactory failed: %v", err)
	}

	records, err := QueryPlayback(ctx, ds, Filter{SessionID: "A"})
	if err != nil {
		t.Fatalf("QueryPlayback failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for session A, got %d", len(records))
	}
	if toInt64(records[0]["seq"]) != 1 || toInt64(records[1]["seq"]) != 2 {
		t.Errorf("expected seq order 1,2, got %v,%v", records[0]["seq"], records[1]["seq"])
	}
	r := records[0]
	if r["outcome"] != "played" || r["source"] != "ws.example" || r["day"] != "2026-10-01" {
		t.Errorf("unexpected record fields: %v", r)
	}
	if toInt64(r["latency_ms"]) != 300 || toInt64(r["processing_time_ms"]) != 1000 {
		t.Errorf("unexpected timings: latency=%v processing=%v", r["latency_ms"], r["processing_time_ms"])
	}
	if r["record_id"] == "" {
		t.Error("expected record_id")
	}

	all, err := QueryPlayback(ctx, ds, Filter{})
	if err != nil {
		t.Fatalf("QueryPlayback failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 records overall, got %d", len(all))
	}
}

func TestQueryLatestMetrics(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	store, err := NewStoreWithFactory(Config{Source: "src", Day: "2026-10-01"}, factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}

	ctx := t.Context()
	completed := time.Date(2026, 10, 1, 13, 0, 0, 0, time.UTC)
	for i, session := range []string{"A", "B"} {
		snap := metrics.Snapshot{
			Received:     int64(10 * (i + 1)),
			Played:       int64(9 * (i + 1)),
			SuccessRate:  0.9,
			TracksByKind: map[string]int64{"audio": 9},
		}
		if err := store.WriteMetrics(ctx, session, snap, completed.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("WriteMetrics failed: %v", err)
		}
	}
	if err := store.WritePlayback(ctx, []types.PlaybackResult{result("B", 1)}); err != nil {
		t.Fatalf("WritePlayback failed: %v", err)
	}

	ds, err := OpenWithFactory(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("OpenWithFactory failed: %v", err)
	}

	latest, err := QueryLatestMetrics(ctx, ds, Filter{})
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if latest["session_id"] != "B" || toInt64(latest["received"]) != 20 {
		t.Errorf("expected latest metrics for B, got %v", latest)
	}

	forA, err := QueryLatestMetrics(ctx, ds, Filter{SessionID: "A"})
	if err != nil {
		t.Fatalf("QueryLatestMetrics(A) failed: %v", err)
	}
	if toInt64(forA["played"]) != 9 {
		t.Errorf("expected played 9 for A, got %v", forA["played"])
	}

	_, err = QueryLatestMetrics(ctx, ds, Filter{SessionID: "missing"})
	if !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("expected ErrNoMetricsFound, got %v", err)
	}
}

func TestStorageError_Classification(t *testing.T) {
	tests := []struct {
		msg  string
		kind error
	}{
		{"open /data: permission denied", ErrPermissionDenied},
		{"operation error S3: PutObject, AccessDenied", ErrAccessDenied},
		{"NoSuchKey: the key does not exist", ErrNotFound},
		{"write: no space left on device", ErrDiskFull},
		{"context deadline exceeded", ErrTimeout},
		{"SlowDown: reduce your request rate", ErrThrottled},
		{"NoCredentialProviders: no valid providers", ErrAuth},
		{"dial tcp 10.0.0.1:443: connection refused", ErrNetwork},
		{"something odd", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := wrapStorageError(errors.New(tt.msg), "write", "mediasync")
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
			var sErr *StorageError
			if !errors.As(err, &sErr) || sErr.Op != "write" {
				t.Errorf("expected *StorageError with op write, got %v", err)
			}
		})
	}

	if wrapStorageError(nil, "write", "") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestParseS3Path(t *testing.T) {
	bucket, prefix := ParseS3Path("journal-bucket/prod/mediasync")
	if bucket != "journal-bucket" || prefix != "prod/mediasync" {
		t.Errorf("unexpected parse: %q %q", bucket, prefix)
	}
	bucket, prefix = ParseS3Path("only-bucket")
	if bucket != "only-bucket" || prefix != "" {
		t.Errorf("unexpected parse: %q %q", bucket, prefix)
	}
}

// fakeStore records writes and fails while failing is set.
type fakeStore struct {
	mu      sync.Mutex
	failing bool
	batches [][]types.PlaybackResult
	closed  bool
}

func (s *fakeStore) WritePlayback(_ context.Context, results []types.PlaybackResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("connection refused")
	}
	s.batches = append(s.batches, append([]types.PlaybackResult(nil), results...))
	return nil
}

func (s *fakeStore) WriteMetrics(context.Context, string, metrics.Snapshot, time.Time) error {
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) seqs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, b := range s.batches {
		for _, r := range b {
			out = append(out, r.Seq)
		}
	}
	return out
}

func TestStrictPolicy(t *testing.T) {
	store := &fakeStore{}
	p := NewStrictPolicy(store)
	ctx := t.Context()

	if err := p.Record(ctx, result("A", 1)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	store.failing = true
	if err := p.Record(ctx, result("A", 2)); err == nil {
		t.Fatal("expected error from failing store")
	}

	stats := p.Stats()
	if stats.Total != 2 || stats.Persisted != 1 || stats.Errors != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !store.closed {
		t.Error("expected store closed")
	}
}

func TestStreamingPolicy_CountTrigger(t *testing.T) {
	store := &fakeStore{}
	p, err := NewStreamingPolicy(store, StreamingConfig{FlushCount: 2})
	if err != nil {
		t.Fatalf("NewStreamingPolicy failed: %v", err)
	}
	ctx := t.Context()

	_ = p.Record(ctx, result("A", 1))
	if len(store.seqs()) != 0 {
		t.Fatal("expected no write before count threshold")
	}
	_ = p.Record(ctx, result("A", 2))
	_ = p.Record(ctx, result("A", 3))

	if got := store.seqs(); len(got) != 2 {
		t.Fatalf("expected 2 persisted, got %v", got)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := store.seqs(); len(got) != 3 || got[2] != 3 {
		t.Errorf("expected close to flush remainder, got %v", got)
	}
}

func TestStreamingPolicy_FailedFlushRetainsOrder(t *testing.T) {
	store := &fakeStore{failing: true}
	p, err := NewStreamingPolicy(store, StreamingConfig{FlushCount: 2})
	if err != nil {
		t.Fatalf("NewStreamingPolicy failed: %v", err)
	}
	ctx := t.Context()

	_ = p.Record(ctx, result("A", 1))
	if err := p.Record(ctx, result("A", 2)); err == nil {
		t.Fatal("expected flush error")
	}
	if s := p.Stats(); s.Buffered != 2 || s.Errors != 1 {
		t.Errorf("expected batch retained, got %+v", s)
	}

	store.mu.Lock()
	store.failing = false
	store.mu.Unlock()

	_ = p.Record(ctx, result("A", 3))
	got := store.seqs()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected 1,2,3 after retry, got %v", got)
	}
	_ = p.Close()
}

func TestStreamingPolicy_IntervalTrigger(t *testing.T) {
	store := &fakeStore{}
	p, err := NewStreamingPolicy(store, StreamingConfig{FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewStreamingPolicy failed: %v", err)
	}
	defer p.Close()

	_ = p.Record(t.Context(), result("A", 1))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(store.seqs()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("interval flush never happened")
}

func TestNewPolicy(t *testing.T) {
	store := &fakeStore{}
	if _, err := NewPolicy("", store, StreamingConfig{}); err != nil {
		t.Errorf("default policy failed: %v", err)
	}
	if _, err := NewPolicy(PolicyStreaming, store, StreamingConfig{}); !errors.Is(err, ErrStreamingInvalidConfig) {
		t.Errorf("expected ErrStreamingInvalidConfig, got %v", err)
	}
	if _, err := NewPolicy("bogus", store, StreamingConfig{}); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestSummaryFromRecord(t *testing.T) {
	record := map[string]any{
		"record_kind":        RecordKindMetrics,
		"session_id":         "A",
		"session_start":      "2026-10-01T12:00:00Z",
		"completed_at":       "2026-10-01T12:01:30Z",
		"received":           float64(10),
		"played":             float64(9),
		"failed":             float64(1),
		"success_rate":       0.9,
		"average_latency_ms": float64(305),
		"tracks_by_kind":     map[string]any{"audio": float64(9), "video": float64(4)},
	}

	s, err := SummaryFromRecord(record)
	if err != nil {
		t.Fatalf("SummaryFromRecord failed: %v", err)
	}
	if s.Received != 10 || s.Played != 9 || s.Failed != 1 || s.SuccessRate != 0.9 || s.AvgLatencyMs != 305 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.TracksByKind["video"] != 4 {
		t.Errorf("tracks_by_kind = %v", s.TracksByKind)
	}
	if s.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", s.Duration())
	}

	if _, err := SummaryFromRecord(map[string]any{"record_kind": RecordKindPlayback}); err == nil {
		t.Error("expected error for playback record")
	}
}

func TestRowsFromRecords(t *testing.T) {
	rows := RowsFromRecords([]map[string]any{{
		"session_id": "A",
		"seq":        float64(3),
		"outcome":    "played",
		"tracks": []any{
			map[string]any{"kind": "audio", "ok": true},
			map[string]any{"kind": "video", "ok": false},
		},
	}})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if r := rows[0]; r.Seq != 3 || r.Tracks != 2 || r.FailedTracks != 1 {
		t.Errorf("row = %+v", r)
	}
}
