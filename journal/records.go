package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/types"
)

// Record kind discriminators. Also used as the record_kind partition value.
const (
	RecordKindPlayback = "playback"
	RecordKindMetrics  = "metrics"
)

// partitionKeys is the Hive layout of the journal dataset.
var partitionKeys = []string{"source", "day", "session_id", "record_kind"}

// DeriveDay computes the partition day from a session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds journal partitioning configuration.
type Config struct {
	// Dataset is the lode dataset ID.
	Dataset string
	// Source identifies the stream origin (e.g. the endpoint host).
	Source string
	// Day is the partition day; see DeriveDay.
	Day string
}

// Defaults for Config.
const (
	DefaultDataset = "mediasync"
	DefaultSource  = "default"
)

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Day == "" {
		c.Day = DeriveDay(time.Now())
	}
	return c
}

// toPlaybackRecordMap converts a settled packet into a storage record.
// lode's HiveLayout requires records as map[string]any.
func toPlaybackRecordMap(r types.PlaybackResult, cfg Config) map[string]any {
	tracks := make([]map[string]any, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		track := map[string]any{
			"kind":       t.Kind.String(),
			"ok":         t.OK,
			"elapsed_ms": t.Elapsed.Milliseconds(),
		}
		if t.TimedOut {
			track["timed_out"] = true
		}
		if t.Error != "" {
			track["error"] = t.Error
		}
		tracks = append(tracks, track)
	}

	m := map[string]any{
		"record_kind":        RecordKindPlayback,
		"record_id":          uuid.NewString(),
		"session_id":         r.SessionID,
		"seq":                r.Seq,
		"hash":               r.Hash,
		"outcome":            string(r.Outcome),
		"received_at":        r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"started_at":         r.StartedAt.UTC().Format(time.RFC3339Nano),
		"settled_at":         r.SettledAt.UTC().Format(time.RFC3339Nano),
		"latency_ms":         r.Latency().Milliseconds(),
		"processing_time_ms": r.ProcessingTime().Milliseconds(),
		"tracks":             tracks,
		"source":             cfg.Source,
		"day":                cfg.Day,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// toMetricsRecordMap converts a final session snapshot into a storage record.
func toMetricsRecordMap(sessionID string, s metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":                RecordKindMetrics,
		"record_id":                  uuid.NewString(),
		"session_id":                 sessionID,
		"completed_at":               completedAt.UTC().Format(time.RFC3339Nano),
		"session_start":              formatTime(s.SessionStart),
		"received":                   s.Received,
		"accepted":                   s.Accepted,
		"played":                     s.Played,
		"failed":                     s.Failed,
		"invalid":                    s.Invalid,
		"session_mismatch":           s.SessionMismatch,
		"duplicates":                 s.Duplicates,
		"stale":                      s.Stale,
		"out_of_order":               s.OutOfOrder,
		"track_failures":             s.TrackFailures,
		"ignored_messages":           s.IgnoredMessages,
		"max_queue_length":           s.MaxQueueLength,
		"tracks_by_kind":             s.TracksByKind,
		"success_rate":               s.SuccessRate,
		"throughput_per_minute":      s.ThroughputPerMinute,
		"average_processing_time_ms": s.AverageProcessingTime.Milliseconds(),
		"average_latency_ms":         s.AverageLatency.Milliseconds(),
		"average_jitter_ms":          s.AverageJitter.Milliseconds(),
		"average_network_latency_ms": s.AverageNetworkLatency.Milliseconds(),
		"source":                     cfg.Source,
		"day":                        cfg.Day,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
