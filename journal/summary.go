package journal

import (
	"fmt"
	"time"
)

// SessionSummary is the typed view of a metrics record, used by the CLI.
type SessionSummary struct {
	SessionID        string           `json:"session_id" yaml:"session_id"`
	Source           string           `json:"source" yaml:"source"`
	Day              string           `json:"day" yaml:"day"`
	SessionStart     string           `json:"session_start" yaml:"session_start"`
	CompletedAt      string           `json:"completed_at" yaml:"completed_at"`
	Received         int64            `json:"received" yaml:"received"`
	Accepted         int64            `json:"accepted" yaml:"accepted"`
	Played           int64            `json:"played" yaml:"played"`
	Failed           int64            `json:"failed" yaml:"failed"`
	Invalid          int64            `json:"invalid" yaml:"invalid"`
	SessionMismatch  int64            `json:"session_mismatch" yaml:"session_mismatch"`
	Duplicates       int64            `json:"duplicates" yaml:"duplicates"`
	Stale            int64            `json:"stale" yaml:"stale"`
	OutOfOrder       int64            `json:"out_of_order" yaml:"out_of_order"`
	TrackFailures    int64            `json:"track_failures" yaml:"track_failures"`
	IgnoredMessages  int64            `json:"ignored_messages" yaml:"ignored_messages"`
	MaxQueueLength   int64            `json:"max_queue_length" yaml:"max_queue_length"`
	TracksByKind     map[string]int64 `json:"tracks_by_kind" yaml:"tracks_by_kind"`
	SuccessRate      float64          `json:"success_rate" yaml:"success_rate"`
	ThroughputPerMin float64          `json:"throughput_per_minute" yaml:"throughput_per_minute"`
	AvgProcessingMs  int64            `json:"average_processing_time_ms" yaml:"average_processing_time_ms"`
	AvgLatencyMs     int64            `json:"average_latency_ms" yaml:"average_latency_ms"`
	AvgJitterMs      int64            `json:"average_jitter_ms" yaml:"average_jitter_ms"`
	AvgNetworkMs     int64            `json:"average_network_latency_ms" yaml:"average_network_latency_ms"`
}

// SummaryFromRecord decodes a metrics record returned by QueryLatestMetrics.
func SummaryFromRecord(r map[string]any) (*SessionSummary, error) {
	if toString(r["record_kind"]) != RecordKindMetrics {
		return nil, fmt.Errorf("record is not a metrics record: %q", r["record_kind"])
	}
	s := &SessionSummary{
		SessionID:        toString(r["session_id"]),
		Source:           toString(r["source"]),
		Day:              toString(r["day"]),
		SessionStart:     toString(r["session_start"]),
		CompletedAt:      toString(r["completed_at"]),
		Received:         toInt64(r["received"]),
		Accepted:         toInt64(r["accepted"]),
		Played:           toInt64(r["played"]),
		Failed:           toInt64(r["failed"]),
		Invalid:          toInt64(r["invalid"]),
		SessionMismatch:  toInt64(r["session_mismatch"]),
		Duplicates:       toInt64(r["duplicates"]),
		Stale:            toInt64(r["stale"]),
		OutOfOrder:       toInt64(r["out_of_order"]),
		TrackFailures:    toInt64(r["track_failures"]),
		IgnoredMessages:  toInt64(r["ignored_messages"]),
		MaxQueueLength:   toInt64(r["max_queue_length"]),
		SuccessRate:      toFloat64(r["success_rate"]),
		ThroughputPerMin: toFloat64(r["throughput_per_minute"]),
		AvgProcessingMs:  toInt64(r["average_processing_time_ms"]),
		AvgLatencyMs:     toInt64(r["average_latency_ms"]),
		AvgJitterMs:      toInt64(r["average_jitter_ms"]),
		AvgNetworkMs:     toInt64(r["average_network_latency_ms"]),
	}
	switch byKind := r["tracks_by_kind"].(type) {
	case map[string]any:
		s.TracksByKind = make(map[string]int64, len(byKind))
		for k, v := range byKind {
			s.TracksByKind[k] = toInt64(v)
		}
	case map[string]int64:
		s.TracksByKind = byKind
	}
	return s, nil
}

// Duration is the wall time between session start and completion.
func (s *SessionSummary) Duration() time.Duration {
	start, end := parseTime(s.SessionStart), parseTime(s.CompletedAt)
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

// PlaybackRow is one playback record flattened for table output.
type PlaybackRow struct {
	SessionID    string `json:"session_id" yaml:"session_id"`
	Seq          int64  `json:"seq" yaml:"seq"`
	Outcome      string `json:"outcome" yaml:"outcome"`
	LatencyMs    int64  `json:"latency_ms" yaml:"latency_ms"`
	ProcessingMs int64  `json:"processing_time_ms" yaml:"processing_time_ms"`
	Tracks       int    `json:"tracks" yaml:"tracks"`
	FailedTracks int    `json:"failed_tracks" yaml:"failed_tracks"`
	SettledAt    string `json:"settled_at" yaml:"settled_at"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RowsFromRecords flattens records returned by QueryPlayback.
func RowsFromRecords(records []map[string]any) []PlaybackRow {
	rows := make([]PlaybackRow, 0, len(records))
	for _, r := range records {
		row := PlaybackRow{
			SessionID:    toString(r["session_id"]),
			Seq:          toInt64(r["seq"]),
			Outcome:      toString(r["outcome"]),
			LatencyMs:    toInt64(r["latency_ms"]),
			ProcessingMs: toInt64(r["processing_time_ms"]),
			SettledAt:    toString(r["settled_at"]),
			Error:        toString(r["error"]),
		}
		if tracks, ok := r["tracks"].([]any); ok {
			row.Tracks = len(tracks)
			for _, t := range tracks {
				if tm, ok := t.(map[string]any); ok && tm["ok"] != true {
					row.FailedTracks++
				}
			}
		} else if tracks, ok := r["tracks"].([]map[string]any); ok {
			row.Tracks = len(tracks)
			for _, tm := range tracks {
				if tm["ok"] != true {
					row.FailedTracks++
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
