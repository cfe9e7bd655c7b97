package journal

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics record matches.
var ErrNoMetricsFound = errors.New("no metrics records found")

// OpenWithFactory opens the journal dataset for reading.
func OpenWithFactory(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, wrapStorageError(err, "init", dataset)
	}
	return ds, nil
}

// OpenFS opens a filesystem journal for reading.
func OpenFS(dataset, root string) (lode.Dataset, error) {
	return OpenWithFactory(dataset, lode.NewFSFactory(root))
}

// OpenS3 opens an S3 journal for reading.
func OpenS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return OpenWithFactory(dataset, factory)
}

// Filter narrows journal queries. Empty fields match everything.
type Filter struct {
	SessionID string
	Source    string
}

func (f Filter) matchesSnapshot(snap *lode.DatasetSnapshot, kind string) bool {
	return snapshotHas(snap, "record_kind", kind) &&
		snapshotHas(snap, "session_id", f.SessionID) &&
		snapshotHas(snap, "source", f.Source)
}

// matchesRecord checks record fields, which are authoritative over the
// manifest paths.
func (f Filter) matchesRecord(record map[string]any, kind string) bool {
	if record["record_kind"] != kind {
		return false
	}
	if f.SessionID != "" && toString(record["session_id"]) != f.SessionID {
		return false
	}
	if f.Source != "" && toString(record["source"]) != f.Source {
		return false
	}
	return true
}

// QueryLatestMetrics returns the most recent metrics record matching f.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapStorageError(err, "read", "snapshots")
	}

	// Snapshots are ordered by creation time; walk newest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !f.matchesSnapshot(snap, RecordKindMetrics) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapStorageError(err, "read", fmt.Sprintf("snapshot/%s", snap.ID))
		}
		// A snapshot may carry several metrics records; completed_at
		// decides which is newest.
		var latest map[string]any
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !f.matchesRecord(record, RecordKindMetrics) {
				continue
			}
			if latest == nil || !parseTime(record["completed_at"]).Before(parseTime(latest["completed_at"])) {
				latest = record
			}
		}
		if latest != nil {
			return latest, nil
		}
	}
	return nil, ErrNoMetricsFound
}

// QueryPlayback returns every playback record matching f, ordered by
// session and seq.
func QueryPlayback(ctx context.Context, ds lode.Dataset, f Filter) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapStorageError(err, "read", "snapshots")
	}

	var out []map[string]any
	seen := make(map[string]bool)
	for _, snap := range snapshots {
		if !f.matchesSnapshot(snap, RecordKindPlayback) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapStorageError(err, "read", fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !f.matchesRecord(record, RecordKindPlayback) {
				continue
			}
			// Records can reappear across snapshots; record_id is unique.
			if id := toString(record["record_id"]); id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			out = append(out, record)
		}
	}

	slices.SortStableFunc(out, func(a, b map[string]any) int {
		if c := cmp.Compare(toString(a["session_id"]), toString(b["session_id"])); c != 0 {
			return c
		}
		return cmp.Compare(toInt64(a["seq"]), toInt64(b["seq"]))
	})
	return out, nil
}

// snapshotHas reports whether any manifest path carries key=value.
// An empty value matches every snapshot.
func snapshotHas(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		if slices.Contains(strings.Split(f.Path, "/"), segment) {
			return true
		}
	}
	return false
}

func parseTime(v any) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, toString(v))
	return t
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 normalizes numbers decoded from JSONL.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
