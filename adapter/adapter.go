// Package adapter defines the notification boundary for finished sessions.
//
// Adapters publish a SessionCompletedEvent to a downstream system when a
// stream ends. The session orchestrator owns adapter lifecycle.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeSessionCompleted is the event_type of SessionCompletedEvent.
const EventTypeSessionCompleted = "session_completed"

// SessionCompletedEvent is published once per finished session.
type SessionCompletedEvent struct {
	EventType    string           `json:"event_type"`
	Version      string           `json:"version"`
	SessionID    string           `json:"session_id"`
	ConnectionID string           `json:"connection_id,omitempty"`
	Source       string           `json:"source"`
	Day          string           `json:"day"`
	Reason       string           `json:"reason"` // stream_end, canceled, transport_error
	StoragePath  string           `json:"storage_path,omitempty"`
	StartedAt    string           `json:"started_at"`
	Timestamp    string           `json:"timestamp"` // ISO 8601
	DurationMs   int64            `json:"duration_ms"`
	Received     int64            `json:"received"`
	Played       int64            `json:"played"`
	Failed       int64            `json:"failed"`
	Dropped      int64            `json:"dropped"`
	SuccessRate  float64          `json:"success_rate"`
	TracksByKind map[string]int64 `json:"tracks_by_kind,omitempty"`
}

// IdempotencyKey identifies one completion of one connection of a session.
// Retries of the same event carry the same key.
func (e *SessionCompletedEvent) IdempotencyKey() string {
	return e.SessionID + "/" + e.ConnectionID + "/" + e.StartedAt
}

// Adapter publishes session completion events.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation.
	Publish(ctx context.Context, event *SessionCompletedEvent) error
	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per retry.
const BaseBackoff = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff
// between attempts. It stops early when attempt returns nil, when
// permanent reports true for the error, or when ctx is done.
func Retry(ctx context.Context, name string, retries int, attempt func(ctx context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
