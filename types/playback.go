package types

import "time"

// PacketOutcome is the settled state of a dispatched packet.
type PacketOutcome string

const (
	// PacketPlayed means the packet's tracks all settled. Individual track
	// failures do not change this outcome.
	PacketPlayed PacketOutcome = "played"
	// PacketFailed means dispatch itself failed (a player or sink panicked).
	PacketFailed PacketOutcome = "failed"
)

// TrackOutcome reports how one track's playback settled.
type TrackOutcome struct {
	Kind     TrackKind     `json:"kind"`
	OK       bool          `json:"ok"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// PlaybackResult is emitted once per dispatched packet after it settles.
type PlaybackResult struct {
	SessionID  string         `json:"session_id"`
	Seq        int64          `json:"seq"`
	Hash       string         `json:"hash"`
	ReceivedAt time.Time      `json:"received_at"`
	StartedAt  time.Time      `json:"started_at"`
	SettledAt  time.Time      `json:"settled_at"`
	Outcome    PacketOutcome  `json:"outcome"`
	Tracks     []TrackOutcome `json:"tracks"`
	Error      string         `json:"error,omitempty"`
}

// Latency is the time the packet spent buffered before dispatch.
func (r *PlaybackResult) Latency() time.Duration {
	return r.StartedAt.Sub(r.ReceivedAt)
}

// ProcessingTime is the wall time the packet was in flight.
func (r *PlaybackResult) ProcessingTime() time.Duration {
	return r.SettledAt.Sub(r.StartedAt)
}
