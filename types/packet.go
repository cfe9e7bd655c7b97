// Package types defines the media packet model shared by the wire decoder,
// the sync engine, the track players and the playback journal.
package types

import (
	"fmt"
	"time"
)

// TrackKind is the closed set of media track kinds.
type TrackKind uint8

// Track kinds. The zero value is not a valid kind.
const (
	TrackUnknown TrackKind = iota
	TrackAudio
	TrackVideo
	TrackSubtitle
)

// TrackKinds lists every valid kind in display order.
var TrackKinds = []TrackKind{TrackAudio, TrackVideo, TrackSubtitle}

// String returns the wire name of the kind.
func (k TrackKind) String() string {
	switch k {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	case TrackSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the known kinds.
func (k TrackKind) Valid() bool {
	return k == TrackAudio || k == TrackVideo || k == TrackSubtitle
}

// ParseTrackKind parses a wire kind name.
func ParseTrackKind(s string) (TrackKind, error) {
	switch s {
	case "audio":
		return TrackAudio, nil
	case "video":
		return TrackVideo, nil
	case "subtitle":
		return TrackSubtitle, nil
	default:
		return TrackUnknown, fmt.Errorf("unknown track kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k TrackKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid track kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TrackKind) UnmarshalText(b []byte) error {
	parsed, err := ParseTrackKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MediaTrack is a single media stream inside a packet.
type MediaTrack struct {
	// Kind selects the player that renders the track.
	Kind TrackKind `json:"kind"`
	// PTS is the presentation timestamp in ms, relative to the packet.
	PTS int64 `json:"pts"`
	// Dur is the intended playback duration in ms. Must be positive.
	Dur int64 `json:"dur"`
	// PayloadRef is a URL or inline reference to the renderable payload.
	PayloadRef string `json:"payloadRef"`
	// Codec is a format hint, e.g. "mp3" or "webvtt".
	Codec string `json:"codec"`
	// Meta carries auxiliary hints (emotion tag, engine name). UI/debug only.
	Meta map[string]any `json:"meta,omitempty"`
}

// Duration returns Dur as a time.Duration.
func (t MediaTrack) Duration() time.Duration {
	return time.Duration(t.Dur) * time.Millisecond
}

// MediaPacket is one synchronized unit of playback spanning one or more tracks.
type MediaPacket struct {
	// Version is the protocol version tag.
	Version int `json:"version"`
	// SessionID identifies the logical stream.
	SessionID string `json:"sessionId"`
	// Seq is the per-session ordering key, strictly increasing.
	Seq int64 `json:"seq"`
	// T0 is the session-relative start offset in ms (informational).
	T0 int64 `json:"t0"`
	// Tracks are played together; never empty on a valid packet.
	Tracks []MediaTrack `json:"tracks"`
	// Hash is an integrity fingerprint used for dedup and debugging.
	Hash string `json:"hash"`
}

// Kinds returns the distinct track kinds in the packet, in track order.
func (p *MediaPacket) Kinds() []TrackKind {
	seen := make(map[TrackKind]bool, len(p.Tracks))
	kinds := make([]TrackKind, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if !seen[t.Kind] {
			seen[t.Kind] = true
			kinds = append(kinds, t.Kind)
		}
	}
	return kinds
}
