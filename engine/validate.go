package engine

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/mediasync/types"
)

// AcceptClass classifies the ingress decision for one packet.
type AcceptClass int

const (
	// Accepted means the packet entered the reorder buffer.
	Accepted AcceptClass = iota
	// Invalid means the packet or one of its tracks is malformed.
	Invalid
	// SessionMismatch means the packet belongs to another session.
	SessionMismatch
	// Duplicate means the seq was already dispatched or is already buffered.
	Duplicate
	// Stale means the seq is older than the last dispatched seq.
	Stale
	// Ignored means the message was not a media packet.
	Ignored
)

// String returns the class name.
func (c AcceptClass) String() string {
	switch c {
	case Accepted:
		return "accepted"
	case Invalid:
		return "invalid"
	case SessionMismatch:
		return "session_mismatch"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// AcceptResult is the outcome of Accept.
type AcceptResult struct {
	Class AcceptClass
	// OutOfOrder is set on accepted packets whose seq skips ahead of the
	// next expected seq. Advisory only.
	OutOfOrder bool
	// Err describes why the packet was not accepted. Nil when Accepted.
	Err error
}

// Accepted reports whether the packet entered the buffer.
func (r AcceptResult) Accepted() bool {
	return r.Class == Accepted
}

// ValidationError reports a structurally invalid packet.
type ValidationError struct {
	// Field is the offending field path, e.g. "tracks[1].dur".
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid packet: %s: %s", e.Field, e.Msg)
}

// IsValidationError returns true if err is a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// ErrSessionMismatch is returned in AcceptResult.Err for packets of
// another session.
var ErrSessionMismatch = errors.New("packet session does not match bound session")

// SequenceError reports a packet rejected by the sequence gate.
type SequenceError struct {
	Seq     int64
	LastSeq int64
	// Buffered is set when the seq is already waiting in the buffer.
	Buffered bool
	// InFlight is set when the seq is the packet currently playing.
	InFlight bool
}

func (e *SequenceError) Error() string {
	switch {
	case e.Buffered:
		return fmt.Sprintf("seq %d already buffered", e.Seq)
	case e.InFlight:
		return fmt.Sprintf("seq %d is already playing", e.Seq)
	}
	return fmt.Sprintf("seq %d not after last dispatched seq %d", e.Seq, e.LastSeq)
}

// Validate checks the structure of a packet and its tracks.
// Returns nil or a *ValidationError.
func Validate(pkt *types.MediaPacket) error {
	if pkt == nil {
		return &ValidationError{Field: "packet", Msg: "missing"}
	}
	if pkt.Seq < 0 {
		return &ValidationError{Field: "seq", Msg: "must be non-negative"}
	}
	if pkt.SessionID == "" {
		return &ValidationError{Field: "sessionId", Msg: "must be non-empty"}
	}
	if pkt.Hash == "" {
		return &ValidationError{Field: "hash", Msg: "missing"}
	}
	if len(pkt.Tracks) == 0 {
		return &ValidationError{Field: "tracks", Msg: "must be non-empty"}
	}
	for i, t := range pkt.Tracks {
		if err := validateTrack(t); err != nil {
			err.Field = fmt.Sprintf("tracks[%d].%s", i, err.Field)
			return err
		}
	}
	return nil
}

func validateTrack(t types.MediaTrack) *ValidationError {
	switch {
	case !t.Kind.Valid():
		return &ValidationError{Field: "kind", Msg: "must be audio, video or subtitle"}
	case t.PTS < 0:
		return &ValidationError{Field: "pts", Msg: "must be non-negative"}
	case t.Dur <= 0:
		return &ValidationError{Field: "dur", Msg: "must be positive"}
	case t.PayloadRef == "":
		return &ValidationError{Field: "payloadRef", Msg: "must be non-empty"}
	}
	return nil
}
