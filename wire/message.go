// Package wire decodes inbound stream messages into the packet model.
//
// Text WebSocket frames carry JSON; binary frames carry msgpack with the same
// field names. Decoding goes through pointer-typed wire structs so that a
// missing required field is distinguishable from a zero value.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/mediasync/types"
)

// MaxMessageSize is the largest inbound message accepted (16 MiB).
const MaxMessageSize = 16 * 1024 * 1024

// Format selects the message encoding.
type Format int

const (
	// FormatJSON is used for text frames.
	FormatJSON Format = iota
	// FormatMsgpack is used for binary frames.
	FormatMsgpack
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "json"
}

// DecodeErrorKind classifies message decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorMalformed indicates undecodable bytes or a wrong-typed field.
	DecodeErrorMalformed DecodeErrorKind = iota
	// DecodeErrorMissingField indicates a required field is absent.
	DecodeErrorMissingField
	// DecodeErrorUnknownType indicates a message that is not a media packet.
	DecodeErrorUnknownType
	// DecodeErrorTooLarge indicates a message exceeding MaxMessageSize.
	DecodeErrorTooLarge
)

// DecodeError represents a message decoding error.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Msg   string
	Err   error
}

func (e *DecodeError) Error() string {
	msg := e.Msg
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsUnknownType returns true if err reports a non-packet message.
func IsUnknownType(err error) bool {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Kind == DecodeErrorUnknownType
	}
	return false
}

// messageWire is the on-the-wire envelope.
type messageWire struct {
	Type            string         `json:"type" msgpack:"type"`
	Packet          *packetWire    `json:"packet,omitempty" msgpack:"packet,omitempty"`
	SessionInfo     map[string]any `json:"session_info,omitempty" msgpack:"session_info,omitempty"`
	ServerTimestamp *float64       `json:"server_timestamp,omitempty" msgpack:"server_timestamp,omitempty"`
}

type packetWire struct {
	Version   *int        `json:"version,omitempty" msgpack:"version,omitempty"`
	SessionID *string     `json:"sessionId,omitempty" msgpack:"sessionId,omitempty"`
	Seq       *int64      `json:"seq,omitempty" msgpack:"seq,omitempty"`
	T0        *int64      `json:"t0,omitempty" msgpack:"t0,omitempty"`
	Tracks    []trackWire `json:"tracks" msgpack:"tracks"`
	Hash      *string     `json:"hash,omitempty" msgpack:"hash,omitempty"`
}

type trackWire struct {
	Kind       *string        `json:"kind,omitempty" msgpack:"kind,omitempty"`
	PTS        *int64         `json:"pts,omitempty" msgpack:"pts,omitempty"`
	Dur        *int64         `json:"dur,omitempty" msgpack:"dur,omitempty"`
	PayloadRef *string        `json:"payloadRef,omitempty" msgpack:"payloadRef,omitempty"`
	Codec      string         `json:"codec,omitempty" msgpack:"codec,omitempty"`
	Meta       map[string]any `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// Decode decodes one inbound message.
//
// Errors:
//   - *DecodeError with Kind=DecodeErrorUnknownType: not a media_packet (ignore)
//   - *DecodeError with any other Kind: a malformed media packet (invalid)
func Decode(data []byte, format Format) (*types.InboundMessage, error) {
	if len(data) > MaxMessageSize {
		return nil, &DecodeError{
			Kind: DecodeErrorTooLarge,
			Msg:  fmt.Sprintf("message size %d exceeds maximum %d", len(data), MaxMessageSize),
		}
	}

	var msg messageWire
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &msg)
	default:
		err = json.Unmarshal(data, &msg)
	}
	if err != nil {
		return nil, &DecodeError{
			Kind: DecodeErrorMalformed,
			Msg:  fmt.Sprintf("failed to decode %s message", format),
			Err:  err,
		}
	}

	if msg.Type != types.MessageTypeMediaPacket {
		return nil, &DecodeError{
			Kind: DecodeErrorUnknownType,
			Msg:  fmt.Sprintf("unhandled message type %q", msg.Type),
		}
	}
	if msg.Packet == nil {
		return nil, missing("packet")
	}

	pkt, err := msg.Packet.toPacket()
	if err != nil {
		return nil, err
	}

	out := &types.InboundMessage{
		Type:        msg.Type,
		Packet:      pkt,
		SessionInfo: msg.SessionInfo,
	}
	if msg.ServerTimestamp != nil {
		out.ServerTimestamp = *msg.ServerTimestamp
	}
	return out, nil
}

func missing(field string) *DecodeError {
	return &DecodeError{Kind: DecodeErrorMissingField, Msg: "missing required field", Field: field}
}

// toPacket converts the wire form, checking presence of required fields.
// Value checks (negative seq, zero dur, empty strings) are left to the
// engine's validator so in-process callers get the same classification.
func (p *packetWire) toPacket() (*types.MediaPacket, error) {
	switch {
	case p.SessionID == nil:
		return nil, missing("packet.sessionId")
	case p.Seq == nil:
		return nil, missing("packet.seq")
	case p.Tracks == nil:
		return nil, missing("packet.tracks")
	case p.Hash == nil:
		return nil, missing("packet.hash")
	}

	pkt := &types.MediaPacket{
		SessionID: *p.SessionID,
		Seq:       *p.Seq,
		Hash:      *p.Hash,
		Tracks:    make([]types.MediaTrack, 0, len(p.Tracks)),
	}
	if p.Version != nil {
		pkt.Version = *p.Version
	}
	if p.T0 != nil {
		pkt.T0 = *p.T0
	}

	for i, tw := range p.Tracks {
		field := func(name string) string { return fmt.Sprintf("packet.tracks[%d].%s", i, name) }
		switch {
		case tw.Kind == nil:
			return nil, missing(field("kind"))
		case tw.PTS == nil:
			return nil, missing(field("pts"))
		case tw.Dur == nil:
			return nil, missing(field("dur"))
		case tw.PayloadRef == nil:
			return nil, missing(field("payloadRef"))
		}
		kind, err := types.ParseTrackKind(*tw.Kind)
		if err != nil {
			return nil, &DecodeError{Kind: DecodeErrorMalformed, Msg: "invalid field", Field: field("kind"), Err: err}
		}
		pkt.Tracks = append(pkt.Tracks, types.MediaTrack{
			Kind:       kind,
			PTS:        *tw.PTS,
			Dur:        *tw.Dur,
			PayloadRef: *tw.PayloadRef,
			Codec:      tw.Codec,
			Meta:       tw.Meta,
		})
	}
	return pkt, nil
}

// Encode encodes a message in the given format. Used by tests, the replay
// recorder and local stream fixtures.
func Encode(msg *types.InboundMessage, format Format) ([]byte, error) {
	w := messageWire{
		Type:        msg.Type,
		SessionInfo: msg.SessionInfo,
	}
	if msg.ServerTimestamp > 0 {
		ts := msg.ServerTimestamp
		w.ServerTimestamp = &ts
	}
	if msg.Packet != nil {
		w.Packet = fromPacket(msg.Packet)
	}

	switch format {
	case FormatMsgpack:
		return msgpack.Marshal(&w)
	default:
		return json.Marshal(&w)
	}
}

func fromPacket(p *types.MediaPacket) *packetWire {
	version, sessionID, seq, t0, hash := p.Version, p.SessionID, p.Seq, p.T0, p.Hash
	pw := &packetWire{
		Version:   &version,
		SessionID: &sessionID,
		Seq:       &seq,
		T0:        &t0,
		Hash:      &hash,
		Tracks:    make([]trackWire, 0, len(p.Tracks)),
	}
	for _, t := range p.Tracks {
		kind, pts, dur, ref := t.Kind.String(), t.PTS, t.Dur, t.PayloadRef
		pw.Tracks = append(pw.Tracks, trackWire{
			Kind:       &kind,
			PTS:        &pts,
			Dur:        &dur,
			PayloadRef: &ref,
			Codec:      t.Codec,
			Meta:       t.Meta,
		})
	}
	return pw
}
