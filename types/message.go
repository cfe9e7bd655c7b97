package types

import "time"

// MessageTypeMediaPacket is the type discriminator of inbound packet messages.
const MessageTypeMediaPacket = "media_packet"

// InboundMessage is a message received over the stream connection.
type InboundMessage struct {
	// Type is the message discriminator. Only media_packet is consumed.
	Type string
	// Packet is set when Type is media_packet.
	Packet *MediaPacket
	// SessionInfo is opaque server-side session metadata.
	SessionInfo map[string]any
	// ServerTimestamp is the server send time in seconds since the epoch.
	// Zero means the server did not supply one.
	ServerTimestamp float64
}

// ServerTime converts ServerTimestamp to a time.Time.
// Returns the zero time when no timestamp was supplied.
func (m *InboundMessage) ServerTime() time.Time {
	if m.ServerTimestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m.ServerTimestamp * 1000))
}

// SubtitleCue is one parsed subtitle line.
type SubtitleCue struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start"`
	EndMs   int64  `json:"end"`
	Speaker string `json:"speaker,omitempty"`
}

// SessionContext describes a session the engine is explicitly started for.
type SessionContext struct {
	// SessionID pre-binds the engine. Empty binds on the first valid packet.
	SessionID string
	// StartedAt defaults to the time Start is called.
	StartedAt time.Time
	// Info is carried through to logs and the journal.
	Info map[string]any
}
