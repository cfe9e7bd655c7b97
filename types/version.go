package types

// Version is the canonical project version.
// The CLI, wire contract and journal record format share this version.
const Version = "0.3.0"

// ProtocolVersion is the media_packet protocol version this client speaks.
// Packets carrying another version are still accepted; the version is
// recorded for diagnostics only.
const ProtocolVersion = 1
