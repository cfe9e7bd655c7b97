package engine

import (
	"testing"

	"github.com/pithecene-io/mediasync/types"
)

func TestValidate(t *testing.T) {
	good := func() *types.MediaPacket {
		return &types.MediaPacket{
			SessionID: "s",
			Seq:       0,
			Hash:      "h",
			Tracks: []types.MediaTrack{
				{Kind: types.TrackAudio, PTS: 0, Dur: 100, PayloadRef: "a"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(p *types.MediaPacket)
		field  string
	}{
		{name: "valid", mutate: func(*types.MediaPacket) {}},
		{name: "negative seq", mutate: func(p *types.MediaPacket) { p.Seq = -1 }, field: "seq"},
		{name: "empty session", mutate: func(p *types.MediaPacket) { p.SessionID = "" }, field: "sessionId"},
		{name: "missing hash", mutate: func(p *types.MediaPacket) { p.Hash = "" }, field: "hash"},
		{name: "empty tracks", mutate: func(p *types.MediaPacket) { p.Tracks = nil }, field: "tracks"},
		{name: "unknown kind", mutate: func(p *types.MediaPacket) { p.Tracks[0].Kind = types.TrackUnknown }, field: "tracks[0].kind"},
		{name: "negative pts", mutate: func(p *types.MediaPacket) { p.Tracks[0].PTS = -5 }, field: "tracks[0].pts"},
		{name: "zero dur", mutate: func(p *types.MediaPacket) { p.Tracks[0].Dur = 0 }, field: "tracks[0].dur"},
		{name: "empty payload", mutate: func(p *types.MediaPacket) { p.Tracks[0].PayloadRef = "" }, field: "tracks[0].payloadRef"},
		{
			name: "second track bad",
			mutate: func(p *types.MediaPacket) {
				p.Tracks = append(p.Tracks, types.MediaTrack{Kind: types.TrackVideo, Dur: -1, PayloadRef: "v"})
			},
			field: "tracks[1].dur",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good()
			tt.mutate(p)
			err := Validate(p)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			vErr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, vErr.Field)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if !IsValidationError(Validate(nil)) {
		t.Error("expected validation error for nil packet")
	}
}
