package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/mediasync/iox"
	"github.com/pithecene-io/mediasync/transport/ws"
	"github.com/pithecene-io/mediasync/wire"
)

// DefaultMaxReplayGap caps the pause between two replayed messages.
const DefaultMaxReplayGap = 5 * time.Second

// ReplaySource feeds recorded messages to the engine as text frames.
//
// The input is JSONL: one wire message per line, exactly as it was sent
// over the stream. Blank lines are skipped.
type ReplaySource struct {
	// Open returns the recording. It is called once per Run.
	Open func() (io.ReadCloser, error)
	// Speed paces delivery by the server_timestamp gaps between
	// consecutive messages, divided by Speed. Zero delivers back-to-back.
	Speed float64
	// MaxGap caps a single pause. Zero means DefaultMaxReplayGap.
	MaxGap time.Duration
	// ConnectionID is stamped on every frame.
	ConnectionID string
}

// NewFileReplay replays the JSONL file at path.
func NewFileReplay(path string, speed float64) *ReplaySource {
	return &ReplaySource{
		Open:         func() (io.ReadCloser, error) { return os.Open(path) },
		Speed:        speed,
		ConnectionID: "replay:" + path,
	}
}

type replayStamp struct {
	ServerTimestamp float64 `json:"server_timestamp"`
}

// Run delivers every line and returns nil at end of input.
func (s *ReplaySource) Run(ctx context.Context, handler ws.Handler) error {
	rc, err := s.Open()
	if err != nil {
		return fmt.Errorf("open replay: %w", err)
	}
	defer iox.DiscardClose(rc)

	maxGap := s.MaxGap
	if maxGap <= 0 {
		maxGap = DefaultMaxReplayGap
	}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), wire.MaxMessageSize)

	var prevTS float64
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.Speed > 0 {
			var stamp replayStamp
			// Undecodable lines are still delivered; the engine classifies them.
			if json.Unmarshal(data, &stamp) == nil && stamp.ServerTimestamp > 0 {
				if prevTS > 0 && stamp.ServerTimestamp > prevTS {
					gap := time.Duration((stamp.ServerTimestamp - prevTS) / s.Speed * float64(time.Second))
					if err := sleep(ctx, min(gap, maxGap)); err != nil {
						return err
					}
				}
				prevTS = stamp.ServerTimestamp
			}
		}

		handler(ws.Frame{
			Data:         bytes.Clone(data),
			ConnectionID: s.ConnectionID,
			ReceivedAt:   time.Now(),
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay line %d: %w", line+1, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
