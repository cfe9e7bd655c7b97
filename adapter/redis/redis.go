// Package redis publishes session completion events over Redis pub/sub.
//
// Subscribers that were not listening when a session ended can still read
// the most recent event per session from a summary key when SummaryTTL is
// set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/mediasync/adapter"
)

// Defaults for Config.
const (
	DefaultChannel   = "mediasync:session_completed"
	DefaultKeyPrefix = "mediasync:session:"
	DefaultTimeout   = 5 * time.Second
	DefaultRetries   = 3
)

// Config configures the Redis adapter.
type Config struct {
	// URL is required. Format: redis://[:password@]host:port[/db]
	URL     string
	Channel string
	// KeyPrefix prefixes the per-session summary key.
	KeyPrefix string
	// SummaryTTL keeps the event under KeyPrefix+session_id for this long.
	// Zero disables the summary key.
	SummaryTTL time.Duration
	Timeout    time.Duration
	Retries    int
}

// Adapter publishes events via PUBLISH, plus SET when summaries are on.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. It does not connect until the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.SummaryTTL < 0 {
		return nil, fmt.Errorf("summary ttl must be >= 0, got %s", cfg.SummaryTTL)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// SummaryKey returns the key holding the latest event for sessionID.
func (a *Adapter) SummaryKey(sessionID string) string {
	return a.config.KeyPrefix + sessionID
}

// Publish sends the event as JSON to the channel. With summaries on, the
// SET and PUBLISH go out in one MULTI so a reader that sees the message
// also finds the key.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		if a.config.SummaryTTL == 0 {
			return a.client.Publish(ctx, a.config.Channel, body).Err()
		}
		_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, a.SummaryKey(event.SessionID), body, a.config.SummaryTTL)
			p.Publish(ctx, a.config.Channel, body)
			return nil
		})
		return err
	}, nil)
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
