package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents a mediasync.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Endpoint  string            `yaml:"endpoint"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Engine    EngineConfig      `yaml:"engine"`
	Reconnect ReconnectConfig   `yaml:"reconnect"`
	Journal   JournalConfig     `yaml:"journal"`
	Adapter   AdapterConfig     `yaml:"adapter"`
	Log       LogConfig         `yaml:"log"`
}

// EngineConfig holds dispatcher tuning.
type EngineConfig struct {
	JitterWindow  Duration `yaml:"jitter_window"`
	PacketTimeout Duration `yaml:"packet_timeout"`
	SampleWindow  int      `yaml:"sample_window"`
	IdleClip      string   `yaml:"idle_clip"`
}

// ReconnectConfig holds websocket redial settings.
type ReconnectConfig struct {
	MaxAttempts *int     `yaml:"max_attempts,omitempty"`
	Backoff     Duration `yaml:"backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
	ReadTimeout Duration `yaml:"read_timeout"`
}

// JournalConfig holds playback journal storage and write policy.
type JournalConfig struct {
	Dataset       string   `yaml:"dataset"`
	Source        string   `yaml:"source"`
	Backend       string   `yaml:"backend"` // fs | s3 | "" (disabled)
	Path          string   `yaml:"path"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	Policy        string   `yaml:"policy"` // strict | streaming
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds session-completed notification settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // webhook | redis
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// Secret signs webhook bodies.
	Secret string `yaml:"secret,omitempty"`
	// SummaryTTL keeps a per-session redis summary key.
	SummaryTTL Duration `yaml:"summary_ttl,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty"`
	Retries    *int     `yaml:"retries,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Validate checks values a command cannot fix up with a default.
func (c *Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("endpoint: scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	if c.Engine.SampleWindow < 0 {
		return fmt.Errorf("engine.sample_window must be >= 0, got %d", c.Engine.SampleWindow)
	}
	if c.Engine.JitterWindow.Duration < 0 || c.Engine.PacketTimeout.Duration < 0 {
		return fmt.Errorf("engine durations must not be negative")
	}
	if c.Reconnect.MaxAttempts != nil && *c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0, got %d", *c.Reconnect.MaxAttempts)
	}
	switch c.Journal.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("journal.backend must be fs or s3, got %q", c.Journal.Backend)
	}
	switch c.Journal.Policy {
	case "", "strict", "streaming":
	default:
		return fmt.Errorf("journal.policy must be strict or streaming, got %q", c.Journal.Policy)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.SummaryTTL.Duration < 0 {
		return fmt.Errorf("adapter.summary_ttl must not be negative")
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for adapter type %q", c.Adapter.Type)
	}
	return nil
}

// Duration wraps time.Duration for YAML strings like "300ms" or "5s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}
