package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/adapter"
	"github.com/pithecene-io/mediasync/adapter/redis"
	"github.com/pithecene-io/mediasync/adapter/webhook"
	"github.com/pithecene-io/mediasync/cli/config"
	"github.com/pithecene-io/mediasync/engine"
	"github.com/pithecene-io/mediasync/iox"
	"github.com/pithecene-io/mediasync/journal"
	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/player"
)

// loadConfig reads --config (if any) and applies flag overrides.
// Only flags the user actually set override file values.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setString := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	setDuration := func(flag string, dst *config.Duration) {
		if c.IsSet(flag) {
			dst.Duration = c.Duration(flag)
		}
	}

	setString("endpoint", &cfg.Endpoint)
	setString("log-level", &cfg.Log.Level)
	setDuration("jitter-window", &cfg.Engine.JitterWindow)
	setDuration("packet-timeout", &cfg.Engine.PacketTimeout)
	setString("idle-clip", &cfg.Engine.IdleClip)

	if c.IsSet("max-attempts") {
		n := c.Int("max-attempts")
		cfg.Reconnect.MaxAttempts = &n
	}
	setDuration("backoff", &cfg.Reconnect.Backoff)

	if c.IsSet("header") {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		for _, h := range c.StringSlice("header") {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return nil, fmt.Errorf("invalid --header %q (expected \"Name: value\")", h)
			}
			cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	setString("journal-backend", &cfg.Journal.Backend)
	setString("journal-path", &cfg.Journal.Path)
	setString("journal-dataset", &cfg.Journal.Dataset)
	setString("journal-source", &cfg.Journal.Source)
	setString("journal-policy", &cfg.Journal.Policy)
	setString("journal-region", &cfg.Journal.Region)
	setString("journal-endpoint", &cfg.Journal.Endpoint)
	if c.IsSet("journal-s3-path-style") {
		cfg.Journal.S3PathStyle = c.Bool("journal-s3-path-style")
	}
	if cfg.Journal.Backend == "" && cfg.Journal.Path != "" {
		cfg.Journal.Backend = "fs"
	}

	setString("adapter", &cfg.Adapter.Type)
	setString("adapter-url", &cfg.Adapter.URL)
	setString("adapter-channel", &cfg.Adapter.Channel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLogger logs to --log-file, to nowhere under the TUI, or to stderr.
// The returned func closes the log file.
func buildLogger(c *cli.Context, cfg *config.Config) (*log.Logger, func(), error) {
	var w io.Writer = os.Stderr
	var closeFile func() error

	switch {
	case c.String("log-file") != "":
		f, err := os.OpenFile(c.String("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFile = f.Close
	case c.Bool("tui"):
		w = io.Discard
	}

	logger, err := log.NewLoggerWithWriter(cfg.Log.Level, w)
	if err != nil {
		iox.Cleanup(closeFile)()
		return nil, nil, err
	}
	return logger, iox.Cleanup(closeFile, logger.Sync), nil
}

func engineConfig(cfg *config.Config, logger *log.Logger) engine.Config {
	return engine.Config{
		JitterWindow:  cfg.Engine.JitterWindow.Duration,
		PacketTimeout: cfg.Engine.PacketTimeout.Duration,
		SampleWindow:  cfg.Engine.SampleWindow,
		Logger:        logger,
	}
}

// buildPlayers wires the headless sinks. Subtitle events are returned so
// the caller can feed them to the TUI or the log.
func buildPlayers(cfg *config.Config, logger *log.Logger) (*player.Set, *player.ChannelSubtitles) {
	subtitles := player.NewChannelSubtitles(32)
	set := player.NewSinkSet(
		player.NewHeadlessAudio(logger),
		player.NewLogVideo(cfg.Engine.IdleClip, logger),
		subtitles,
		logger,
	)
	return set, subtitles
}

// journalSetup is the optional journal for one session.
type journalSetup struct {
	policy      journal.Policy
	store       journal.Store
	source      string
	day         string
	storagePath string
}

// buildJournal opens the configured store. A zero journalSetup means the
// journal is disabled.
func buildJournal(ctx context.Context, cfg *config.Config, logger *log.Logger, now time.Time) (journalSetup, error) {
	jc := cfg.Journal
	if jc.Backend == "" {
		return journalSetup{}, nil
	}
	if jc.Path == "" {
		return journalSetup{}, fmt.Errorf("journal.path is required for backend %q", jc.Backend)
	}

	jcfg := journal.Config{Dataset: jc.Dataset, Source: jc.Source, Day: journal.DeriveDay(now)}
	if jcfg.Source == "" {
		jcfg.Source = journal.DefaultSource
	}

	var (
		store *journal.LodeStore
		err   error
	)
	switch jc.Backend {
	case "fs":
		store, err = journal.NewFSStore(jcfg, jc.Path)
	case "s3":
		bucket, prefix := journal.ParseS3Path(jc.Path)
		store, err = journal.NewS3Store(ctx, jcfg, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       jc.Region,
			Endpoint:     jc.Endpoint,
			UsePathStyle: jc.S3PathStyle,
		})
	default:
		err = fmt.Errorf("unknown journal backend %q", jc.Backend)
	}
	if err != nil {
		return journalSetup{}, fmt.Errorf("open journal: %w", err)
	}

	policy, err := journal.NewPolicy(jc.Policy, store, journal.StreamingConfig{
		FlushCount:    jc.FlushCount,
		FlushInterval: jc.FlushInterval.Duration,
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return journalSetup{}, err
	}

	return journalSetup{
		policy:      policy,
		store:       store,
		source:      jcfg.Source,
		day:         jcfg.Day,
		storagePath: jc.Backend + "://" + jc.Path,
	}, nil
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	ac := cfg.Adapter
	retries := 3
	if ac.Retries != nil {
		retries = *ac.Retries
	}

	switch ac.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:        ac.URL,
			Channel:    ac.Channel,
			SummaryTTL: ac.SummaryTTL.Duration,
			Timeout:    ac.Timeout.Duration,
			Retries:    retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

func headerOf(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
