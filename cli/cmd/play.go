package cmd

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/transport/ws"
)

// PlayCommand connects to a live stream and plays it until the stream
// ends or the process is interrupted.
func PlayCommand() *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Connect to a media packet stream and play it",
		Flags: append(sessionFlags(),
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Usage: "WebSocket endpoint (ws:// or wss://)"},
			&cli.StringSliceFlag{Name: "header", Aliases: []string{"H"}, Usage: "Handshake header \"Name: value\" (repeatable)"},
			&cli.IntFlag{Name: "max-attempts", Usage: "Consecutive failed connection attempts before giving up", Value: 5},
			&cli.DurationFlag{Name: "backoff", Usage: "Delay before the first redial; doubles per attempt"},
		),
		Action: playAction,
	}
}

func playAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if cfg.Endpoint == "" {
		return cli.Exit(errNoEndpoint.Error(), exitUsage)
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid endpoint: %v", err), exitUsage)
	}
	if cfg.Journal.Source == "" {
		cfg.Journal.Source = endpoint.Host
	}

	logger, closeLog, err := buildLogger(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeLog()

	// The flag default applies when neither flag nor file sets attempts.
	maxAttempts := c.Int("max-attempts")
	if cfg.Reconnect.MaxAttempts != nil {
		maxAttempts = *cfg.Reconnect.MaxAttempts
	}

	client, err := ws.New(ws.Config{
		URL:         cfg.Endpoint,
		Header:      headerOf(cfg.Headers),
		MaxAttempts: maxAttempts,
		Backoff:     cfg.Reconnect.Backoff.Duration,
		MaxBackoff:  cfg.Reconnect.MaxBackoff.Duration,
		ReadTimeout: cfg.Reconnect.ReadTimeout.Duration,
		OnConnect: func(connID string) {
			logger.Sugar().Infof("connected to %s (connection %s)", endpoint.Host, connID)
		},
		Logger: logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	return runSession(c, cfg, logger, client, "mediasync · "+endpoint.Host)
}
