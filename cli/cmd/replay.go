package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/session"
)

// ReplayCommand feeds a recorded JSONL stream through the engine.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Play a recorded stream of media_packet messages (JSONL)",
		Flags: append(sessionFlags(),
			&cli.StringFlag{Name: "file", Usage: "JSONL recording, one message per line", Required: true},
			&cli.Float64Flag{Name: "speed", Usage: "Pace by server_timestamp gaps divided by speed (0 = back-to-back)", Value: 0},
		),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	path := c.String("file")
	if _, err := os.Stat(path); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if c.Float64("speed") < 0 {
		return cli.Exit("--speed must be >= 0", exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if cfg.Journal.Source == "" {
		cfg.Journal.Source = "replay"
	}

	logger, closeLog, err := buildLogger(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeLog()

	return runSession(c, cfg, logger, session.NewFileReplay(path, c.Float64("speed")), "mediasync · replay")
}
