// Package cmd provides CLI commands for the mediasync binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitSuccess   = 0
	exitUsage     = 1 // config, usage or input error
	exitTransport = 2 // stream could not be (re)established
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}

	// ConfigFlag points at a mediasync.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to mediasync.yaml (flags override file values)",
		EnvVars: []string{"MEDIASYNC_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// Includes --tui so that commands without a TUI can reject it explicitly
// instead of failing with "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, TUIFlag}
}

// journalReadFlags locate an existing journal.
func journalReadFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "journal-backend", Usage: "Journal backend: fs or s3", Value: "fs"},
		&cli.StringFlag{Name: "journal-path", Usage: "Journal location (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "journal-dataset", Usage: "Journal dataset name"},
		&cli.StringFlag{Name: "journal-region", Usage: "AWS region for the s3 backend"},
		&cli.StringFlag{Name: "journal-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "journal-s3-path-style", Usage: "Use path-style S3 addressing"},
		&cli.StringFlag{Name: "session", Usage: "Filter by session id"},
		&cli.StringFlag{Name: "source", Usage: "Filter by journal source"},
	}
}

// sessionFlags are shared by commands that run the engine.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-file", Usage: "Write logs to a file instead of stderr"},
		&cli.BoolFlag{Name: "tui", Usage: "Show the live monitor"},
		&cli.BoolFlag{Name: "quiet", Usage: "Suppress the session summary"},

		// Engine
		&cli.DurationFlag{Name: "jitter-window", Usage: "Delay before a packet becomes eligible for dispatch"},
		&cli.DurationFlag{Name: "packet-timeout", Usage: "Bound on waiting for a packet's tracks (0 waits indefinitely)"},
		&cli.StringFlag{Name: "session-id", Usage: "Pre-bind the engine to a session id"},
		&cli.StringFlag{Name: "idle-clip", Usage: "Clip the video sink returns to when idle"},

		// Journal
		&cli.StringFlag{Name: "journal-backend", Usage: "Journal backend: fs or s3 (empty disables the journal)"},
		&cli.StringFlag{Name: "journal-path", Usage: "Journal location (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "journal-source", Usage: "Journal source partition"},
		&cli.StringFlag{Name: "journal-policy", Usage: "Journal write policy: strict or streaming"},
		&cli.StringFlag{Name: "journal-region", Usage: "AWS region for the s3 backend"},
		&cli.StringFlag{Name: "journal-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},

		// Adapter
		&cli.StringFlag{Name: "adapter", Usage: "Session-completed notifier: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Notifier URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel"},
	}
}
