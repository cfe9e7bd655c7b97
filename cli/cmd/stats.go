package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/cli/config"
	"github.com/pithecene-io/mediasync/cli/render"
	"github.com/pithecene-io/mediasync/cli/tui"
	"github.com/pithecene-io/mediasync/journal"
)

const queryTimeout = 30 * time.Second

// StatsCommand shows the metrics record of the most recent matching session.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show metrics of the latest finished session from the journal",
		Flags:  append(ReadOnlyFlags(), journalReadFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	ds, err := openJournal(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, cancel := context.WithTimeout(c.Context, queryTimeout)
	defer cancel()

	record, err := journal.QueryLatestMetrics(ctx, ds, filterFrom(c))
	if errors.Is(err, journal.ErrNoMetricsFound) {
		return cli.Exit("no metrics records match", exitUsage)
	}
	if err != nil {
		return fmt.Errorf("failed to read metrics from journal: %w", err)
	}
	summary, err := journal.SummaryFromRecord(record)
	if err != nil {
		return fmt.Errorf("failed to parse metrics record: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsSession, summary)
	}
	return r.Render(summary)
}

// HistoryCommand lists the playback records of a session.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "List journaled playback records",
		Flags:  append(ReadOnlyFlags(), journalReadFlags()...),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history command", exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	ds, err := openJournal(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, cancel := context.WithTimeout(c.Context, queryTimeout)
	defer cancel()

	records, err := journal.QueryPlayback(ctx, ds, filterFrom(c))
	if err != nil {
		return fmt.Errorf("failed to read playback records: %w", err)
	}
	return r.Render(journal.RowsFromRecords(records))
}

func filterFrom(c *cli.Context) journal.Filter {
	return journal.Filter{SessionID: c.String("session"), Source: c.String("source")}
}

// openJournal opens the dataset named by flags, falling back to --config.
func openJournal(c *cli.Context) (lode.Dataset, error) {
	jc := config.JournalConfig{}
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		jc = cfg.Journal
	}
	if c.IsSet("journal-backend") || jc.Backend == "" {
		jc.Backend = c.String("journal-backend")
	}
	for flag, dst := range map[string]*string{
		"journal-path":     &jc.Path,
		"journal-dataset":  &jc.Dataset,
		"journal-region":   &jc.Region,
		"journal-endpoint": &jc.Endpoint,
	} {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	if c.IsSet("journal-s3-path-style") {
		jc.S3PathStyle = c.Bool("journal-s3-path-style")
	}
	if jc.Path == "" {
		return nil, errors.New("--journal-path is required")
	}

	switch jc.Backend {
	case "fs":
		return journal.OpenFS(jc.Dataset, jc.Path)
	case "s3":
		bucket, prefix := journal.ParseS3Path(jc.Path)
		return journal.OpenS3(c.Context, jc.Dataset, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       jc.Region,
			Endpoint:     jc.Endpoint,
			UsePathStyle: jc.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported journal backend %q (must be fs or s3)", jc.Backend)
	}
}
