package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/cli/config"
	"github.com/pithecene-io/mediasync/cli/tui"
	"github.com/pithecene-io/mediasync/log"
	"github.com/pithecene-io/mediasync/player"
	"github.com/pithecene-io/mediasync/session"
	"github.com/pithecene-io/mediasync/types"
)

// runSession drives one orchestrated session from source and maps the
// result to an exit code. Shared by play and replay.
func runSession(c *cli.Context, cfg *config.Config, logger *log.Logger, source session.Source, title string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	js, err := buildJournal(ctx, cfg, logger, startTime)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	notifier, err := buildAdapter(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitUsage)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	players, subtitles := buildPlayers(cfg, logger)
	scfg := session.Config{
		Source:        source,
		Players:       players,
		Engine:        engineConfig(cfg, logger),
		Policy:        js.policy,
		Store:         js.store,
		Adapter:       notifier,
		StoragePath:   js.storagePath,
		JournalSource: js.source,
		JournalDay:    js.day,
		Logger:        logger,
	}

	orch, err := session.New(scfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if id := c.String("session-id"); id != "" {
		if err := orch.Engine().Start(types.SessionContext{SessionID: id}); err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
	}

	var result *session.Result
	var runErr error

	if c.Bool("tui") {
		snaps, unsubscribe := orch.Engine().Subscribe()
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			result, runErr = orch.Run(runCtx)
			unsubscribe()
		}()

		tuiErr := tui.RunMonitor(tui.Feed{
			Title:     title,
			Snapshots: snaps,
			Subtitles: subtitles.Events(),
			Reset:     orch.Engine().Reset,
		})
		// Quitting the monitor ends the session.
		cancel()
		<-done
		if tuiErr != nil {
			logger.Warn("monitor exited with error", map[string]any{"error": tuiErr.Error()})
		}
	} else {
		go logSubtitles(ctx, subtitles.Events(), logger)
		result, runErr = orch.Run(ctx)
	}

	if !c.Bool("quiet") {
		fmt.Fprintln(c.App.Writer, result.String())
	}
	return exitFor(result, runErr)
}

func exitFor(result *session.Result, err error) error {
	if err == nil {
		return nil
	}
	switch result.Reason {
	case session.ReasonTransportError:
		return cli.Exit(err.Error(), exitTransport)
	default:
		return cli.Exit(err.Error(), exitUsage)
	}
}

func logSubtitles(ctx context.Context, events <-chan player.SubtitleEvent, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(ev.Cues) == 0 {
				logger.Debug("subtitles cleared", nil)
				continue
			}
			texts := make([]string, len(ev.Cues))
			for i, cue := range ev.Cues {
				texts[i] = cue.Text
			}
			logger.Info("subtitles", map[string]any{
				"cues":     texts,
				"duration": ev.Duration.String(),
			})
		}
	}
}

var errNoEndpoint = errors.New("an endpoint is required (--endpoint or endpoint in --config)")
