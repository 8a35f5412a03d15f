package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/coverdex/config"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/ingestion"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/source/discogs"
	"github.com/poiesic/coverdex/source/manifest"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

const (
	sourceDiscogs  = "discogs"
	sourceManifest = "manifest"
)

var errDiscogsToken = errors.New("discogs source needs COVERDEX_DISCOGS_TOKEN")

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:   "ingest",
		Usage:  "Add releases and their cover fingerprints to the catalog",
		Action: ingestAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Metadata source (discogs, manifest)",
				Value:   sourceDiscogs,
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Path to a JSON manifest (manifest source only)",
			},
			&cli.StringSliceFlag{
				Name:  "style",
				Usage: "Styles to ingest (default COVERDEX_STYLES, or every manifest style)",
			},
			&cli.BoolFlag{
				Name:  "rescan",
				Usage: "Start every style from the first page, ignoring saved progress",
			},
			&cli.IntFlag{
				Name:  "max-items",
				Usage: "Stop each style after this many records (0 for no limit)",
			},
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "Run repeatedly on a cron schedule, e.g. \"0 3 * * *\" (implies --rescan)",
			},
		},
	}
}

func ingestAction(c *cli.Context) error {
	schedule := c.String("schedule")
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}
	}

	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	src, fetcher, scopes, err := buildSource(c, cfg)
	if err != nil {
		return err
	}

	opts := []ingestion.Option{ingestion.WithRescan(c.Bool("rescan") || schedule != "")}
	if c.IsSet("max-items") {
		opts = append(opts, ingestion.WithMaxItemsPerScope(c.Int("max-items")))
	}
	pipeline, err := engine.NewIngestionPipeline(src, fetcher, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	w := c.App.Writer
	run := func(ctx context.Context) error {
		report, err := pipeline.Run(ctx, scopes...)
		if report != nil {
			printReport(w, report)
		}
		return err
	}

	if schedule != "" {
		return runScheduled(c.Context, schedule, w, run)
	}
	if err := run(c.Context); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

// buildSource picks the metadata source, cover fetcher and scopes for a run.
func buildSource(c *cli.Context, cfg *config.Config) (source.MetadataSource, source.ImageFetcher, []string, error) {
	scopes := c.StringSlice("style")

	switch c.String("source") {
	case sourceDiscogs:
		if cfg.DiscogsToken == "" {
			return nil, nil, nil, errDiscogsToken
		}
		if len(scopes) == 0 {
			scopes = cfg.Styles
		}
		client := discogs.NewClient(cfg.DiscogsToken,
			discogs.WithPerPage(cfg.DiscogsPerPage),
			discogs.WithLogger(slog.Default()),
		)
		return client, source.NewHTTPFetcher(), scopes, nil

	case sourceManifest:
		path := c.String("manifest")
		if path == "" {
			return nil, nil, nil, errors.New("manifest source needs --manifest")
		}
		src, err := manifest.Load(path)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(scopes) == 0 {
			scopes = src.Scopes()
		}
		return src, manifest.NewFetcher(nil), scopes, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown source %q: must be %s or %s", c.String("source"), sourceDiscogs, sourceManifest)
	}
}

func printReport(w io.Writer, report *ingestion.Report) {
	fmt.Fprintln(w, report)
	for _, name := range slices.Sorted(maps.Keys(report.Scopes)) {
		s := report.Scopes[name]
		status := "in progress"
		switch {
		case s.Error != "":
			status = "error: " + s.Error
		case s.Completed:
			status = "complete"
		}
		fmt.Fprintf(w, "  %-20s pages=%d ingested=%d updated=%d skipped=%d failed=%d (%s)\n",
			s.Scope, s.Pages, s.Ingested, s.Updated, s.Skipped, s.Failed, status)
	}
	for _, id := range slices.Sorted(maps.Keys(report.Failures)) {
		fmt.Fprintf(w, "  failed %s: %s\n", id, report.Failures[id])
	}
}

// runScheduled runs ingestion on a cron schedule until ctx ends or the store
// becomes unavailable. Overlapping runs are skipped.
func runScheduled(ctx context.Context, spec string, w io.Writer, run func(context.Context) error) error {
	logger := cronLogger{logger: slog.Default().With("component", "scheduler")}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	fatal := make(chan error, 1)
	_, err := scheduler.AddFunc(spec, func() {
		err := run(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
		case core.IsStoreUnavailable(err):
			select {
			case fatal <- err:
			default:
			}
		default:
			logger.Error(err, "scheduled ingestion failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	scheduler.Start()
	fmt.Fprintf(w, "Ingestion scheduled (%s), next run at %s\n", spec, scheduler.Entries()[0].Next.Format(time.DateTime))

	select {
	case <-ctx.Done():
	case err = <-fatal:
	}
	<-scheduler.Stop().Done()
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
