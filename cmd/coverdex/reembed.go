package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/coverdex/source/manifest"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Refresh cover fingerprints made by an older embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-embed every entry, including current ones",
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Covers may be file paths from a manifest or remote URLs
	reembedder, err := engine.NewReembedder(manifest.NewFetcher(nil), c.Bool("force"), c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("failed to create reembedder: %w", err)
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", engine.Provider().Embedder().ModelVersion())
	fmt.Fprintln(c.App.ErrWriter)

	summary, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	for _, id := range slices.Sorted(maps.Keys(summary.Failures)) {
		fmt.Fprintf(c.App.ErrWriter, "  failed %s: %s\n", id, summary.Failures[id])
	}
	return nil
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show catalog size and embedding model versions",
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats(c.Context)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Database:  %s\n", cfg.DBPath)
	fmt.Fprintf(w, "Entries:   %d\n", stats.Entries)
	if stats.Dimension > 0 {
		fmt.Fprintf(w, "Dimension: %d\n", stats.Dimension)
	}
	fmt.Fprintf(w, "Model:     %s (%d stale)\n", stats.ModelVersion, stats.Stale())
	for _, v := range slices.Sorted(maps.Keys(stats.ModelVersions)) {
		fmt.Fprintf(w, "  %-30s %d\n", v, stats.ModelVersions[v])
	}

	for _, style := range cfg.Styles {
		cp, err := engine.Checkpoints().Load(c.Context, style)
		if err != nil {
			return err
		}
		if cp == nil {
			fmt.Fprintf(w, "Style %-20s not started\n", style)
			continue
		}
		state := fmt.Sprintf("next page %d", cp.NextPage)
		if cp.Completed {
			state = "complete"
		}
		fmt.Fprintf(w, "Style %-20s %s, %d records seen, updated %s\n",
			style, state, cp.ItemsSeen, cp.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}
