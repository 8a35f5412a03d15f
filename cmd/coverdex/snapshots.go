package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poiesic/coverdex/archive"
	"github.com/poiesic/coverdex/core"
	"github.com/urfave/cli/v2"
)

func snapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:   "snapshots",
		Usage:  "List archived queries, newest first",
		Action: snapshotsAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of snapshots to list",
				Value: archive.DefaultRecentLimit,
			},
			&cli.Uint64Flag{
				Name:  "before",
				Usage: "List snapshots older than this ID",
			},
			&cli.Uint64Flag{
				Name:  "id",
				Usage: "Show one snapshot in detail",
			},
			&cli.StringFlag{
				Name:  "save-image",
				Usage: "Write the image of the snapshot given by --id to this path",
			},
		},
	}
}

func snapshotsAction(c *cli.Context) error {
	engine, _, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := c.App.Writer
	arc := engine.Archive()

	if c.IsSet("id") {
		record, err := arc.Get(c.Context, core.ID(c.Uint64("id")))
		if err != nil {
			return err
		}
		printSnapshot(w, record)
		if path := c.String("save-image"); path != "" {
			image, err := arc.Image(c.Context, record)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, image, 0o644); err != nil {
				return fmt.Errorf("save image: %w", err)
			}
			fmt.Fprintf(w, "Image saved to %s\n", path)
		}
		return nil
	}

	opts := archive.ListOptions{Before: core.ID(c.Uint64("before")), Limit: max(c.Int("limit"), 1)}
	n := 0
	for record, err := range arc.List(c.Context, opts) {
		if err != nil {
			return err
		}
		best := "no matches"
		if len(record.Matches) > 0 {
			m := record.Matches[0]
			best = fmt.Sprintf("%s - %s [%0.3f]", m.Artist, m.Title, m.Score)
		}
		fmt.Fprintf(w, "%6d  %s  %s\n", record.ID, record.CapturedAt.Local().Format(time.DateTime), best)
		n++
	}
	if n == 0 {
		fmt.Fprintln(w, "No snapshots")
	}
	return nil
}

func printSnapshot(w io.Writer, r *core.SnapshotRecord) {
	fmt.Fprintf(w, "Snapshot %d\n", r.ID)
	fmt.Fprintf(w, "Captured: %s\n", r.CapturedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Image:    %s (%s)\n", r.ImageRef, r.ContentType)
	switch {
	case r.OCRFailed:
		fmt.Fprintln(w, "Text:     unavailable")
	case r.ExtractedText != "":
		fmt.Fprintf(w, "Text:     %s\n", r.ExtractedText)
	}
	for _, m := range r.Matches {
		fmt.Fprintf(w, "%2d. [%0.3f] %s - %s %s\n", m.Rank, m.Score, m.Artist, m.Title, m.SourceID)
	}
}
