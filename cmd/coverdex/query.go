package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/search"
	"github.com/urfave/cli/v2"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Find the releases whose covers best match a photo",
		ArgsUsage: "IMAGE (use - to read stdin)",
		Action:    queryAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "k",
				Usage: "Number of matches to return (default COVERDEX_TOP_K)",
			},
			&cli.Float64Flag{
				Name:  "text-boost",
				Usage: "Raise matches whose title or artist appears in the photo's text by this much (0 disables)",
			},
			&cli.BoolFlag{
				Name:  "no-ocr",
				Usage: "Skip text extraction",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-archive",
				Usage: "Don't record the query in the snapshot archive",
			},
		},
	}
}

func queryAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("query needs exactly one image path")
	}
	image, err := readImage(c.App.Reader, c.Args().First())
	if err != nil {
		return err
	}

	engine, _, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []search.Option
	if boost := c.Float64("text-boost"); boost > 0 {
		opts = append(opts, search.WithScorer(search.TextBoostScorer{Boost: float32(boost)}))
	}
	if c.Bool("no-ocr") {
		opts = append(opts, search.WithoutOCR())
	}
	if c.Bool("no-archive") {
		opts = append(opts, search.WithArchive(nil))
	}

	searcher, err := engine.NewSearcher(opts...)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	result, err := searcher.Query(c.Context, image, c.Int("k"))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if c.Bool("json") {
		return printResultJSON(c.App.Writer, result)
	}
	printResult(c.App.Writer, result)
	return nil
}

func readImage(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func printResult(w io.Writer, result *search.Result) {
	switch {
	case result.OCRFailed:
		fmt.Fprintf(w, "Text: unavailable (%s)\n", result.OCRError)
	case result.Text != "":
		fmt.Fprintf(w, "Text: %s\n", result.Text)
	}
	if result.SnapshotID != 0 {
		fmt.Fprintf(w, "Snapshot: %d\n", result.SnapshotID)
	}

	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "No matches")
		return
	}
	fmt.Fprintf(w, "Found %d matches (%s)\n", len(result.Matches), result.ModelVersion)
	for _, m := range result.Matches {
		fmt.Fprintf(w, "%2d. [%0.3f] %s\n", m.Rank, m.Score, describe(m.Entry))
		if m.Entry.SourceURL != "" {
			fmt.Fprintf(w, "    %s\n", m.Entry.SourceURL)
		}
	}
}

func describe(e *core.CatalogEntry) string {
	s := e.Title
	if e.Artist != "" {
		s = e.Artist + " - " + s
	}
	if e.Year > 0 {
		s += fmt.Sprintf(" (%d)", e.Year)
	}
	if e.Style != "" {
		s += " [" + e.Style + "]"
	}
	return s + " " + e.SourceID
}

type matchOutput struct {
	Rank       int     `json:"rank"`
	Score      float32 `json:"score"`
	Similarity float32 `json:"similarity"`
	SourceID   string  `json:"source_id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	Year       int     `json:"year,omitempty"`
	Style      string  `json:"style,omitempty"`
	CoverURL   string  `json:"cover_url,omitempty"`
	SourceURL  string  `json:"source_url,omitempty"`
}

type queryOutput struct {
	Matches      []matchOutput `json:"matches"`
	Text         string        `json:"text,omitempty"`
	OCRFailed    bool          `json:"ocr_failed"`
	OCRError     string        `json:"ocr_error,omitempty"`
	ModelVersion string        `json:"model_version"`
	SnapshotID   core.ID       `json:"snapshot_id,omitempty"`
}

// printResultJSON writes the result without embeddings.
func printResultJSON(w io.Writer, result *search.Result) error {
	out := queryOutput{
		Matches:      make([]matchOutput, 0, len(result.Matches)),
		Text:         result.Text,
		OCRFailed:    result.OCRFailed,
		OCRError:     result.OCRError,
		ModelVersion: result.ModelVersion,
		SnapshotID:   result.SnapshotID,
	}
	for _, m := range result.Matches {
		out.Matches = append(out.Matches, matchOutput{
			Rank:       m.Rank,
			Score:      m.Score,
			Similarity: m.Similarity,
			SourceID:   m.Entry.SourceID,
			Title:      m.Entry.Title,
			Artist:     m.Entry.Artist,
			Year:       m.Entry.Year,
			Style:      m.Entry.Style,
			CoverURL:   m.Entry.CoverURL,
			SourceURL:  m.Entry.SourceURL,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
