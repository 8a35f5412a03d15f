// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of entries to read in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// Policy controls retries of cover fetches and embedding calls
	Policy retry.Policy

	// Force re-embeds every entry, not only those from other model versions
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Policy:         retry.DefaultPolicy(),
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	Total      int // Entries in the catalog
	Stale      int // Entries selected for re-embedding
	Reembedded int
	Failed     int
	Failures   map[string]string
	Elapsed    time.Duration
}

// Reembedder orchestrates the re-embedding of stale catalog entries.
type Reembedder struct {
	catalog   storage.CatalogRepository
	embedder  ai.ImageEmbedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *EntryIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(catalog storage.CatalogRepository, fetcher source.ImageFetcher, embedder ai.ImageEmbedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		catalog:   catalog,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(catalog, fetcher, embedder, config.Policy),
		iterator:  NewEntryIterator(catalog, config.BatchSize),
	}, nil
}

// stale reports whether entry needs a new embedding.
func (r *Reembedder) stale(entry *core.CatalogEntry) bool {
	return r.config.Force || entry.EmbeddingModelVersion != r.embedder.ModelVersion()
}

// Run re-embeds every stale entry with the configured embedder.
// Progress is reported to the configured writer.
//
// The catalog dimension is fixed; an embedder of another dimension is
// rejected with core.ErrDimensionMismatch before any entry is touched.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	dim, err := r.catalog.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && dim != r.embedder.Dimension() {
		return nil, fmt.Errorf("%w: catalog holds %d-dimensional vectors, embedder produces %d",
			core.ErrDimensionMismatch, dim, r.embedder.Dimension())
	}

	// First, count stale entries
	summary := &Summary{Failures: make(map[string]string)}
	err = r.iterator.ForEach(ctx, func(entries []*core.CatalogEntry) error {
		summary.Total += len(entries)
		for _, e := range entries {
			if r.stale(e) {
				summary.Stale++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	if summary.Stale == 0 {
		fmt.Fprintf(r.progress, "No stale entries found (%d entries at %s)\n", summary.Total, r.embedder.ModelVersion())
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d/%d entries with %s (batch size: %d)\n",
		summary.Stale, summary.Total, r.embedder.ModelVersion(), r.iterator.batchSize)

	// Initialize progress tracker
	tracker := NewProgressTracker(r.progress, summary.Stale, r.config.ReportInterval)
	tracker.Start()

	// Process all stale entries in batches
	err = r.iterator.ForEach(ctx, func(entries []*core.CatalogEntry) error {
		batch := make([]*core.CatalogEntry, 0, len(entries))
		for _, e := range entries {
			if r.stale(e) {
				batch = append(batch, e)
			}
		}
		if len(batch) == 0 {
			return nil
		}

		result, err := r.processor.Process(ctx, batch)
		if result != nil {
			summary.Reembedded += result.Reembedded
			summary.Failed += result.Failed
			maps.Copy(summary.Failures, result.Failures)
			tracker.Record(len(batch), result.Failed)
		}
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	})

	summary.Elapsed = tracker.Snapshot().Elapsed
	if err != nil {
		return summary, err
	}

	// Finish progress tracking
	tracker.Finish()

	fmt.Fprintf(r.progress, "Reembedding complete. %d reembedded, %d failed in %v (%.1f entries/sec)\n",
		summary.Reembedded, summary.Failed, summary.Elapsed.Round(time.Second),
		float64(summary.Stale)/summary.Elapsed.Seconds())

	return summary, nil
}
