package reembed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/storage"
)

// BatchResult counts the outcome of one batch.
type BatchResult struct {
	Reembedded int
	Failed     int
	// Failures maps the source ID of each failed entry to the reason.
	Failures map[string]string
}

// BatchProcessor re-embeds batches of catalog entries.
type BatchProcessor struct {
	catalog  storage.CatalogRepository
	fetcher  source.ImageFetcher
	embedder ai.ImageEmbedder
	policy   retry.Policy
	logger   *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// policy governs retries of the cover fetch and the embedding call.
func NewBatchProcessor(catalog storage.CatalogRepository, fetcher source.ImageFetcher, embedder ai.ImageEmbedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		catalog:  catalog,
		fetcher:  fetcher,
		embedder: embedder,
		policy:   policy,
		logger:   slog.Default().With("component", "reembed"),
	}
}

// Process re-embeds every entry in entries with the current model.
// Vectors are normalized after embedding so they stay comparable by dot
// product. A failed entry is counted and skipped; only an unavailable store
// or a canceled context aborts the batch.
func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.CatalogEntry) (*BatchResult, error) {
	result := &BatchResult{Failures: make(map[string]string)}

	for _, entry := range entries {
		if err := bp.reembed(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if core.IsStoreUnavailable(err) {
				return result, err
			}
			bp.logger.Warn("error reembedding entry", "source_id", entry.SourceID, "err", err)
			result.Failed++
			result.Failures[entry.SourceID] = err.Error()
			continue
		}
		result.Reembedded++
	}

	return result, nil
}

func (bp *BatchProcessor) reembed(ctx context.Context, entry *core.CatalogEntry) error {
	if entry.CoverURL == "" {
		return fmt.Errorf("entry has no cover URL")
	}

	// Fetch cover with retry
	var image []byte
	err := retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		image, err = bp.fetcher.Fetch(ctx, entry.CoverURL)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch cover: %w", err)
	}

	// Generate embedding with retry
	var vector []float32
	err = retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		vector, err = bp.embedder.EmbedImage(ctx, image)
		return err
	})
	if err != nil {
		return fmt.Errorf("embed cover: %w", err)
	}

	updated := *entry
	updated.Embedding = core.NormalizeVector(vector)
	updated.EmbeddingModelVersion = bp.embedder.ModelVersion()
	if _, err := bp.catalog.Upsert(ctx, &updated); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}
