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


package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/storage"
	"golang.org/x/time/rate"
)

// itemProcessor turns one source record into a committed catalog entry.
type itemProcessor struct {
	catalog  storage.CatalogRepository
	fetcher  source.ImageFetcher
	embedder ai.ImageEmbedder
	limiter  *rate.Limiter
	policy   retry.Policy
}

// process handles rec and reports its outcome. The returned error is nil for
// skipped items and explains the failure otherwise.
func (ip *itemProcessor) process(ctx context.Context, rec source.Record, scope string) (outcome, error) {
	if rec.SourceID == "" {
		return outcomeFailed, core.ErrEmptySourceID
	}
	if rec.CoverURL == "" {
		return outcomeSkipped, nil
	}

	entry := toEntry(rec, scope)
	version := ip.embedder.ModelVersion()

	existing, err := ip.catalog.Get(ctx, rec.SourceID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return outcomeFailed, err
	}

	// Current embedding: only metadata may need refreshing
	if existing != nil && existing.EmbeddingModelVersion == version {
		if existing.SameMetadata(entry) {
			return outcomeSkipped, nil
		}
		entry.Embedding = existing.Embedding
		entry.EmbeddingModelVersion = existing.EmbeddingModelVersion
		entry.ExtractedText = existing.ExtractedText
		return ip.upsert(ctx, entry)
	}

	image, err := ip.fetch(ctx, rec.CoverURL)
	if err != nil {
		return outcomeFailed, err
	}

	vector, err := ip.embed(ctx, image)
	if err != nil {
		return outcomeFailed, err
	}

	entry.Embedding = core.NormalizeVector(vector)
	entry.EmbeddingModelVersion = version
	return ip.upsert(ctx, entry)
}

func (ip *itemProcessor) fetch(ctx context.Context, url string) ([]byte, error) {
	var image []byte
	err := retry.Do(ctx, ip.policy, func(ctx context.Context) error {
		if err := ip.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		image, err = ip.fetcher.Fetch(ctx, url)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	return image, nil
}

func (ip *itemProcessor) embed(ctx context.Context, image []byte) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, ip.policy, func(ctx context.Context) error {
		if err := ip.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		vector, err = ip.embedder.EmbedImage(ctx, image)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed cover: %w", err)
	}
	return vector, nil
}

func (ip *itemProcessor) upsert(ctx context.Context, entry *core.CatalogEntry) (outcome, error) {
	result, err := ip.catalog.Upsert(ctx, entry)
	if err != nil {
		return outcomeFailed, err
	}
	switch result {
	case storage.Created:
		return outcomeIngested, nil
	case storage.Updated:
		return outcomeUpdated, nil
	default:
		return outcomeSkipped, nil
	}
}

// toEntry maps a source record onto a catalog entry without an embedding.
func toEntry(rec source.Record, scope string) *core.CatalogEntry {
	style := rec.Style
	if style == "" {
		style = scope
	}
	return &core.CatalogEntry{
		SourceID:  rec.SourceID,
		Title:     rec.Title,
		Artist:    rec.Artist,
		Year:      rec.Year,
		Style:     style,
		CoverURL:  rec.CoverURL,
		SourceURL: rec.SourceURL,
	}
}
