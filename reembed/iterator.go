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

	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
)

const (
	// DefaultBatchSize is the default number of entries to fetch in each batch
	DefaultBatchSize = 100
)

// EntryIterator iterates over all catalog entries in batches, in ascending
// SourceID order.
type EntryIterator struct {
	catalog   storage.CatalogRepository
	batchSize int
}

// NewEntryIterator creates a new entry iterator.
// batchSize: number of entries to fetch in each batch (defaults when <= 0)
func NewEntryIterator(catalog storage.CatalogRepository, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &EntryIterator{
		catalog:   catalog,
		batchSize: batchSize,
	}
}

// ForEach iterates over all entries, calling fn for each batch.
// Iteration stops on first error from fn or when all entries are processed.
// Each batch is read in its own transaction, so fn may write to the catalog.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]*core.CatalogEntry) error) error {
	after := ""
	for {
		// Check context before each batch
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.catalog.Scan(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
		after = batch[len(batch)-1].SourceID
	}
}

// VersionCounts returns the number of entries per embedding model version.
func VersionCounts(ctx context.Context, catalog storage.CatalogRepository) (map[string]int, error) {
	counts := make(map[string]int)
	err := NewEntryIterator(catalog, DefaultBatchSize).ForEach(ctx, func(batch []*core.CatalogEntry) error {
		for _, e := range batch {
			counts[e.EmbeddingModelVersion]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
