package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
)

// ctxCheckInterval is how many entries a scan visits between context checks.
const ctxCheckInterval = 1024

// CatalogRepository implements storage.CatalogRepository for BadgerDB.
//
// NearestNeighbors is an exact brute-force scan over every stored embedding.
type CatalogRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
	now     func() time.Time
}

var _ storage.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(backend *Backend) (*CatalogRepository, error) {
	idSeq, err := backend.GetSequence(catalogIDSeq)
	if err != nil {
		return nil, backend.wrapErr("open catalog", err)
	}

	return &CatalogRepository{
		backend: backend,
		idSeq:   idSeq,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Close releases the ID sequence.
func (r *CatalogRepository) Close() error {
	return r.idSeq.Release()
}

// Upsert inserts or replaces the entry keyed by entry.SourceID.
func (r *CatalogRepository) Upsert(ctx context.Context, entry *core.CatalogEntry) (storage.UpsertOutcome, error) {
	if err := core.ValidateCatalogEntry(entry); err != nil {
		return storage.Unchanged, err
	}

	var (
		outcome storage.UpsertOutcome
		stored  core.CatalogEntry
	)
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}
		switch {
		case dim == 0:
			if err := writeDimension(tx, len(entry.Embedding)); err != nil {
				return err
			}
		case dim != len(entry.Embedding):
			return fmt.Errorf("%w: entry %s has %d dimensions, catalog has %d",
				core.ErrDimensionMismatch, entry.SourceID, len(entry.Embedding), dim)
		}

		key := makeCatalogEntryKey(entry.SourceID)
		existing, err := readCatalogEntry(tx, key)
		if err != nil {
			return err
		}

		stored = *entry
		now := r.now()
		switch {
		case existing != nil && existing.SameContent(entry):
			stored = *existing
			outcome = storage.Unchanged
			return nil
		case existing != nil:
			stored.ID = existing.ID
			stored.CreatedAt = existing.CreatedAt
			stored.UpdatedAt = now
			outcome = storage.Updated
		default:
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			stored.ID = id
			stored.CreatedAt = now
			stored.UpdatedAt = now
			outcome = storage.Created
		}
		return tx.Set(key, storage.MarshalCatalogEntry(&stored))
	})
	if err != nil {
		return storage.Unchanged, r.backend.wrapErr("upsert", err)
	}

	*entry = stored
	return outcome, nil
}

// NearestNeighbors ranks every stored entry against vector and returns the top k.
func (r *CatalogRepository) NearestNeighbors(ctx context.Context, vector []float32, k int, opts ...storage.QueryOption) ([]*core.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %w: k must be positive, got %d", core.ErrValidation, storage.ErrInvalidQuery, k)
	}
	qopts := storage.ApplyQueryOptions(opts...)

	var matches []*core.Match
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}
		// Nothing has ever been stored, so there is no dimension to check against
		if dim == 0 {
			return nil
		}
		if len(vector) != dim {
			return fmt.Errorf("%w: query has %d dimensions, catalog has %d", core.ErrDimensionMismatch, len(vector), dim)
		}
		if !core.IsNormalized(vector) {
			return fmt.Errorf("%w: query vector is not L2-normalized", core.ErrDimensionMismatch)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(catalogEntryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		visited := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			visited++
			if visited%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var entry *core.CatalogEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalCatalogEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if qopts.ModelVersion != "" && entry.EmbeddingModelVersion != qopts.ModelVersion {
				continue
			}
			if len(entry.Embedding) != dim {
				continue
			}

			similarity := core.DotProduct(vector, entry.Embedding)
			matches = append(matches, &core.Match{
				Entry:      entry,
				Similarity: similarity,
				Score:      core.ClampScore(similarity),
			})
		}
		return nil
	})
	if err != nil {
		return nil, r.backend.wrapErr("nearest neighbors", err)
	}

	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	for i, m := range matches {
		m.Rank = i + 1
	}
	if matches == nil {
		matches = []*core.Match{}
	}
	return matches, nil
}

// SortMatches orders matches by non-increasing similarity, breaking ties by
// ascending SourceID.
func SortMatches(matches []*core.Match) {
	slices.SortStableFunc(matches, func(a, b *core.Match) int {
		if a.Similarity > b.Similarity {
			return -1
		}
		if a.Similarity < b.Similarity {
			return 1
		}
		return strings.Compare(a.Entry.SourceID, b.Entry.SourceID)
	})
}

// Exists reports whether an entry with sourceID is stored.
func (r *CatalogRepository) Exists(ctx context.Context, sourceID string) (bool, error) {
	var found bool
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		_, err := tx.Get(makeCatalogEntryKey(sourceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, r.backend.wrapErr("exists", err)
}

// Get retrieves an entry by SourceID.
func (r *CatalogRepository) Get(ctx context.Context, sourceID string) (*core.CatalogEntry, error) {
	var entry *core.CatalogEntry
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		entry, err = readCatalogEntry(tx, makeCatalogEntryKey(sourceID))
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, r.backend.wrapErr("get", err)
	}
	return entry, nil
}

// Delete removes the entry with sourceID.
func (r *CatalogRepository) Delete(ctx context.Context, sourceID string) error {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		key := makeCatalogEntryKey(sourceID)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return tx.Delete(key)
	})
	return r.backend.wrapErr("delete", err)
}

// Count returns the number of stored entries.
func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(catalogEntryPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, r.backend.wrapErr("count", err)
	}
	return count, nil
}

// Scan returns up to limit entries after afterSourceID in SourceID order.
func (r *CatalogRepository) Scan(ctx context.Context, afterSourceID string, limit int) ([]*core.CatalogEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %w: limit must be positive, got %d", core.ErrValidation, storage.ErrInvalidQuery, limit)
	}

	var entries []*core.CatalogEntry
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(catalogEntryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeCatalogEntryKey(afterSourceID)); iter.Valid() && len(entries) < limit; iter.Next() {
			item := iter.Item()
			if afterSourceID != "" && sourceIDFromKey(item.Key()) == afterSourceID {
				continue
			}
			err := item.Value(func(val []byte) error {
				entry, err := storage.UnmarshalCatalogEntry(val)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.backend.wrapErr("scan", err)
	}
	return entries, nil
}

// Dimension returns the catalog dimension, or 0 if none has been fixed yet.
func (r *CatalogRepository) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		dim, err = readDimension(tx)
		return err
	})
	return dim, r.backend.wrapErr("dimension", err)
}

// readCatalogEntry reads the entry at key. Returns nil, nil if absent.
func readCatalogEntry(tx *badger.Txn, key []byte) (*core.CatalogEntry, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.CatalogEntry
	err = item.Value(func(val []byte) error {
		var err error
		entry, err = storage.UnmarshalCatalogEntry(val)
		return err
	})
	return entry, err
}

func readDimension(tx *badger.Txn) (int, error) {
	item, err := tx.Get([]byte(catalogDimKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var dim uint64
	err = item.Value(func(val []byte) error {
		var err error
		dim, _, err = varint.Uint64.Unmarshal(val)
		return err
	})
	return int(dim), err
}

func writeDimension(tx *badger.Txn, dim int) error {
	buf := make([]byte, varint.Uint64.Size(uint64(dim)))
	varint.Uint64.Marshal(uint64(dim), buf)
	return tx.Set([]byte(catalogDimKey), buf)
}
