package storage

import (
	"context"

	"github.com/poiesic/coverdex/core"
)

// UpsertOutcome reports what an Upsert did to the catalog.
type UpsertOutcome int

const (
	// Unchanged means the stored entry already held identical data.
	Unchanged UpsertOutcome = iota
	// Created means a new entry was inserted.
	Created
	// Updated means an existing entry was replaced.
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// QueryOptions controls a nearest-neighbor query.
type QueryOptions struct {
	// ModelVersion restricts ranking to entries embedded by this model.
	// Empty means all entries are candidates.
	ModelVersion string
}

// QueryOption configures a nearest-neighbor query.
type QueryOption func(*QueryOptions)

// WithModelVersion restricts a query to entries embedded by model version v.
// Vectors from different models are not comparable.
func WithModelVersion(v string) QueryOption {
	return func(o *QueryOptions) {
		o.ModelVersion = v
	}
}

// ApplyQueryOptions folds opts into a QueryOptions value.
func ApplyQueryOptions(opts ...QueryOption) QueryOptions {
	var o QueryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CatalogRepository stores catalog entries and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type CatalogRepository interface {
	// Upsert inserts entry or replaces the entry with the same SourceID.
	// Metadata and embedding commit together or not at all. On return entry
	// carries its store-assigned ID and timestamps.
	// Writing identical data is a no-op and reports Unchanged.
	// The first entry written fixes the catalog dimension; later entries of a
	// different dimension fail with core.ErrDimensionMismatch.
	Upsert(ctx context.Context, entry *core.CatalogEntry) (UpsertOutcome, error)

	// NearestNeighbors returns at most k matches for vector ordered by
	// non-increasing cosine similarity, ties broken by ascending SourceID.
	// vector must be L2-normalized and of the catalog dimension, otherwise
	// core.ErrDimensionMismatch is returned. An empty catalog returns an
	// empty slice.
	NearestNeighbors(ctx context.Context, vector []float32, k int, opts ...QueryOption) ([]*core.Match, error)

	// Exists reports whether an entry with sourceID is stored.
	Exists(ctx context.Context, sourceID string) (bool, error)

	// Get retrieves an entry by SourceID.
	// Returns ErrNotFound if the entry doesn't exist.
	Get(ctx context.Context, sourceID string) (*core.CatalogEntry, error)

	// Delete removes the entry with sourceID.
	// Returns ErrNotFound if the entry doesn't exist.
	Delete(ctx context.Context, sourceID string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Scan returns up to limit entries with SourceID greater than
	// afterSourceID, in ascending SourceID order. Pass "" to start at the
	// beginning.
	Scan(ctx context.Context, afterSourceID string, limit int) ([]*core.CatalogEntry, error)

	// Dimension returns the catalog dimension, or 0 while the catalog is empty
	// and no dimension has been fixed.
	Dimension(ctx context.Context) (int, error)

	// Close releases repository resources.
	Close() error
}

// CheckpointRepository persists ingestion cursors, one per source scope.
type CheckpointRepository interface {
	// Save persists checkpoint, stamping UpdatedAt.
	Save(ctx context.Context, checkpoint *core.Checkpoint) error

	// Load retrieves the checkpoint for scope.
	// Returns nil, nil if no checkpoint exists.
	Load(ctx context.Context, scope string) (*core.Checkpoint, error)

	// Reset removes the checkpoint for scope.
	Reset(ctx context.Context, scope string) error
}

// SnapshotRepository is the append-only log of query snapshots.
type SnapshotRepository interface {
	// Append assigns record a new ID and stores it. IDs increase
	// monotonically, so higher IDs are newer.
	Append(ctx context.Context, record *core.SnapshotRecord) error

	// Get retrieves a snapshot by ID.
	// Returns ErrNotFound if the snapshot doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.SnapshotRecord, error)

	// ListBefore returns up to limit snapshots with ID lower than beforeID,
	// newest first. A beforeID of 0 starts from the newest snapshot.
	ListBefore(ctx context.Context, beforeID core.ID, limit int) ([]*core.SnapshotRecord, error)

	// Close releases repository resources.
	Close() error
}
