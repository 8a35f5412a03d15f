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


// Package archive keeps a browsable log of past queries.
//
// Every recorded snapshot stores the query image in a blob store under a
// content-derived key and appends an immutable record holding the matches
// and any OCR text. Snapshots are never deleted by the archive; retention is
// left to operators. Records are listed newest first.
package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/poiesic/coverdex/blob"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
)

const (
	// DefaultRecentLimit is the gallery size used when none is requested.
	DefaultRecentLimit = 20

	defaultBatchSize = 50

	imagePrefix = "snapshots/"
)

var (
	// ErrSnapshotRepositoryRequired is returned when a snapshot repository is not provided.
	ErrSnapshotRepositoryRequired = errors.New("snapshot repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")
)

// Archive records query snapshots.
type Archive struct {
	snapshots storage.SnapshotRepository
	blobs     blob.Store
	batchSize int
	logger    *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithBatchSize sets how many records List fetches per round trip.
func WithBatchSize(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an archive over snapshot records and image blobs.
func New(snapshots storage.SnapshotRepository, blobs blob.Store, opts ...Option) (*Archive, error) {
	if snapshots == nil {
		return nil, ErrSnapshotRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	a := &Archive{
		snapshots: snapshots,
		blobs:     blobs,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "archive")
	return a, nil
}

// Record stores image and appends a snapshot of matches. Identical images
// share one blob.
func (a *Archive) Record(ctx context.Context, image []byte, matches []*core.Match, text string, ocrFailed bool) (*core.SnapshotRecord, error) {
	info, err := core.ValidateImage(image, 0)
	if err != nil {
		return nil, err
	}

	key := imagePrefix + core.ContentKey(image) + info.Extension()
	if err := a.blobs.Put(ctx, key, image, info.ContentType()); err != nil {
		return nil, fmt.Errorf("store snapshot image: %w", err)
	}

	record := &core.SnapshotRecord{
		ImageRef:      key,
		ContentType:   info.ContentType(),
		Matches:       toSnapshotMatches(matches),
		ExtractedText: text,
		OCRFailed:     ocrFailed,
	}
	if err := a.snapshots.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("append snapshot: %w", err)
	}

	a.logger.Debug("snapshot recorded", "id", record.ID, "image", key, "matches", len(matches))
	return record, nil
}

func toSnapshotMatches(matches []*core.Match) []core.SnapshotMatch {
	out := make([]core.SnapshotMatch, 0, len(matches))
	for _, m := range matches {
		sm := core.SnapshotMatch{Score: m.Score, Rank: m.Rank}
		if m.Entry != nil {
			sm.EntryID = m.Entry.ID
			sm.SourceID = m.Entry.SourceID
			sm.Title = m.Entry.Title
			sm.Artist = m.Entry.Artist
			sm.Year = m.Entry.Year
		}
		out = append(out, sm)
	}
	return out
}

// ListOptions controls List.
type ListOptions struct {
	// Before starts the listing below this snapshot ID. Zero starts at the
	// newest snapshot. Pass the last ID seen to resume a listing.
	Before core.ID

	// Limit caps the number of records yielded. Zero means no cap.
	Limit int
}

// List yields snapshots newest first, fetching them lazily in batches.
// Iteration stops at the first error, which is yielded with a nil record.
// The sequence can be ranged over more than once.
func (a *Archive) List(ctx context.Context, opts ListOptions) iter.Seq2[*core.SnapshotRecord, error] {
	return func(yield func(*core.SnapshotRecord, error) bool) {
		before := opts.Before
		yielded := 0
		for {
			batch := a.batchSize
			if opts.Limit > 0 {
				batch = min(batch, opts.Limit-yielded)
			}
			records, err := a.snapshots.ListBefore(ctx, before, batch)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, r := range records {
				if !yield(r, nil) {
					return
				}
				yielded++
				before = r.ID
			}
			if len(records) < batch || (opts.Limit > 0 && yielded >= opts.Limit) {
				return
			}
		}
	}
}

// Recent returns the newest limit snapshots. limit <= 0 uses DefaultRecentLimit.
func (a *Archive) Recent(ctx context.Context, limit int) ([]*core.SnapshotRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	records := make([]*core.SnapshotRecord, 0, limit)
	for r, err := range a.List(ctx, ListOptions{Limit: limit}) {
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Get returns the snapshot with id.
func (a *Archive) Get(ctx context.Context, id core.ID) (*core.SnapshotRecord, error) {
	return a.snapshots.Get(ctx, id)
}

// Image returns the captured image of record.
func (a *Archive) Image(ctx context.Context, record *core.SnapshotRecord) ([]byte, error) {
	data, err := a.blobs.Get(ctx, record.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("load snapshot image %s: %w", record.ImageRef, err)
	}
	return data, nil
}
