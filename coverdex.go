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


// Package coverdex matches photographed album covers against a catalog of
// releases by visual similarity.
//
// An Engine owns the catalog store, the model services and the snapshot
// archive, and builds the ingestion, query and re-embedding pipelines on top
// of them.
package coverdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/ai/remote"
	"github.com/poiesic/coverdex/archive"
	"github.com/poiesic/coverdex/blob"
	"github.com/poiesic/coverdex/config"
	"github.com/poiesic/coverdex/ingestion"
	"github.com/poiesic/coverdex/reembed"
	"github.com/poiesic/coverdex/search"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/storage"
	"github.com/poiesic/coverdex/storage/badger"
)

// ErrConfigRequired is returned by Open when no configuration is given.
var ErrConfigRequired = errors.New("configuration is required")

// Engine is an open catalog together with the services that feed and query it.
type Engine struct {
	config   *config.Config
	repos    *badger.Repositories
	provider ai.Provider
	blobs    blob.Store
	archive  *archive.Archive
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider ai.Provider
	blobs    blob.Store
	inMemory bool
	logger   *slog.Logger
}

// WithProvider uses provider instead of the remote services named in the
// configuration. The engine closes it on Close.
func WithProvider(provider ai.Provider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithBlobStore stores snapshot images in blobs instead of the configured backend.
func WithBlobStore(blobs blob.Store) Option {
	return func(o *engineOptions) {
		o.blobs = blobs
	}
}

// WithInMemory keeps the catalog in memory. Nothing is written to DBPath.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens the catalog at cfg.DBPath and connects the model services and
// blob store. Callers must call Close when done.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	repos, err := badger.OpenRepositories(cfg.DBPath, options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	blobs := options.blobs
	if blobs == nil {
		if blobs, err = openBlobStore(ctx, cfg); err != nil {
			repos.Close()
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		if provider, err = remote.NewProvider(cfg.AIConfig()); err != nil {
			repos.Close()
			return nil, fmt.Errorf("create model provider: %w", err)
		}
	}

	arc, err := archive.New(repos.Snapshots, blobs, archive.WithLogger(options.logger))
	if err != nil {
		provider.Close()
		repos.Close()
		return nil, err
	}

	return &Engine{
		config:   cfg,
		repos:    repos,
		provider: provider,
		blobs:    blobs,
		archive:  arc,
		logger:   options.logger.With("component", "engine"),
	}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobMinIO:
		store, err := blob.NewMinIO(cfg.MinIOConfig())
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init snapshot bucket: %w", err)
		}
		return store, nil
	default:
		store, err := blob.NewLocal(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("open snapshot directory: %w", err)
		}
		return store, nil
	}
}

// Close releases the model provider and closes the catalog.
func (e *Engine) Close() error {
	// Close AI provider first
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing model provider", "err", err)
	}

	if err := e.repos.Close(); err != nil {
		e.logger.Error("error closing catalog", "err", err)
		return err
	}
	return nil
}

// Catalog returns the catalog store.
func (e *Engine) Catalog() storage.CatalogRepository {
	return e.repos.Catalog
}

// Checkpoints returns the per-scope ingestion cursors.
func (e *Engine) Checkpoints() storage.CheckpointRepository {
	return e.repos.Checkpoints
}

// Archive returns the snapshot archive that records queries.
func (e *Engine) Archive() *archive.Archive {
	return e.archive
}

// Provider returns the model provider. It is closed by Close.
func (e *Engine) Provider() ai.Provider {
	return e.provider
}

// NewSearcher creates a query pipeline configured from the engine settings.
// Every successful query is recorded in the archive. opts are applied last.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithLogger(e.logger),
		search.WithDefaultK(e.config.TopK),
		search.WithTimeout(e.config.QueryTimeout),
		search.WithMinScore(e.config.MinScore),
		search.WithMaxImageBytes(e.config.MaxImageBytes),
		search.WithArchive(e.archive),
	}
	if e.config.OCRTimeout > 0 {
		base = append(base, search.WithOCRTimeout(e.config.OCRTimeout))
	}
	return search.NewSearcher(e.repos.Catalog, e.provider, append(base, opts...)...)
}

// NewIngestionPipeline creates an ingestion pipeline reading from src.
// Call Release on the pipeline when done. opts are applied last.
func (e *Engine) NewIngestionPipeline(src source.MetadataSource, fetcher source.ImageFetcher, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(e.logger),
		ingestion.WithRateLimit(e.config.RequestsPerSecond, e.config.Burst),
		ingestion.WithRetryPolicy(e.config.RetryPolicy()),
		ingestion.WithScopeConcurrency(e.config.ScopeConcurrency),
		ingestion.WithPoolSize(e.config.PoolSize),
		ingestion.WithMaxItemsPerScope(e.config.MaxItemsPerScope),
	}
	if e.config.ItemTimeout > 0 {
		base = append(base, ingestion.WithItemTimeout(e.config.ItemTimeout))
	}
	return ingestion.NewPipeline(e.repos.Catalog, e.repos.Checkpoints, src, fetcher,
		e.provider.Embedder(), append(base, opts...)...)
}

// NewReembedder creates a re-embedder that refreshes entries whose vectors
// came from another model version, or every entry when force is set.
func (e *Engine) NewReembedder(fetcher source.ImageFetcher, force bool, progress io.Writer) (*reembed.Reembedder, error) {
	cfg := reembed.DefaultConfig()
	cfg.Policy = e.config.RetryPolicy()
	cfg.Force = force
	return reembed.NewReembedder(e.repos.Catalog, fetcher, e.provider.Embedder(), cfg, progress)
}

// Stats summarizes the catalog.
type Stats struct {
	Entries       int
	Dimension     int
	ModelVersion  string         // Version of the configured embedder
	ModelVersions map[string]int // Entries per stored model version
}

// Stale returns the number of entries embedded by another model version.
func (s *Stats) Stale() int {
	return s.Entries - s.ModelVersions[s.ModelVersion]
}

// Stats reports catalog size, dimension and model versions.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	count, err := e.repos.Catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := e.repos.Catalog.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := reembed.VersionCounts(ctx, e.repos.Catalog)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Entries:       count,
		Dimension:     dim,
		ModelVersion:  e.provider.Embedder().ModelVersion(),
		ModelVersions: versions,
	}, nil
}
