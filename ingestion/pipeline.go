package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond throttles external calls when no rate is configured.
	DefaultRequestsPerSecond = 1.0

	// DefaultBurst is the limiter burst when no burst is configured.
	DefaultBurst = 1

	// DefaultItemTimeout bounds the processing of a single item.
	DefaultItemTimeout = 2 * time.Minute

	// DefaultScopeConcurrency is how many scopes are ingested at once.
	DefaultScopeConcurrency = 2
)

// Pipeline orchestrates ingestion from a metadata source into the catalog.
type Pipeline struct {
	catalog          storage.CatalogRepository
	checkpoints      storage.CheckpointRepository
	source           source.MetadataSource
	pool             *ants.Pool
	items            *itemProcessor
	limiter          *rate.Limiter
	policy           retry.Policy
	itemTimeout      time.Duration
	scopeConcurrency int
	maxItemsPerScope int
	rescan           bool
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent item processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRateLimit throttles external calls to rps requests per second with the
// given burst. An rps of zero or less disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Pipeline) error {
		if burst < 1 {
			burst = 1
		}
		limit := rate.Limit(rps)
		if rps <= 0 {
			limit = rate.Inf
		}
		p.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithRetryPolicy sets the retry policy for external calls.
// Default is retry.DefaultPolicy().
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		p.policy = policy
		return nil
	}
}

// WithItemTimeout bounds the time spent on one item, retries included.
// Items that exceed it are counted as failed.
func WithItemTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("item timeout must be positive, got %s", d)
		}
		p.itemTimeout = d
		return nil
	}
}

// WithScopeConcurrency sets how many scopes are ingested at once.
func WithScopeConcurrency(n int) Option {
	return func(p *Pipeline) error {
		p.scopeConcurrency = max(n, 1)
		return nil
	}
}

// WithMaxItemsPerScope caps the number of records consumed per scope.
// Zero means no cap.
func WithMaxItemsPerScope(n int) Option {
	return func(p *Pipeline) error {
		p.maxItemsPerScope = max(n, 0)
		return nil
	}
}

// WithRescan makes the pipeline start every scope from the first page,
// ignoring saved checkpoints. Unchanged items are still skipped.
func WithRescan(rescan bool) Option {
	return func(p *Pipeline) error {
		p.rescan = rescan
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
// Call Release when done to free the worker pool.
func NewPipeline(
	catalog storage.CatalogRepository,
	checkpoints storage.CheckpointRepository,
	src source.MetadataSource,
	fetcher source.ImageFetcher,
	embedder ai.ImageEmbedder,
	opts ...Option,
) (*Pipeline, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if src == nil {
		return nil, ErrSourceRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		catalog:          catalog,
		checkpoints:      checkpoints,
		source:           src,
		pool:             pool,
		limiter:          rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultBurst),
		policy:           retry.DefaultPolicy(),
		itemTimeout:      DefaultItemTimeout,
		scopeConcurrency: DefaultScopeConcurrency,
		logger:           slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	p.items = &itemProcessor{
		catalog:  catalog,
		fetcher:  fetcher,
		embedder: embedder,
		limiter:  p.limiter,
		policy:   p.policy,
	}

	return p, nil
}

// Run ingests every scope and returns the run report.
//
// Item failures are counted in the report and do not produce an error. Run
// returns an error, together with the partial report, only when the store
// becomes unavailable or ctx ends.
func (p *Pipeline) Run(ctx context.Context, scopes ...string) (*Report, error) {
	if len(scopes) == 0 {
		return nil, ErrNoScopes
	}

	t := newTally()
	logger := p.logger.With("run", t.report.RunID.String())
	logger.Info("ingestion started", "scopes", len(scopes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.scopeConcurrency)
	for _, scope := range scopes {
		t.scope(scope)
		g.Go(func() error {
			return p.runScope(gctx, scope, t, logger.With("scope", scope))
		})
	}
	err := g.Wait()

	report := t.snapshot()
	if err != nil {
		logger.Error("ingestion halted", "err", err, "report", report.String())
		return report, err
	}
	logger.Info("ingestion finished",
		"ingested", report.Ingested,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", report.Elapsed)
	return report, nil
}

// runScope walks one scope from its checkpoint. It returns only errors that
// must stop the whole run.
func (p *Pipeline) runScope(ctx context.Context, scope string, t *tally, logger *slog.Logger) error {
	cp, err := p.checkpoints.Load(ctx, scope)
	if err != nil {
		return fmt.Errorf("load checkpoint %q: %w", scope, err)
	}
	if cp == nil || p.rescan {
		cp = &core.Checkpoint{Scope: scope, NextPage: 1}
	}
	if cp.Completed {
		logger.Info("scope already complete, skipping")
		t.update(scope, func(sr *ScopeReport) {
			sr.StartPage = cp.NextPage
			sr.Completed = true
		})
		return nil
	}
	if cp.NextPage > 1 {
		logger.Info("resuming scope", "page", cp.NextPage, "items_seen", cp.ItemsSeen)
	}
	t.update(scope, func(sr *ScopeReport) { sr.StartPage = cp.NextPage })

	for {
		page, err := p.fetchPage(ctx, scope, cp.NextPage)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("error fetching page, stopping scope", "page", cp.NextPage, "err", err)
			t.update(scope, func(sr *ScopeReport) { sr.Error = err.Error() })
			return nil
		}

		records := page.Records
		capped := false
		if p.maxItemsPerScope > 0 {
			remaining := p.maxItemsPerScope - cp.ItemsSeen
			if len(records) >= remaining {
				records = records[:max(remaining, 0)]
				capped = true
			}
		}

		if err := p.processPage(ctx, scope, records, t, logger); err != nil {
			return err
		}

		cp.NextPage++
		cp.ItemsSeen += len(records)
		cp.Completed = !page.HasMore || capped
		if err := p.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint %q: %w", scope, err)
		}
		t.update(scope, func(sr *ScopeReport) {
			sr.Pages++
			sr.Completed = cp.Completed
		})
		logger.Debug("page committed", "page", page.Number, "records", len(records))

		if cp.Completed {
			logger.Info("scope complete", "items_seen", cp.ItemsSeen)
			return nil
		}
	}
}

func (p *Pipeline) fetchPage(ctx context.Context, scope string, number int) (*source.Page, error) {
	var page *source.Page
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		page, err = p.source.FetchPage(ctx, scope, number)
		return err
	})
	return page, err
}

// processPage runs every record of a page on the worker pool and waits for
// all of them. It returns an error only if the run must stop, in which case
// the page must not be checkpointed.
func (p *Pipeline) processPage(ctx context.Context, scope string, records []source.Record, t *tally, logger *slog.Logger) error {
	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)

	for _, rec := range records {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := p.processItem(ctx, scope, rec, t, logger); err != nil {
				fatalMu.Lock()
				fatalErr = errors.Join(fatalErr, err)
				fatalMu.Unlock()
			}
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			// Items already on the pool still write to t.
			wg.Wait()
			return fmt.Errorf("submit item %s: %w", rec.SourceID, err)
		}
	}
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	return ctx.Err()
}

// processItem handles one record under the per-item deadline. Item failures
// are recorded in the tally; only fatal conditions are returned.
func (p *Pipeline) processItem(ctx context.Context, scope string, rec source.Record, t *tally, logger *slog.Logger) error {
	itemCtx, cancel := context.WithTimeout(ctx, p.itemTimeout)
	defer cancel()

	result, err := p.items.process(itemCtx, rec, scope)
	if err != nil && ctx.Err() != nil {
		// The run is stopping; the item will be retried on resume
		return ctx.Err()
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = core.TimeoutError("ingest item", err)
	}
	if core.IsStoreUnavailable(err) {
		return err
	}

	switch result {
	case outcomeFailed:
		logger.Warn("item failed", "source_id", rec.SourceID, "err", err)
	case outcomeSkipped:
		logger.Debug("item skipped", "source_id", rec.SourceID, "no_cover", rec.CoverURL == "")
	default:
		logger.Debug("item stored", "source_id", rec.SourceID, "outcome", result.String())
	}
	t.record(scope, rec.SourceID, result, err)
	return nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
