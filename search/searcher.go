package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultK is the number of matches returned when the caller asks for none.
	DefaultK = 5

	// DefaultOCRTimeout bounds the best-effort text extraction.
	DefaultOCRTimeout = 10 * time.Second
)

// Archiver records successful queries.
type Archiver interface {
	Record(ctx context.Context, image []byte, matches []*core.Match, text string, ocrFailed bool) (*core.SnapshotRecord, error)
}

// Result is the outcome of a successful query.
type Result struct {
	// Matches are ordered by rank, at most k of them.
	Matches []*core.Match

	// Text is the OCR text found on the query image, comma-joined.
	Text  string
	Lines []ai.TextLine

	// OCRFailed is set when text extraction was attempted and failed.
	// The matches are unaffected.
	OCRFailed bool
	OCRError  string

	// ModelVersion tags the embedding used for matching.
	ModelVersion string

	// SnapshotID is the archived snapshot, or 0 if the query wasn't archived.
	SnapshotID core.ID
}

// Searcher matches query images against the catalog.
type Searcher struct {
	catalog       storage.CatalogRepository
	embedder      ai.ImageEmbedder
	extractor     ai.TextExtractor
	archive       Archiver
	scorer        Scorer
	defaultK      int
	maxImageBytes int
	timeout       time.Duration
	ocrTimeout    time.Duration
	minScore      float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithDefaultK sets the number of matches returned when a query passes k <= 0.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("default k must be positive, got %d", k)
		}
		s.defaultK = k
		return nil
	}
}

// WithTimeout bounds a whole query. Zero means no deadline beyond the caller's.
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		s.timeout = max(d, 0)
		return nil
	}
}

// WithOCRTimeout bounds text extraction. Exceeding it marks OCR as failed.
func WithOCRTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d <= 0 {
			return fmt.Errorf("OCR timeout must be positive, got %s", d)
		}
		s.ocrTimeout = d
		return nil
	}
}

// WithMinScore drops matches scoring below min. Default 0 keeps everything.
func WithMinScore(min float32) Option {
	return func(s *Searcher) error {
		if min < 0 || min > 1 {
			return fmt.Errorf("min score must be in [0, 1], got %v", min)
		}
		s.minScore = min
		return nil
	}
}

// WithScorer replaces the default VisualScorer.
func WithScorer(scorer Scorer) Option {
	return func(s *Searcher) error {
		if scorer == nil {
			scorer = VisualScorer{}
		}
		s.scorer = scorer
		return nil
	}
}

// WithArchive records every successful query in archive.
func WithArchive(archive Archiver) Option {
	return func(s *Searcher) error {
		s.archive = archive
		return nil
	}
}

// WithMaxImageBytes bounds the size of query images.
// Default is core.DefaultMaxImageBytes.
func WithMaxImageBytes(n int) Option {
	return func(s *Searcher) error {
		s.maxImageBytes = n
		return nil
	}
}

// WithoutOCR disables text extraction even if the provider offers it.
func WithoutOCR() Option {
	return func(s *Searcher) error {
		s.extractor = nil
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(catalog storage.CatalogRepository, provider ai.Provider, opts ...Option) (*Searcher, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if provider.Embedder() == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		catalog:       catalog,
		embedder:      provider.Embedder(),
		extractor:     provider.TextExtractor(),
		scorer:        VisualScorer{},
		defaultK:      DefaultK,
		maxImageBytes: core.DefaultMaxImageBytes,
		ocrTimeout:    DefaultOCRTimeout,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Query returns up to k catalog matches for image. k <= 0 uses the default.
func (s *Searcher) Query(ctx context.Context, image []byte, k int) (*Result, error) {
	return s.QueryWithMonitor(ctx, image, k, nil)
}

// QueryWithMonitor is Query with hooks observing each stage.
//
// Errors are typed: core.ErrValidation for a bad image, a *core.ProviderError
// when embedding fails, core.ErrTimeout when the query deadline passes, and
// store errors from the catalog. No partial result accompanies an error.
func (s *Searcher) QueryWithMonitor(ctx context.Context, image []byte, k int, monitor QueryMonitor) (*Result, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if k <= 0 {
		k = s.defaultK
	}

	info, err := core.ValidateImage(image, s.maxImageBytes)
	if err != nil {
		return nil, err
	}
	monitor.Start(info, k)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// 1. Embedding and OCR run concurrently; only the embedding is required
	vector, text, ocrErr, err := s.analyze(ctx, image, monitor)
	if err != nil {
		return nil, s.queryError(ctx, "embed query image", err)
	}

	normalized := core.NormalizeVector(vector)
	if !core.IsNormalized(normalized) {
		return nil, s.queryError(ctx, "embed query image", core.NewPermanentError("embed", ErrZeroEmbedding))
	}

	// 2. Match against entries from the same embedding model
	matches, err := s.catalog.NearestNeighbors(ctx, normalized, k,
		storage.WithModelVersion(s.embedder.ModelVersion()))
	if err != nil {
		return nil, s.queryError(ctx, "nearest neighbors", err)
	}
	monitor.AfterNearestNeighbors(matches)

	// 3. Score and rank
	matches = s.rank(matches, text)

	if err := ctx.Err(); err != nil {
		return nil, s.queryError(ctx, "query", err)
	}

	result := &Result{
		Matches:      matches,
		Text:         text.String(),
		ModelVersion: s.embedder.ModelVersion(),
	}
	if text != nil {
		result.Lines = text.Lines
	}
	if ocrErr != nil {
		result.OCRFailed = true
		result.OCRError = ocrErr.Error()
	}

	if s.archive != nil {
		snapshot, err := s.archive.Record(ctx, image, matches, result.Text, result.OCRFailed)
		if err != nil {
			s.logger.Error("error archiving query snapshot", "err", err)
		} else {
			result.SnapshotID = snapshot.ID
		}
	}

	s.logger.Debug("query complete", "format", info.Format, "k", k, "matches", len(matches), "ocr_failed", result.OCRFailed)
	monitor.Finish(result)
	return result, nil
}

// analyze computes the embedding and, best effort, the OCR text. ocrErr
// reports a failed extraction; err reports a failed embedding.
func (s *Searcher) analyze(ctx context.Context, image []byte, monitor QueryMonitor) (vector []float32, text *ai.ExtractedText, ocrErr, err error) {
	ocrCtx, cancelOCR := context.WithTimeout(ctx, s.ocrTimeout)
	defer cancelOCR()

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		v, err := s.embedder.EmbedImage(ctx, image)
		if err != nil {
			cancelOCR()
			return err
		}
		vector = v
		monitor.AfterEmbedding(len(v), time.Since(start))
		return nil
	})

	if s.extractor != nil {
		g.Go(func() error {
			t, err := s.extractor.ExtractText(ocrCtx, image)
			if err != nil {
				ocrErr = err
				s.logger.Warn("text extraction failed", "err", err)
			} else {
				text = t
			}
			monitor.AfterTextExtraction(t, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return vector, text, ocrErr, nil
}

// rank applies the scorer, drops matches under the minimum score, and
// re-ranks the rest densely.
func (s *Searcher) rank(matches []*core.Match, text *ai.ExtractedText) []*core.Match {
	for _, m := range matches {
		m.Score = core.ClampScore(s.scorer.Score(m, text))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Entry.SourceID < b.Entry.SourceID
	})

	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= s.minScore {
			kept = append(kept, m)
		}
	}
	for i, m := range kept {
		m.Rank = i + 1
	}
	return kept
}

// queryError maps a failed stage onto the error taxonomy.
func (s *Searcher) queryError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("query timed out", "op", op)
		return core.TimeoutError(op, err)
	}
	if errors.Is(err, core.ErrStore) || errors.Is(err, core.ErrProvider) ||
		errors.Is(err, core.ErrDimensionMismatch) || errors.Is(err, core.ErrValidation) ||
		errors.Is(err, context.Canceled) {
		s.logger.Error("query failed", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Error("query failed", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, core.NewPermanentError("embed", err))
}
