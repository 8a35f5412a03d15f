package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/ai/mock"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var half = float32(math.Sqrt(0.5))

// testImage returns a distinct small PNG for each seed.
func testImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: seed, G: 255 - seed, B: 7, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestCatalog(t *testing.T) *badger.CatalogRepository {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos.Catalog
}

func addEntry(t *testing.T, catalog *badger.CatalogRepository, sourceID string, vec []float32) {
	t.Helper()
	addVersionedEntry(t, catalog, sourceID, vec, mock.DefaultModelVersion)
}

func addVersionedEntry(t *testing.T, catalog *badger.CatalogRepository, sourceID string, vec []float32, version string) {
	t.Helper()
	_, err := catalog.Upsert(context.Background(), &core.CatalogEntry{
		SourceID:              sourceID,
		Title:                 "Title " + sourceID,
		Artist:                "Artist " + sourceID,
		Embedding:             core.NormalizeVector(vec),
		EmbeddingModelVersion: version,
	})
	require.NoError(t, err)
}

// threeEntryCatalog holds [1,0], [0,1] and [half,half].
func threeEntryCatalog(t *testing.T) *badger.CatalogRepository {
	catalog := newTestCatalog(t)
	addEntry(t, catalog, "entry-1", []float32{1, 0})
	addEntry(t, catalog, "entry-2", []float32{0, 1})
	addEntry(t, catalog, "entry-3", []float32{half, half})
	return catalog
}

func newTestProvider(t *testing.T, query []byte, vec []float32) (*mock.MockProvider, *mock.MockImageEmbedder, *mock.MockTextExtractor) {
	t.Helper()
	embedder := mock.NewMockImageEmbedder(len(vec))
	embedder.SetVector(query, vec)
	extractor := mock.NewMockTextExtractor()
	return mock.NewMockProviderWithServices(embedder, extractor), embedder, extractor
}

type fakeArchive struct {
	mu      sync.Mutex
	records []*core.SnapshotRecord
	err     error
}

func (a *fakeArchive) Record(ctx context.Context, image []byte, matches []*core.Match, text string, ocrFailed bool) (*core.SnapshotRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	rec := &core.SnapshotRecord{ID: core.ID(len(a.records) + 1), ExtractedText: text, OCRFailed: ocrFailed}
	for _, m := range matches {
		rec.Matches = append(rec.Matches, core.SnapshotMatch{SourceID: m.Entry.SourceID, Score: m.Score, Rank: m.Rank})
	}
	a.records = append(a.records, rec)
	return rec, nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func sourceIDs(matches []*core.Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Entry.SourceID
	}
	return ids
}

func TestNewSearcher(t *testing.T) {
	catalog := newTestCatalog(t)
	provider := mock.NewMockProvider(2)

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(catalog, provider)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
		assert.Equal(t, DefaultK, searcher.defaultK)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(catalog, provider, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with custom logger", func(t *testing.T) {
		_, err := NewSearcher(catalog, provider, WithLogger(slog.Default()))
		require.NoError(t, err)
	})

	t.Run("nil catalog", func(t *testing.T) {
		_, err := NewSearcher(nil, provider)
		assert.Equal(t, ErrCatalogRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewSearcher(catalog, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewSearcher(catalog, provider, WithDefaultK(0))
		assert.Error(t, err)
		_, err = NewSearcher(catalog, provider, WithMinScore(1.5))
		assert.Error(t, err)
		_, err = NewSearcher(catalog, provider, WithOCRTimeout(0))
		assert.Error(t, err)
	})
}

func TestQuery_ThreeEntryScenario(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 1)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})

	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)

	first := result.Matches[0]
	assert.Equal(t, "entry-1", first.Entry.SourceID)
	assert.InDelta(t, 1.0, first.Score, 1e-6)
	assert.Equal(t, 1, first.Rank)

	assert.Equal(t, []string{"entry-1", "entry-3", "entry-2"}, sourceIDs(result.Matches))
	assert.InDelta(t, half, result.Matches[1].Score, 1e-6)
	assert.InDelta(t, 0.0, result.Matches[2].Score, 1e-6)
	for i, m := range result.Matches {
		assert.Equal(t, i+1, m.Rank)
	}
	assert.Equal(t, mock.DefaultModelVersion, result.ModelVersion)
	assert.False(t, result.OCRFailed)
}

func TestQuery_DefaultK(t *testing.T) {
	catalog := newTestCatalog(t)
	for i := range 8 {
		addEntry(t, catalog, fmt.Sprintf("e%d", i), []float32{1, float32(i)})
	}
	query := testImage(t, 2)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})

	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 0)
	require.NoError(t, err)
	assert.Len(t, result.Matches, DefaultK)

	result, err = searcher.Query(context.Background(), query, 20)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 8, "k beyond catalog size returns every entry")
}

func TestQuery_EmptyCatalog(t *testing.T) {
	query := testImage(t, 3)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})
	searcher, err := NewSearcher(newTestCatalog(t), provider)
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestQuery_TiesBrokenBySourceID(t *testing.T) {
	catalog := newTestCatalog(t)
	addEntry(t, catalog, "zeta", []float32{1, 0})
	addEntry(t, catalog, "alpha", []float32{1, 0})
	addEntry(t, catalog, "mid", []float32{1, 0})
	query := testImage(t, 4)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})

	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, sourceIDs(result.Matches))
}

func TestQuery_InvalidImage(t *testing.T) {
	provider, embedder, _ := newTestProvider(t, nil, []float32{1, 0})
	searcher, err := NewSearcher(newTestCatalog(t), provider, WithMaxImageBytes(64))
	require.NoError(t, err)

	_, err = searcher.Query(context.Background(), nil, 5)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrEmptyImage)

	_, err = searcher.Query(context.Background(), []byte("definitely not an image"), 5)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, err = searcher.Query(context.Background(), make([]byte, 65), 5)
	assert.ErrorIs(t, err, core.ErrImageTooLarge)

	assert.Zero(t, embedder.CallCount())
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 5)
	provider, embedder, _ := newTestProvider(t, query, []float32{1, 0})
	embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		return nil, core.NewTransientError("embed", errors.New("503 service unavailable"))
	}
	archive := &fakeArchive{}

	searcher, err := NewSearcher(catalog, provider, WithArchive(archive))
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 3)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Zero(t, archive.count(), "failed queries are not archived")
}

func TestQuery_UntypedEmbeddingFailureIsProviderError(t *testing.T) {
	query := testImage(t, 6)
	provider, embedder, _ := newTestProvider(t, query, []float32{1, 0})
	embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		return nil, errors.New("model exploded")
	}
	searcher, err := NewSearcher(threeEntryCatalog(t), provider)
	require.NoError(t, err)

	_, err = searcher.Query(context.Background(), query, 3)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestQuery_DegenerateEmbeddingIsProviderError(t *testing.T) {
	nan := float32(math.NaN())
	for name, vec := range map[string][]float32{
		"zero":  {0, 0},
		"nan":   {nan, 1},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			query := testImage(t, 9)
			provider, embedder, _ := newTestProvider(t, query, []float32{1, 0})
			embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
				return vec, nil
			}
			searcher, err := NewSearcher(threeEntryCatalog(t), provider)
			require.NoError(t, err)

			_, err = searcher.Query(context.Background(), query, 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrProvider)
			assert.ErrorIs(t, err, ErrZeroEmbedding)
			assert.NotErrorIs(t, err, core.ErrDimensionMismatch)
			assert.False(t, core.IsTransient(err))
		})
	}
}

func TestQuery_WrongDimension(t *testing.T) {
	query := testImage(t, 7)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0, 0})
	searcher, err := NewSearcher(threeEntryCatalog(t), provider)
	require.NoError(t, err)

	_, err = searcher.Query(context.Background(), query, 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestQuery_OCRTextIsAuxiliary(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 8)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.Text = &ai.ExtractedText{Lines: []ai.TextLine{
		{Text: "Title entry-2", Confidence: 0.9},
		{Text: "Artist entry-2", Confidence: 0.8},
	}}

	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)

	assert.Equal(t, "Title entry-2, Artist entry-2", result.Text)
	assert.Len(t, result.Lines, 2)
	assert.Equal(t, []string{"entry-1", "entry-3", "entry-2"}, sourceIDs(result.Matches),
		"text naming entry-2 must not change the visual ranking")
	assert.Equal(t, 1, extractor.CallCount())
}

func TestQuery_TextBoostScorerReranks(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 9)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.Text = &ai.ExtractedText{Lines: []ai.TextLine{{Text: "TITLE ENTRY-2", Confidence: 0.9}}}

	searcher, err := NewSearcher(catalog, provider, WithScorer(TextBoostScorer{Boost: 0.8}))
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"entry-1", "entry-2", "entry-3"}, sourceIDs(result.Matches))
	assert.InDelta(t, 0.8, result.Matches[1].Score, 1e-6)
	assert.Equal(t, 2, result.Matches[1].Rank)
}

func TestTextBoostScorer_Clamped(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 19)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.Text = &ai.ExtractedText{Lines: []ai.TextLine{{Text: "Artist entry-1", Confidence: 0.9}}}

	searcher, err := NewSearcher(catalog, provider, WithScorer(TextBoostScorer{Boost: 0.5}))
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 1)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.InDelta(t, 1.0, result.Matches[0].Score, 1e-6)
}

func TestQuery_OCRFailureDoesNotBlockMatches(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 10)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.ExtractTextFunc = func(ctx context.Context, image []byte) (*ai.ExtractedText, error) {
		return nil, core.NewPermanentError("ocr", errors.New("model not loaded"))
	}
	archive := &fakeArchive{}

	searcher, err := NewSearcher(catalog, provider, WithArchive(archive))
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)

	assert.True(t, result.OCRFailed)
	assert.Contains(t, result.OCRError, "model not loaded")
	assert.Empty(t, result.Text)
	assert.Equal(t, []string{"entry-1", "entry-3", "entry-2"}, sourceIDs(result.Matches))

	require.Equal(t, 1, archive.count())
	assert.True(t, archive.records[0].OCRFailed)
}

func TestQuery_OCRTimeout(t *testing.T) {
	query := testImage(t, 11)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.ExtractTextFunc = func(ctx context.Context, image []byte) (*ai.ExtractedText, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	searcher, err := NewSearcher(threeEntryCatalog(t), provider, WithOCRTimeout(20*time.Millisecond))
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)
	assert.True(t, result.OCRFailed)
	assert.Len(t, result.Matches, 3)
}

func TestQuery_WithoutOCR(t *testing.T) {
	query := testImage(t, 12)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})

	searcher, err := NewSearcher(threeEntryCatalog(t), provider, WithoutOCR())
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)
	assert.False(t, result.OCRFailed)
	assert.Zero(t, extractor.CallCount())
}

func TestQuery_Timeout(t *testing.T) {
	query := testImage(t, 13)
	provider, embedder, _ := newTestProvider(t, query, []float32{1, 0})
	embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		<-ctx.Done()
		return nil, core.NewTransientError("embed", ctx.Err())
	}
	archive := &fakeArchive{}

	searcher, err := NewSearcher(threeEntryCatalog(t), provider,
		WithTimeout(20*time.Millisecond), WithArchive(archive))
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 3)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Zero(t, archive.count())
}

func TestQuery_MinScore(t *testing.T) {
	query := testImage(t, 14)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})
	searcher, err := NewSearcher(threeEntryCatalog(t), provider, WithMinScore(0.7))
	require.NoError(t, err)

	result, err := searcher.Query(context.Background(), query, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"entry-1", "entry-3"}, sourceIDs(result.Matches))
	assert.Equal(t, 2, result.Matches[1].Rank)
}

func TestQuery_IgnoresOtherModelVersions(t *testing.T) {
	catalog := threeEntryCatalog(t)
	addVersionedEntry(t, catalog, "old-model", []float32{1, 0}, "legacy-v0")
	query := testImage(t, 15)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})

	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 10)
	require.NoError(t, err)
	assert.NotContains(t, sourceIDs(result.Matches), "old-model")
	assert.Len(t, result.Matches, 3)
}

func TestQuery_Archive(t *testing.T) {
	query := testImage(t, 16)
	provider, _, extractor := newTestProvider(t, query, []float32{1, 0})
	extractor.Text = &ai.ExtractedText{Lines: []ai.TextLine{{Text: "BLUE TRAIN", Confidence: 0.9}}}
	archive := &fakeArchive{}

	searcher, err := NewSearcher(threeEntryCatalog(t), provider, WithArchive(archive))
	require.NoError(t, err)
	result, err := searcher.Query(context.Background(), query, 2)
	require.NoError(t, err)

	require.Equal(t, 1, archive.count())
	rec := archive.records[0]
	assert.Equal(t, rec.ID, result.SnapshotID)
	assert.Equal(t, "BLUE TRAIN", rec.ExtractedText)
	require.Len(t, rec.Matches, 2)
	assert.Equal(t, "entry-1", rec.Matches[0].SourceID)

	archive.err = errors.New("disk full")
	result, err = searcher.Query(context.Background(), query, 2)
	require.NoError(t, err, "archive failures do not fail the query")
	assert.Zero(t, result.SnapshotID)
}

type recordingMonitor struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMonitor) add(e string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *recordingMonitor) Start(info core.ImageInfo, k int) { m.add("start:" + info.Format) }
func (m *recordingMonitor) AfterEmbedding(dim int, _ time.Duration) {
	m.add(fmt.Sprintf("embed:%d", dim))
}
func (m *recordingMonitor) AfterTextExtraction(_ *ai.ExtractedText, err error) { m.add("ocr") }
func (m *recordingMonitor) AfterNearestNeighbors(matches []*core.Match) {
	m.add(fmt.Sprintf("nn:%d", len(matches)))
}
func (m *recordingMonitor) Finish(result *Result) { m.add("finish") }

func TestQueryWithMonitor(t *testing.T) {
	query := testImage(t, 17)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})
	searcher, err := NewSearcher(threeEntryCatalog(t), provider)
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	_, err = searcher.QueryWithMonitor(context.Background(), query, 2, monitor)
	require.NoError(t, err)

	assert.Equal(t, "start:png", monitor.events[0])
	assert.ElementsMatch(t, []string{"embed:2", "ocr"}, monitor.events[1:3])
	assert.Equal(t, []string{"nn:2", "finish"}, monitor.events[3:])
}

func TestQuery_ConcurrentWithWrites(t *testing.T) {
	catalog := threeEntryCatalog(t)
	query := testImage(t, 18)
	provider, _, _ := newTestProvider(t, query, []float32{1, 0})
	searcher, err := NewSearcher(catalog, provider)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := catalog.Upsert(context.Background(), &core.CatalogEntry{
				SourceID:              fmt.Sprintf("w%d", i),
				Embedding:             core.NormalizeVector([]float32{float32(i), 1}),
				EmbeddingModelVersion: mock.DefaultModelVersion,
			})
			if err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			result, err := searcher.Query(context.Background(), query, 5)
			if err != nil {
				errs <- err
				return
			}
			for j := 1; j < len(result.Matches); j++ {
				if result.Matches[j].Score > result.Matches[j-1].Score {
					errs <- fmt.Errorf("matches out of order: %v", sourceIDs(result.Matches))
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
