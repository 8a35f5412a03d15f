package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/coverdex/ai/mock"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/source"
	"github.com/poiesic/coverdex/source/manifest"
	"github.com/poiesic/coverdex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// testFetcher serves cover bytes by URL and can inject failures.
type testFetcher struct {
	mu       sync.Mutex
	images   map[string][]byte
	failures map[string]func(attempt int) error
	calls    map[string]int
}

func newTestFetcher() *testFetcher {
	return &testFetcher{
		images:   make(map[string][]byte),
		failures: make(map[string]func(int) error),
		calls:    make(map[string]int),
	}
}

func (f *testFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	attempt := f.calls[url]
	fail := f.failures[url]
	image, ok := f.images[url]
	f.mu.Unlock()

	if fail != nil {
		if err := fail(attempt); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, core.NewPermanentError("fetch", errors.New("404 not found"))
	}
	return image, nil
}

func (f *testFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *testFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// countingSource records page requests and can intercept them.
type countingSource struct {
	source.MetadataSource
	mu     sync.Mutex
	pages  []string
	before func(scope string, page int) error
}

func (s *countingSource) FetchPage(ctx context.Context, scope string, page int) (*source.Page, error) {
	s.mu.Lock()
	s.pages = append(s.pages, fmt.Sprintf("%s/%d", scope, page))
	before := s.before
	s.mu.Unlock()
	if before != nil {
		if err := before(scope, page); err != nil {
			return nil, err
		}
	}
	return s.MetadataSource.FetchPage(ctx, scope, page)
}

func (s *countingSource) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pages...)
}

func makeRecords(style string, n int) []source.Record {
	records := make([]source.Record, n)
	for i := range records {
		id := fmt.Sprintf("%s-%d", style, i+1)
		records[i] = source.Record{
			SourceID: id,
			Title:    "Album " + id,
			Artist:   "Artist " + id,
			Year:     1960 + i,
			Style:    style,
			CoverURL: "https://covers/" + id + ".jpg",
		}
	}
	return records
}

func newTestRepos(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		if !repos.Backend.IsClosed() {
			repos.Close()
		}
	})
	return repos
}

type fixture struct {
	repos    *badger.Repositories
	source   *countingSource
	fetcher  *testFetcher
	embedder *mock.MockImageEmbedder
	records  []source.Record
}

func newFixture(t *testing.T, records []source.Record, pageSize int) *fixture {
	t.Helper()
	f := &fixture{
		repos:    newTestRepos(t),
		source:   &countingSource{MetadataSource: manifest.New(records, manifest.WithPageSize(pageSize))},
		fetcher:  newTestFetcher(),
		embedder: mock.NewMockImageEmbedder(testDim),
		records:  records,
	}
	for _, r := range records {
		f.fetcher.images[r.CoverURL] = []byte("image of " + r.SourceID)
	}
	return f
}

func fastPolicy(retries int) retry.Policy {
	return retry.Policy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	defaults := []Option{
		WithRateLimit(0, 1),
		WithRetryPolicy(fastPolicy(2)),
		WithPoolSize(4),
	}
	p, err := NewPipeline(f.repos.Catalog, f.repos.Checkpoints, f.source, f.fetcher, f.embedder,
		append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func allEntries(t *testing.T, repos *badger.Repositories) map[string]*core.CatalogEntry {
	t.Helper()
	entries, err := repos.Catalog.Scan(context.Background(), "", 1000)
	require.NoError(t, err)
	out := make(map[string]*core.CatalogEntry, len(entries))
	for _, e := range entries {
		out[e.SourceID] = e
	}
	return out
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	f := newFixture(t, nil, 10)
	c, cp, src, fe, em := f.repos.Catalog, f.repos.Checkpoints, f.source, f.fetcher, f.embedder

	_, err := NewPipeline(nil, cp, src, fe, em)
	assert.ErrorIs(t, err, ErrCatalogRequired)
	_, err = NewPipeline(c, nil, src, fe, em)
	assert.ErrorIs(t, err, ErrCheckpointRepositoryRequired)
	_, err = NewPipeline(c, cp, nil, fe, em)
	assert.ErrorIs(t, err, ErrSourceRequired)
	_, err = NewPipeline(c, cp, src, nil, em)
	assert.ErrorIs(t, err, ErrFetcherRequired)
	_, err = NewPipeline(c, cp, src, fe, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(c, cp, src, fe, em, WithRetryPolicy(retry.Policy{MaxRetries: -1}))
	assert.ErrorIs(t, err, retry.ErrInvalidPolicy)
	_, err = NewPipeline(c, cp, src, fe, em, WithItemTimeout(0))
	assert.Error(t, err)
}

func TestRun_NoScopes(t *testing.T) {
	f := newFixture(t, nil, 10)
	_, err := f.pipeline(t).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoScopes)
}

func TestRun_IngestsAllItems(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 5), 2)
	ctx := context.Background()

	report, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)

	assert.Equal(t, 5, report.Ingested)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.NotEqual(t, uuid.Nil, report.RunID)

	scope := report.Scopes["Jazz"]
	require.NotNil(t, scope)
	assert.Equal(t, 3, scope.Pages)
	assert.Equal(t, 1, scope.StartPage)
	assert.True(t, scope.Completed)

	count, err := f.repos.Catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	entry, err := f.repos.Catalog.Get(ctx, "Jazz-3")
	require.NoError(t, err)
	assert.Equal(t, "Album Jazz-3", entry.Title)
	assert.Equal(t, 1962, entry.Year)
	assert.Equal(t, mock.DefaultModelVersion, entry.EmbeddingModelVersion)
	assert.True(t, core.IsNormalized(entry.Embedding), "embeddings are normalized before storage")

	cp, err := f.repos.Checkpoints.Load(ctx, "Jazz")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.Completed)
	assert.Equal(t, 4, cp.NextPage)
	assert.Equal(t, 5, cp.ItemsSeen)
}

func TestRun_ThrottlesExternalCalls(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 5), 5)
	const interval = 50 * time.Millisecond

	start := time.Now()
	report, err := f.pipeline(t, WithRateLimit(20, 1)).Run(context.Background(), "Jazz")
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Ingested)

	// Page fetches, cover fetches and embeddings share one limiter. With a
	// burst of one, every call after the first waits a full interval.
	calls := len(f.source.requested()) + f.fetcher.totalCalls() + f.embedder.CallCount()
	assert.Equal(t, 5, f.embedder.CallCount())
	assert.GreaterOrEqual(t, calls, 11)
	assert.GreaterOrEqual(t, elapsed, time.Duration(calls-1)*interval-5*time.Millisecond)
}

func TestRun_SubmitFailureWaitsForRunningItems(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 5), 5)
	p := f.pipeline(t, WithPoolSize(4))

	var (
		release  sync.Once
		mu       sync.Mutex
		inFlight int
		finished int
	)
	f.embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		mu.Lock()
		inFlight++
		mu.Unlock()
		release.Do(p.Release)
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		inFlight--
		finished++
		mu.Unlock()
		return mock.DeterministicVector(image, testDim), nil
	}

	report, err := p.Run(context.Background(), "Jazz")
	require.Error(t, err)
	require.NotNil(t, report)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, inFlight, "no item may still be running after Run returns")
	assert.Equal(t, finished, report.Ingested+report.Failed)

	cp, err := f.repos.Checkpoints.Load(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Nil(t, cp, "an interrupted page is not checkpointed")
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 4), 3)
	ctx := context.Background()

	_, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	before := allEntries(t, f.repos)
	fetches := f.fetcher.totalCalls()
	embeds := f.embedder.CallCount()

	report, err := f.pipeline(t, WithRescan(true)).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Zero(t, report.Ingested)
	assert.Zero(t, report.Updated)
	assert.Equal(t, 4, report.Skipped)

	assert.Equal(t, before, allEntries(t, f.repos), "store must be unchanged")
	assert.Equal(t, fetches, f.fetcher.totalCalls(), "no image re-fetched")
	assert.Equal(t, embeds, f.embedder.CallCount(), "no image re-embedded")
}

func TestRun_CompletedScopeNotRelisted(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 2), 5)
	ctx := context.Background()

	_, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	pages := len(f.source.requested())

	report, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Len(t, f.source.requested(), pages)
	assert.True(t, report.Scopes["Jazz"].Completed)
	assert.Zero(t, report.Skipped)
}

func TestRun_SkipsCommittedItemsWithoutCheckpoint(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 3), 10)
	ctx := context.Background()

	_, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	require.NoError(t, f.repos.Checkpoints.Reset(ctx, "Jazz"))
	fetches := f.fetcher.totalCalls()

	report, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, fetches, f.fetcher.totalCalls())
}

func TestRun_UnreachableCoverFailsItemOnly(t *testing.T) {
	records := makeRecords("Jazz", 4)
	f := newFixture(t, records, 10)
	bad := records[1].CoverURL
	f.fetcher.failures[bad] = func(int) error {
		return core.NewTransientError("fetch", errors.New("dial tcp: connection refused"))
	}
	ctx := context.Background()

	report, err := f.pipeline(t, WithRetryPolicy(fastPolicy(3))).Run(ctx, "Jazz")
	require.NoError(t, err)

	assert.Equal(t, 4, f.fetcher.callsFor(bad), "one attempt plus three retries")
	assert.Equal(t, 3, report.Ingested)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Failures, records[1].SourceID)

	count, err := f.repos.Catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	exists, err := f.repos.Catalog.Exists(ctx, records[1].SourceID)
	require.NoError(t, err)
	assert.False(t, exists)
	for _, r := range []source.Record{records[0], records[2], records[3]} {
		exists, err := f.repos.Catalog.Exists(ctx, r.SourceID)
		require.NoError(t, err)
		assert.True(t, exists, r.SourceID)
	}
}

func TestRun_PermanentFailureNotRetried(t *testing.T) {
	records := makeRecords("Jazz", 2)
	f := newFixture(t, records, 10)
	delete(f.fetcher.images, records[0].CoverURL)

	report, err := f.pipeline(t, WithRetryPolicy(fastPolicy(5))).Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.callsFor(records[0].CoverURL))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Ingested)
}

func TestRun_TransientFailureRecovers(t *testing.T) {
	records := makeRecords("Jazz", 1)
	f := newFixture(t, records, 10)
	f.fetcher.failures[records[0].CoverURL] = func(attempt int) error {
		if attempt < 3 {
			return &core.ProviderError{Op: "fetch", Transient: true, StatusCode: 503, Err: errors.New("unavailable")}
		}
		return nil
	}

	report, err := f.pipeline(t).Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 3, f.fetcher.callsFor(records[0].CoverURL))
}

func TestRun_EmbeddingFailureFailsItem(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 2), 10)
	f.embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		return nil, core.NewPermanentError("embed", errors.New("400 bad image"))
	}

	report, err := f.pipeline(t).Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.True(t, report.Scopes["Jazz"].Completed)
}

func TestRun_ItemTimeout(t *testing.T) {
	records := makeRecords("Jazz", 3)
	f := newFixture(t, records, 10)
	slow := records[0].CoverURL
	f.fetcher.failures[slow] = func(int) error {
		time.Sleep(200 * time.Millisecond)
		return core.NewTransientError("fetch", context.DeadlineExceeded)
	}

	report, err := f.pipeline(t, WithItemTimeout(50*time.Millisecond), WithRetryPolicy(fastPolicy(0))).
		Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Ingested)
}

func TestRun_SkipsRecordsWithoutCover(t *testing.T) {
	records := makeRecords("Jazz", 3)
	records[2].CoverURL = ""
	f := newFixture(t, records, 10)

	report, err := f.pipeline(t).Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_MetadataChangeUpdatesWithoutRefetch(t *testing.T) {
	records := makeRecords("Jazz", 2)
	f := newFixture(t, records, 10)
	ctx := context.Background()

	_, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)
	original, err := f.repos.Catalog.Get(ctx, records[0].SourceID)
	require.NoError(t, err)
	fetches := f.fetcher.totalCalls()

	records[0].Title = "Remastered"
	f.source.MetadataSource = manifest.New(records)

	report, err := f.pipeline(t, WithRescan(true)).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, fetches, f.fetcher.totalCalls())

	updated, err := f.repos.Catalog.Get(ctx, records[0].SourceID)
	require.NoError(t, err)
	assert.Equal(t, "Remastered", updated.Title)
	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.Embedding, updated.Embedding)
}

func TestRun_ModelUpgradeReembeds(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 2), 10)
	ctx := context.Background()

	_, err := f.pipeline(t).Run(ctx, "Jazz")
	require.NoError(t, err)

	f.embedder.Version = "mock-v2"
	report, err := f.pipeline(t, WithRescan(true)).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)

	entry, err := f.repos.Catalog.Get(ctx, "Jazz-1")
	require.NoError(t, err)
	assert.Equal(t, "mock-v2", entry.EmbeddingModelVersion)
}

func TestRun_MaxItemsPerScope(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 7), 3)
	ctx := context.Background()

	report, err := f.pipeline(t, WithMaxItemsPerScope(4)).Run(ctx, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Ingested)
	assert.True(t, report.Scopes["Jazz"].Completed)
	assert.Equal(t, []string{"Jazz/1", "Jazz/2"}, f.source.requested())

	count, err := f.repos.Catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestRun_MultipleScopes(t *testing.T) {
	records := append(makeRecords("Jazz", 3), makeRecords("Ambient", 4)...)
	f := newFixture(t, records, 2)

	report, err := f.pipeline(t, WithScopeConcurrency(2)).Run(context.Background(), "Jazz", "Ambient")
	require.NoError(t, err)
	assert.Equal(t, 7, report.Ingested)
	assert.Equal(t, 3, report.Scopes["Jazz"].Ingested)
	assert.Equal(t, 4, report.Scopes["Ambient"].Ingested)
}

func TestRun_PageFailureStopsScopeOnly(t *testing.T) {
	records := append(makeRecords("Jazz", 2), makeRecords("Ambient", 2)...)
	f := newFixture(t, records, 10)
	f.source.before = func(scope string, page int) error {
		if scope == "Jazz" {
			return core.NewPermanentError("metadata", errors.New("401 unauthorized"))
		}
		return nil
	}

	report, err := f.pipeline(t).Run(context.Background(), "Jazz", "Ambient")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Scopes["Jazz"].Error)
	assert.False(t, report.Scopes["Jazz"].Completed)
	assert.Equal(t, 2, report.Scopes["Ambient"].Ingested)

	cp, err := f.repos.Checkpoints.Load(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRun_ResumeMatchesUninterruptedRun(t *testing.T) {
	records := makeRecords("Jazz", 5)

	reference := newFixture(t, records, 2)
	_, err := reference.pipeline(t).Run(context.Background(), "Jazz")
	require.NoError(t, err)

	f := newFixture(t, records, 2)
	ctx, cancel := context.WithCancel(context.Background())
	f.source.before = func(scope string, page int) error {
		if page == 2 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	report, err := f.pipeline(t).Run(ctx, "Jazz")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Ingested)

	cp, err := f.repos.Checkpoints.Load(context.Background(), "Jazz")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.NextPage)
	assert.False(t, cp.Completed)

	f.source.before = nil
	resumed, err := f.pipeline(t).Run(context.Background(), "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.Scopes["Jazz"].StartPage)
	assert.Equal(t, 3, resumed.Ingested)
	assert.Equal(t, []string{"Jazz/1", "Jazz/2", "Jazz/2", "Jazz/3"}, f.source.requested())

	want := allEntries(t, reference.repos)
	got := allEntries(t, f.repos)
	require.Len(t, got, len(want))
	for id, w := range want {
		g, ok := got[id]
		require.True(t, ok, id)
		assert.True(t, w.SameContent(g), id)
	}
}

func TestRun_StoreUnavailableHalts(t *testing.T) {
	f := newFixture(t, makeRecords("Jazz", 2), 10)
	p := f.pipeline(t)
	require.NoError(t, f.repos.Close())

	report, err := p.Run(context.Background(), "Jazz")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStore)
	assert.True(t, core.IsStoreUnavailable(err))
	require.NotNil(t, report)
	assert.Zero(t, report.Ingested)
}
