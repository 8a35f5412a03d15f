package reembed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/retry"
	"github.com/poiesic/coverdex/storage/badger"
	"github.com/stretchr/testify/require"
)

// mapFetcher serves covers from memory; URLs listed in broken always fail.
type mapFetcher struct {
	mu     sync.Mutex
	broken map[string]bool
	calls  int
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.broken[url] {
		return nil, core.NewPermanentError("fetch", errors.New("404 not found"))
	}
	return []byte("cover at " + url), nil
}

func setupTestCatalog(t *testing.T) *badger.Repositories {
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

// seedEntries stores n entries with 2-dimensional vectors tagged version.
func seedEntries(t *testing.T, repos *badger.Repositories, n int, version string) {
	t.Helper()
	for i := range n {
		_, err := repos.Catalog.Upsert(context.Background(), &core.CatalogEntry{
			SourceID:              fmt.Sprintf("%s-%03d", version, i),
			Title:                 fmt.Sprintf("Album %d", i),
			CoverURL:              fmt.Sprintf("https://covers/%s/%d.jpg", version, i),
			Embedding:             core.NormalizeVector([]float32{1, float32(i)}),
			EmbeddingModelVersion: version,
		})
		require.NoError(t, err)
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}
