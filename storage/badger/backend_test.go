package badger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		if !repos.Backend.IsClosed() {
			repos.Close()
		}
	})
	return repos
}

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}

func TestBackend_ClosedIsUnavailable(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	err = backend.wrapErr("count", backend.view(context.Background(), func(tx *badger.Txn) error { return nil }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStore))
	assert.True(t, core.IsStoreUnavailable(err))
	assert.True(t, errors.Is(err, storage.ErrStorageClosed))
}

func TestBackend_WrapErrPassesThroughCategories(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	dimErr := backend.wrapErr("op", core.ErrDimensionMismatch)
	assert.Equal(t, core.ErrDimensionMismatch, dimErr)

	timeoutErr := backend.wrapErr("op", context.DeadlineExceeded)
	assert.True(t, errors.Is(timeoutErr, core.ErrTimeout))

	notFound := backend.wrapErr("get", storage.ErrNotFound)
	assert.True(t, errors.Is(notFound, core.ErrStore))
	assert.True(t, errors.Is(notFound, storage.ErrNotFound))
	assert.False(t, core.IsStoreUnavailable(notFound))
}

func TestBackend_UpdateRetriesConflicts(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	calls := 0
	err = backend.update(context.Background(), func(tx *badger.Txn) error {
		calls++
		if calls < 3 {
			return badger.ErrConflict
		}
		return tx.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackend_UpdateGivesUpAfterRepeatedConflicts(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.update(context.Background(), func(tx *badger.Txn) error {
		return badger.ErrConflict
	})
	assert.ErrorIs(t, err, storage.ErrConflictRetriesExhausted)
}
