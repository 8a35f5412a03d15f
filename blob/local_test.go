package blob

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PutGetDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "snapshots/abc.jpg", []byte("jpeg bytes"), "image/jpeg"))

	ok, err := store.Exists(ctx, "snapshots/abc.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, "snapshots/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)

	require.NoError(t, store.Put(ctx, "snapshots/abc.jpg", []byte("replaced"), "image/jpeg"))
	data, err = store.Get(ctx, "snapshots/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)

	require.NoError(t, store.Delete(ctx, "snapshots/abc.jpg"))
	require.NoError(t, store.Delete(ctx, "snapshots/abc.jpg"))

	_, err = store.Get(ctx, "snapshots/abc.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = store.Exists(ctx, "snapshots/abc.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	store, err := NewLocal(root)
	require.NoError(t, err)

	info, err := os.Stat(store.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../outside", "."} {
		err := store.Put(ctx, key, []byte("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocal_ConcurrentPutsSameKey(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Put(ctx, "same", []byte("identical content"), ""))
		}()
	}
	wg.Wait()

	data, err := store.Get(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, []byte("identical content"), data)
}
