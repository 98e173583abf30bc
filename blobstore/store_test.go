package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("put and open", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/one.ndbs", []byte("hello world")))

		blob, err := store.Open(ctx, "a/one.ndbs")
		require.NoError(t, err)
		defer blob.Close()
		assert.Equal(t, int64(11), blob.Size())

		buf := make([]byte, 5)
		n, err := blob.ReadAt(ctx, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "world", string(buf))

		n, err = blob.ReadAt(ctx, make([]byte, 10), 6)
		assert.Equal(t, 5, n)
		assert.ErrorIs(t, err, io.EOF)

		rc, err := blob.ReadRange(ctx, 2, 3)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "llo", string(data))
		require.NoError(t, rc.Close())

		all, err := io.ReadAll(NewReader(ctx, blob))
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(all))
	})

	t.Run("streaming create", func(t *testing.T) {
		w, err := store.Create(ctx, "a/two.ndbs")
		require.NoError(t, err)

		_, err = store.Open(ctx, "a/two.ndbs")
		assert.ErrorIs(t, err, ErrNotFound, "blob is invisible until closed")

		_, err = w.Write([]byte("part1-"))
		require.NoError(t, err)
		_, err = w.Write([]byte("part2"))
		require.NoError(t, err)
		require.NoError(t, w.Sync())
		require.NoError(t, w.Close())

		blob, err := store.Open(ctx, "a/two.ndbs")
		require.NoError(t, err)
		defer blob.Close()
		all, err := io.ReadAll(NewReader(ctx, blob))
		require.NoError(t, err)
		assert.Equal(t, "part1-part2", string(all))

		_, err = w.Write([]byte("late"))
		assert.Error(t, err)
	})

	t.Run("abort", func(t *testing.T) {
		w, err := store.Create(ctx, "a/aborted.ndbs")
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, Abort(w))

		_, err = store.Open(ctx, "a/aborted.ndbs")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty blob", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "empty", nil))
		blob, err := store.Open(ctx, "empty")
		require.NoError(t, err)
		assert.Zero(t, blob.Size())
		all, err := io.ReadAll(NewReader(ctx, blob))
		require.NoError(t, err)
		assert.Empty(t, all)
		require.NoError(t, blob.Close())
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "b/three.ndbs", []byte("3")))

		names, err := store.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one.ndbs", "a/two.ndbs"}, names)

		names, err = store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one.ndbs", "a/two.ndbs", "b/three.ndbs", "empty"}, names)

		require.NoError(t, store.Delete(ctx, "a/one.ndbs"))
		require.NoError(t, store.Delete(ctx, "a/one.ndbs"))
		_, err = store.Open(ctx, "a/one.ndbs")
		assert.ErrorIs(t, err, ErrNotFound)

		names, err = store.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/two.ndbs"}, names)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	testStore(t, NewLocalStore(root))

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_Mappable(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "m", []byte("mapped")))

	blob, err := store.Open(ctx, "m")
	require.NoError(t, err)
	defer blob.Close()

	m, ok := blob.(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(data))
}

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()

	_, err := c.Latest(ctx, "db")
	assert.ErrorIs(t, err, ErrNotFound)

	e1, err := c.Commit(ctx, Entry{Key: "db", Name: "db/1.ndbs", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Version)
	assert.False(t, e1.Created.IsZero())

	e2, err := c.Commit(ctx, Entry{Key: "db", Name: "db/2.ndbs"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Version)

	_, err = c.Commit(ctx, Entry{Key: "db", Version: 2, Name: "stale"})
	assert.ErrorIs(t, err, ErrConflict)

	latest, err := c.Latest(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, "db/2.ndbs", latest.Name)

	hist, err := c.History(ctx, "db", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, uint64(2), hist[0].Version)

	hist, err = c.History(ctx, "db", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
