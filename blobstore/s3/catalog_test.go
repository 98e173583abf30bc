package s3

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ndb/blobstore"
)

func TestCatalog_FirstCommit(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newMockDDBClient(), "ndb-archives")

	_, err := catalog.Latest(ctx, "store-a")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	e, err := catalog.Commit(ctx, Entry{
		Key:      "store-a",
		Name:     "store-a/1.ndbs",
		Size:     4096,
		Checksum: 0xE3069283,
		Created:  created,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version)

	latest, err := catalog.Latest(ctx, "store-a")
	require.NoError(t, err)
	assert.Equal(t, e, latest)
	assert.True(t, created.Equal(latest.Created))
}

func TestCatalog_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newMockDDBClient(), "ndb-archives")

	for i := 1; i <= 12; i++ {
		e, err := catalog.Commit(ctx, Entry{Key: "k", Name: "n"})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), e.Version)
	}

	history, err := catalog.History(ctx, "k", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(12), history[0].Version)
	assert.Equal(t, uint64(11), history[1].Version)
	assert.Equal(t, uint64(10), history[2].Version)

	all, err := catalog.History(ctx, "k", 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestCatalog_ExplicitVersion(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newMockDDBClient(), "ndb-archives")

	_, err := catalog.Commit(ctx, Entry{Key: "k", Version: 2})
	assert.ErrorIs(t, err, blobstore.ErrConflict)

	e, err := catalog.Commit(ctx, Entry{Key: "k", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version)
}

func TestCatalog_ConcurrentCommitConflict(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	catalog := NewCatalog(ddb, "ndb-archives")

	// A rival writer commits version 1 between our read and our put.
	var raced bool
	ddb.beforePut = func() {
		if raced {
			return
		}
		raced = true
		rival := NewCatalog(ddb, "ndb-archives")
		_, err := rival.Commit(ctx, Entry{Key: "k", Name: "rival"})
		require.NoError(t, err)
	}

	_, err := catalog.Commit(ctx, Entry{Key: "k", Name: "mine"})
	assert.True(t, errors.Is(err, blobstore.ErrConflict))

	latest, err := catalog.Latest(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "rival", latest.Name)
}

func TestCatalog_IsolatedKeys(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newMockDDBClient(), "ndb-archives")

	_, err := catalog.Commit(ctx, Entry{Key: "a"})
	require.NoError(t, err)
	_, err = catalog.Commit(ctx, Entry{Key: "a"})
	require.NoError(t, err)
	e, err := catalog.Commit(ctx, Entry{Key: "b"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version)
}
