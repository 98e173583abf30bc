package ndb_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/persistence"
)

const testChunk = 1 << 16

func openIndex(t *testing.T, opts ...ndb.Option) (*ndb.Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.ndb")
	idx, err := ndb.Open(path, append([]ndb.Option{ndb.WithChunkSize(testChunk)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestIndex_CreateDecode(t *testing.T) {
	metrics := &ndb.BasicMetricsCollector{}
	idx, _ := openIndex(t, ndb.WithMetricsCollector(metrics))

	values := []constant.Value{
		constant.Int(42),
		constant.String("hello"),
		constant.Class{Signature: "Ljava/lang/String;"},
		constant.Array{constant.Boolean(true), constant.Char('x')},
		constant.Annotation{Type: "Lp/A;", Pairs: []constant.Pair{{Name: "value", Value: constant.Long(-1)}}},
	}
	addrs := make([]database.Address, len(values))
	for i, v := range values {
		addr, err := idx.Create(v)
		require.NoError(t, err)
		addrs[i] = addr
	}

	for i, v := range values {
		got, err := idx.Decode(addrs[i])
		require.NoError(t, err)
		assert.True(t, constant.Equal(v, got), constant.Format(got))

		tag, err := idx.Tag(addrs[i])
		require.NoError(t, err)
		assert.Equal(t, v.Tag(), tag)
	}

	counts, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Total())

	stats := metrics.GetStats()
	assert.Equal(t, int64(5), stats.CreateCount)
	assert.Equal(t, int64(5), stats.DecodeCount)
	assert.Zero(t, stats.CreateErrors)
	assert.Equal(t, idx.Stats().LiveBlocks, stats.LiveBlocks)
}

func TestIndex_ErrorsAreTranslated(t *testing.T) {
	idx, _ := openIndex(t)

	_, err := idx.Create(nil)
	assert.ErrorIs(t, err, ndb.ErrInvalidValue)
	assert.ErrorIs(t, err, constant.ErrInvalidValue)

	addr, err := idx.Create(constant.Int(1))
	require.NoError(t, err)
	_, err = idx.DecodeAs(addr, constant.TagLong)
	assert.ErrorIs(t, err, ndb.ErrInvariant)
	assert.ErrorIs(t, err, constant.ErrWrongVariant)

	_, err = idx.Decode(database.Address(1 << 40))
	assert.ErrorIs(t, err, ndb.ErrCorrupt)
	// A bad address is sticky until the store validates again.
	require.NoError(t, idx.Validate(context.Background()))
	_, err = idx.Decode(addr)
	require.NoError(t, err)
}

func TestIndex_SignaturesAndPurge(t *testing.T) {
	idx, _ := openIndex(t)

	sig, err := idx.Signature("Lp/T;")
	require.NoError(t, err)
	found, err := idx.LookupSignature("Lp/T;")
	require.NoError(t, err)
	assert.Equal(t, sig, found)

	c, err := idx.CreateClass(sig)
	require.NoError(t, err)
	users, err := idx.Users(sig)
	require.NoError(t, err)
	assert.Equal(t, []database.Address{c}, users)
	refs, err := idx.References(sig)
	require.NoError(t, err)
	assert.Equal(t, 1, refs)

	n, err := idx.Purge()
	require.NoError(t, err)
	assert.Zero(t, n, "referenced signatures survive a purge")

	require.NoError(t, idx.Delete(c))
	n, err = idx.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err = idx.LookupSignature("Lp/T;")
	require.NoError(t, err)
	assert.True(t, found.IsNull())
}

func TestIndex_DeleteNestedConstant(t *testing.T) {
	idx, _ := openIndex(t)

	arr, err := idx.Create(constant.Array{constant.Class{Signature: "LFoo;"}})
	require.NoError(t, err)
	sig, err := idx.LookupSignature("LFoo;")
	require.NoError(t, err)
	users, err := idx.Users(sig)
	require.NoError(t, err)
	require.Len(t, users, 1)

	owner, err := idx.Owner(users[0])
	require.NoError(t, err)
	assert.Equal(t, arr, owner)

	err = idx.Delete(users[0])
	assert.ErrorIs(t, err, ndb.ErrInvariant)
	assert.ErrorIs(t, err, constant.ErrOwned)

	got, err := idx.Decode(arr)
	require.NoError(t, err)
	assert.Equal(t, constant.Array{constant.Class{Signature: "LFoo;"}}, got)

	require.NoError(t, idx.Delete(arr))
	c, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, c.Total())
}

func TestIndex_ReopenAndVersions(t *testing.T) {
	idx, path := openIndex(t)
	addr, err := idx.Create(constant.Enum{Type: "Lp/E;", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Decode(addr)
	assert.ErrorIs(t, err, ndb.ErrClosed)

	ro, err := ndb.Open(path, ndb.WithReadOnly())
	require.NoError(t, err)
	v, err := ro.Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, constant.Enum{Type: "Lp/E;", Name: "A"}, v)
	_, err = ro.Create(constant.Int(1))
	assert.ErrorIs(t, err, ndb.ErrReadOnly)
	require.NoError(t, ro.Close())

	_, err = ndb.Open(path, ndb.WithSchemaVersion(constant.SchemaVersion+1))
	assert.ErrorIs(t, err, ndb.ErrIncompatibleVersion)
}

func TestIndex_UncleanShutdown(t *testing.T) {
	idx, path := openIndex(t)
	_, err := idx.Create(constant.Int(1))
	require.NoError(t, err)
	require.NoError(t, idx.Flush())

	// The first Index still holds the store open.
	_, err = ndb.Open(path, ndb.WithReadOnly())
	assert.ErrorIs(t, err, ndb.ErrUncleanShutdown)
}

func TestIndex_CapacityLimit(t *testing.T) {
	idx, _ := openIndex(t, ndb.WithCapacityLimit(2*testChunk))

	var err error
	for i := 0; i < 10000 && err == nil; i++ {
		_, err = idx.Create(constant.String(string(bytes.Repeat([]byte{'x'}, 512))))
	}
	assert.ErrorIs(t, err, ndb.ErrCapacity)

	// The store stays usable.
	require.NoError(t, idx.Validate(context.Background()))
}

func TestIndex_SnapshotRestore(t *testing.T) {
	metrics := &ndb.BasicMetricsCollector{}
	idx, _ := openIndex(t, ndb.WithMetricsCollector(metrics), ndb.WithCompression(persistence.CompressionLZ4))

	arr := constant.Array{constant.Int(1), constant.String("two"), constant.Double(3)}
	addr, err := idx.Create(arr)
	require.NoError(t, err)

	dir := t.TempDir()
	snap := filepath.Join(dir, "index.ndbs")
	info, err := idx.SaveSnapshot(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, persistence.CompressionLZ4, info.Compression)
	assert.Equal(t, int64(1), metrics.GetStats().SnapshotCount)

	var buf bytes.Buffer
	streamed, err := idx.Snapshot(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, info.Checksum, streamed.Checksum)

	verified, err := ndb.VerifySnapshot(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, info.ImageSize, verified.ImageSize)

	restored := filepath.Join(dir, "restored.ndb")
	_, err = ndb.RestoreSnapshot(context.Background(), snap, restored)
	require.NoError(t, err)

	other, err := ndb.Open(restored)
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, idx.Stats().ID, other.Stats().ID)
	v, err := other.Decode(addr)
	require.NoError(t, err)
	assert.True(t, constant.Equal(arr, v))

	damaged := buf.Bytes()
	damaged[len(damaged)/2] ^= 0xFF
	_, err = ndb.VerifySnapshot(context.Background(), bytes.NewReader(damaged))
	assert.ErrorIs(t, err, ndb.ErrInvalidSnapshot)
}

func TestOpenMemory(t *testing.T) {
	idx, err := ndb.OpenMemory(ndb.WithChunkSize(testChunk), ndb.WithInternBuckets(8))
	require.NoError(t, err)
	defer idx.Close()

	addr, err := idx.Create(constant.Float(1.5))
	require.NoError(t, err)
	v, err := idx.Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, constant.Float(1.5), v)
	assert.Empty(t, idx.Stats().Path)
}
