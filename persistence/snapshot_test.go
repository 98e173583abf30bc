package persistence

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/resource"
	"github.com/hupe1980/ndb/testutil"
)

type record struct {
	addr database.Address
	data []byte
}

func populate(t *testing.T, db *database.Database, n int) []record {
	t.Helper()
	rng := testutil.NewRNG(7)
	var recs []record
	for _, size := range rng.Sizes(n, 2048) {
		addr, err := db.Allocate(size, 1)
		require.NoError(t, err)
		data := rng.Bytes(size)
		require.NoError(t, db.Write(addr, data))
		recs = append(recs, record{addr: addr, data: data})
	}
	// Leave some holes behind.
	for i := 0; i < len(recs); i += 5 {
		require.NoError(t, db.Free(recs[i].addr, len(recs[i].data)))
		recs[i].data = nil
	}
	return recs
}

func checkRecords(t *testing.T, db *database.Database, recs []record) {
	t.Helper()
	for _, r := range recs {
		if r.data == nil {
			continue
		}
		got, err := db.Read(r.addr, len(r.data))
		require.NoError(t, err)
		assert.Equal(t, r.data, got)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			db, err := database.Open(filepath.Join(dir, "src.ndb"),
				database.WithChunkSize(database.MinChunkSize), database.WithSchemaVersion(4))
			require.NoError(t, err)
			defer db.Close()

			recs := populate(t, db, 300)
			require.NoError(t, db.SetRoot(recs[1].addr))

			var buf bytes.Buffer
			info, err := Write(context.Background(), &buf, db, WithCompression(c), WithBlockSize(16<<10))
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), info.Size)
			assert.Equal(t, c, info.Compression)
			assert.Equal(t, db.ID(), info.Header.ID)
			assert.True(t, info.Header.Clean)
			if c != CompressionNone {
				assert.Less(t, info.Size, info.ImageSize+1024)
			}

			verified, err := Verify(context.Background(), bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, info.Checksum, verified.Checksum)
			assert.Equal(t, info.ImageSize, verified.ImageSize)

			dst := filepath.Join(dir, "dst.ndb")
			restored, err := Restore(context.Background(), bytes.NewReader(buf.Bytes()), dst)
			require.NoError(t, err)
			assert.Equal(t, info.Checksum, restored.Checksum)

			st, err := os.Stat(dst)
			require.NoError(t, err)
			assert.Equal(t, restored.Header.FileSize(), st.Size())

			copyDB, err := database.Open(dst, database.WithSchemaVersion(4))
			require.NoError(t, err)
			defer copyDB.Close()

			require.NoError(t, copyDB.Validate(context.Background()))
			assert.Equal(t, db.ID(), copyDB.ID())
			assert.Equal(t, recs[1].addr, copyDB.Root())
			assert.Equal(t, db.Stats().LiveBlocks, copyDB.Stats().LiveBlocks)
			checkRecords(t, copyDB, recs)
		})
	}
}

func TestSnapshot_FileHelpers(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "src.ndb"), database.WithChunkSize(database.MinChunkSize))
	require.NoError(t, err)
	defer db.Close()
	recs := populate(t, db, 50)

	snap := filepath.Join(dir, "src.ndbs")
	info, err := SaveFile(context.Background(), snap, db, WithCompression(CompressionLZ4))
	require.NoError(t, err)

	st, err := os.Stat(snap)
	require.NoError(t, err)
	assert.Equal(t, info.Size, st.Size())

	dst := filepath.Join(dir, "dst.ndb")
	_, err = RestoreFile(context.Background(), snap, dst)
	require.NoError(t, err)

	restored, err := database.Open(dst)
	require.NoError(t, err)
	defer restored.Close()
	checkRecords(t, restored, recs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestSnapshot_Corruption(t *testing.T) {
	db, err := database.OpenMemory(database.WithChunkSize(database.MinChunkSize))
	require.NoError(t, err)
	defer db.Close()
	populate(t, db, 100)

	var buf bytes.Buffer
	_, err = Write(context.Background(), &buf, db, WithCompression(CompressionNone))
	require.NoError(t, err)
	good := buf.Bytes()

	t.Run("flipped byte", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[len(bad)/2] ^= 0xFF
		_, err := Verify(context.Background(), bytes.NewReader(bad))
		require.Error(t, err)
		assert.True(t, IsChecksumMismatch(err))
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Verify(context.Background(), bytes.NewReader(good[:len(good)-100]))
		assert.ErrorIs(t, err, ErrInvalidBlock)
	})

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[0] = 'X'
		_, err := Verify(context.Background(), bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("restore keeps existing target", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "dst.ndb")
		require.NoError(t, os.WriteFile(dst, []byte("keep"), 0o644))

		bad := bytes.Clone(good)
		bad[len(bad)/2] ^= 0xFF
		_, err := Restore(context.Background(), bytes.NewReader(bad), dst)
		require.Error(t, err)

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "keep", string(data))
	})
}

func TestSnapshot_Canceled(t *testing.T) {
	db, err := database.OpenMemory(database.WithChunkSize(database.MinChunkSize))
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err = Write(ctx, &buf, db)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSnapshot_RateLimited(t *testing.T) {
	db, err := database.OpenMemory(database.WithChunkSize(database.MinChunkSize))
	require.NoError(t, err)
	defer db.Close()
	recs := populate(t, db, 20)

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 64 << 20})
	var buf bytes.Buffer
	info, err := Write(context.Background(), &buf, db, WithResourceController(rc), WithCompression(CompressionZSTD))
	require.NoError(t, err)

	var img bytes.Buffer
	got, err := Read(context.Background(), &buf, &img, WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, info.Checksum, got.Checksum)
	assert.Equal(t, info.ImageSize, int64(img.Len()))
	assert.NotEmpty(t, recs)
}

func TestOptions(t *testing.T) {
	_, err := applyOptions([]Option{WithBlockSize(0)})
	assert.Error(t, err)
	_, err = applyOptions([]Option{WithCompression(Compression(9))})
	assert.ErrorIs(t, err, ErrInvalidCompression)

	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)
	_, err = ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrInvalidCompression)
}
