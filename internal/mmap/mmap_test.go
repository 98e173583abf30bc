package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFile_WriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.bin")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	size := PageSize() * 2
	require.NoError(t, f.Truncate(int64(size)))

	m, err := MapFile(f.Fd(), 0, size, true)
	require.NoError(t, err)
	assert.True(t, m.Writable())
	assert.Equal(t, size, m.Size())

	copy(m.Bytes()[10:], "Hello, Mmap!")
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Mmap!", string(content[10:22]))
}

func TestMapFile_Offset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.bin")
	page := PageSize()

	data := make([]byte, page*2)
	copy(data[page:], "second page")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	m, err := MapFile(f.Fd(), int64(page), page, false)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "second page", string(m.Bytes()[:11]))
	// Read-only mappings have nothing to flush.
	assert.NoError(t, m.Sync())
}

func TestMapFile_InvalidArgs(t *testing.T) {
	_, err := MapFile(0, 0, 0, false)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapFile(0, -1, 10, false)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	b := m.Bytes()
	require.Len(t, b, 4096)
	for _, v := range b {
		require.Zero(t, v)
	}

	b[0] = 42
	assert.NoError(t, m.Sync())
	assert.NoError(t, m.Advise(AccessRandom))

	buf := make([]byte, 1)
	n, err := m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(42), buf[0])

	_, err = m.ReadAt(buf, 4096)
	assert.Equal(t, io.EOF, err)

	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Sync(), ErrClosed)
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
}
