package mmap

import (
	"io"
	"sync/atomic"
)

// Mapping represents a memory-mapped range of a file or anonymous memory.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data     []byte
	size     int
	writable bool
	anon     bool
	closed   atomic.Bool
	unmap    func([]byte) error
}

// MapFile maps size bytes of the file behind fd, starting at offset, as a
// shared mapping. Writes through a writable mapping reach the file.
// offset must be a multiple of the page size.
func MapFile(fd uintptr, offset int64, size int, writable bool) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	data, unmapFunc, err := osMapFile(fd, offset, size, writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: writable,
		unmap:    unmapFunc,
	}, nil
}

// MapAnon creates a read-write anonymous mapping of size bytes. The memory is
// zero-filled and lives outside the Go heap.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmapFunc, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:     data,
		size:     size,
		writable: true,
		anon:     true,
		unmap:    unmapFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		err := m.unmap(m.data)
		m.data = nil
		return err
	}
	return nil
}

// Bytes returns the underlying byte slice.
// The slice is valid only until Close is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping accepts writes.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Sync flushes dirty pages of a file mapping to the backing file.
// It is a no-op for anonymous and read-only mappings.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.anon || !m.writable || m.data == nil {
		return nil
	}
	return osSync(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
