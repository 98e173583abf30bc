// Package mmap provides memory-mapped file and anonymous memory access.
//
// # Overview
//
// The address space maps its backing file chunk by chunk. Each chunk is a
// separate shared, writable [Mapping] of a fixed file range, so growing the
// file adds mappings without moving existing ones and previously returned
// byte slices stay valid.
//
//	m, err := mmap.MapFile(f.Fd(), off, chunkSize, true)
//	if err != nil { ... }
//	defer m.Close()
//
//	copy(m.Bytes()[128:], record)
//	m.Sync() // msync(2)
//
// [MapAnon] returns zero-filled memory outside the Go heap; in-memory stores
// use it in place of file chunks.
//
// # Platform Support
//
// Unix only (mmap(2), msync(2), madvise(2)).
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must ensure no
// goroutine touches Bytes() after Close returns.
package mmap
