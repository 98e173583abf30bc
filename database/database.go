package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/ndb/internal/fs"
	"github.com/hupe1980/ndb/internal/mmap"
)

// Database is a growable, memory-mapped address space.
//
// Records are allocated as blocks inside fixed-size chunks. Each chunk is
// mapped once and never remapped, so byte slices returned by Bytes stay
// valid until Close.
//
// A Database supports one writer and any number of concurrent readers.
// Allocation, release and growth are serialized internally; writes to record
// bytes are not, and the caller publishes an address only after the record
// is fully written.
type Database struct {
	opts   Options
	path   string
	file   fs.File // nil for in-memory stores
	logger *slog.Logger

	chunkLog2 uint
	chunkSize uint64

	chunks    atomic.Pointer[[]*mmap.Mapping]
	highWater atomic.Uint64

	mu   sync.Mutex // allocator, growth, header
	hdr  header
	free *freeIndex

	liveBlocks atomic.Int64
	liveBytes  atomic.Int64
	freeBlocks atomic.Int64
	freeBytes  atomic.Int64

	reserved int64 // capacity held in opts.Resources
	fatal    atomic.Pointer[CorruptionError]
	closed   atomic.Bool
}

// Open opens the store at path, creating it if it does not exist.
//
// Opening an existing store checks the format version, schema version and
// layout fingerprint (ErrIncompatibleVersion), the header checksum and block
// chain (ErrCorrupt) and the clean-shutdown flag (ErrUncleanShutdown).
func Open(path string, optFns ...Option) (*Database, error) {
	opts, err := applyOptions(optFns)
	if err != nil {
		return nil, err
	}

	_, statErr := opts.FileSystem.Stat(path)
	switch {
	case statErr == nil:
		return openExisting(path, opts)
	case errors.Is(statErr, os.ErrNotExist):
		if opts.ReadOnly {
			return nil, fmt.Errorf("database: open %s: %w", path, statErr)
		}
		return create(path, opts)
	default:
		return nil, fmt.Errorf("database: stat %s: %w", path, statErr)
	}
}

// OpenMemory creates a store backed by anonymous memory. Nothing is persisted.
func OpenMemory(optFns ...Option) (*Database, error) {
	opts, err := applyOptions(optFns)
	if err != nil {
		return nil, err
	}
	opts.ReadOnly = false

	db := newDatabase("", nil, opts, uint(bits.TrailingZeros(uint(opts.ChunkSize))))
	db.hdr = header{
		formatVersion: FormatVersion,
		chunkLog2:     uint8(db.chunkLog2),
		schemaVersion: opts.SchemaVersion,
		fingerprint:   opts.Fingerprint,
		id:            uuid.New(),
	}
	if err := db.grow(); err != nil {
		return nil, err
	}
	db.highWater.Store(HeaderSize)
	db.writeHeader()
	return db, nil
}

func newDatabase(path string, file fs.File, opts Options, chunkLog2 uint) *Database {
	db := &Database{
		opts:      opts,
		path:      path,
		file:      file,
		logger:    opts.Logger.With(slog.String("store", path)),
		chunkLog2: chunkLog2,
		chunkSize: 1 << chunkLog2,
		free:      newFreeIndex(),
	}
	empty := make([]*mmap.Mapping, 0, 8)
	db.chunks.Store(&empty)
	return db
}

func create(path string, opts Options) (*Database, error) {
	f, err := opts.FileSystem.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("database: create %s: %w", path, err)
	}

	db := newDatabase(path, f, opts, uint(bits.TrailingZeros(uint(opts.ChunkSize))))
	db.hdr = header{
		formatVersion: FormatVersion,
		chunkLog2:     uint8(db.chunkLog2),
		flags:         flagDirty,
		schemaVersion: opts.SchemaVersion,
		fingerprint:   opts.Fingerprint,
		id:            uuid.New(),
	}
	if err := db.grow(); err != nil {
		_ = f.Close()
		_ = opts.FileSystem.Remove(path)
		return nil, err
	}
	db.highWater.Store(HeaderSize)
	db.writeHeader()
	if err := db.syncHeader(); err != nil {
		_ = db.unmapAll()
		_ = f.Close()
		return nil, err
	}

	db.logger.Info("created store", slog.String("id", db.hdr.id.String()), slog.Int("chunk_size", opts.ChunkSize))
	return db, nil
}

func openExisting(path string, opts Options) (*Database, error) {
	flag := os.O_RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := opts.FileSystem.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	db, err := attach(path, f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return db, nil
}

func attach(path string, f fs.File, opts Options) (*Database, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &CorruptionError{Op: "open", Reason: "file shorter than header"}
		}
		return nil, fmt.Errorf("database: read header: %w", err)
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if hdr.schemaVersion != opts.SchemaVersion {
		return nil, &IncompatibleVersionError{Field: "schema version", Stored: uint64(hdr.schemaVersion), Expected: uint64(opts.SchemaVersion)}
	}
	if hdr.fingerprint != opts.Fingerprint {
		return nil, &IncompatibleVersionError{Field: "layout fingerprint", Stored: uint64(hdr.fingerprint), Expected: uint64(opts.Fingerprint)}
	}
	if hdr.dirty() && !opts.RecoverUnclean {
		return nil, ErrUncleanShutdown
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("database: stat: %w", err)
	}
	db := newDatabase(path, f, opts, uint(hdr.chunkLog2))
	db.hdr = hdr

	size := uint64(info.Size())
	if size == 0 || size%db.chunkSize != 0 {
		return nil, &CorruptionError{Op: "open", Reason: fmt.Sprintf("file size %d is not a multiple of chunk size %d", size, db.chunkSize)}
	}
	for i := uint64(0); i < size/db.chunkSize; i++ {
		if err := db.mapChunk(i); err != nil {
			_ = db.unmapAll()
			db.opts.Resources.ReleaseCapacity(db.reserved)
			return nil, err
		}
	}

	if err := db.rebuild(hdr.dirty()); err != nil {
		_ = db.unmapAll()
		db.opts.Resources.ReleaseCapacity(db.reserved)
		return nil, err
	}

	if !opts.ReadOnly {
		db.hdr.flags |= flagDirty
		db.writeHeader()
		if err := db.syncHeader(); err != nil {
			_ = db.unmapAll()
			db.opts.Resources.ReleaseCapacity(db.reserved)
			return nil, err
		}
	}

	db.logger.Info("opened store",
		slog.String("id", hdr.id.String()),
		slog.Uint64("high_water", db.highWater.Load()),
		slog.Bool("recovered", hdr.dirty()),
	)
	return db, nil
}

// Close flushes the store, marks it cleanly shut down and releases the mapping.
func (db *Database) Close() error {
	if db.closed.Load() {
		return nil
	}

	var errs []error
	if !db.opts.ReadOnly && db.fatal.Load() == nil {
		db.mu.Lock()
		db.hdr.flags &^= flagDirty
		db.mu.Unlock()
		if err := db.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	db.closed.Store(true)
	if err := db.unmapAll(); err != nil {
		errs = append(errs, err)
	}
	if db.file != nil {
		if err := db.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	db.opts.Resources.ReleaseCapacity(db.reserved)
	db.reserved = 0

	db.logger.Info("closed store")
	return errors.Join(errs...)
}

// Flush writes the header and msyncs every chunk.
func (db *Database) Flush() error {
	if err := db.check(); err != nil {
		return err
	}
	if db.opts.ReadOnly {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.writeHeader()
	for _, m := range *db.chunks.Load() {
		if err := m.Sync(); err != nil {
			return fmt.Errorf("database: msync: %w", err)
		}
	}
	if db.file != nil {
		if err := db.file.Sync(); err != nil {
			return fmt.Errorf("database: fsync: %w", err)
		}
	}
	return nil
}

// Root returns the root record address.
func (db *Database) Root() Address {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.hdr.root
}

// SetRoot stores the address of the root record in the header.
func (db *Database) SetRoot(addr Address) error {
	if err := db.checkWritable(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hdr.root = addr
	db.writeHeader()
	return nil
}

// ID returns the store id generated at creation.
func (db *Database) ID() uuid.UUID {
	return db.hdr.id
}

// Path returns the backing file path ("" for in-memory stores).
func (db *Database) Path() string {
	return db.path
}

// ChunkSize returns the chunk size of the store.
func (db *Database) ChunkSize() int {
	return int(db.chunkSize)
}

// MaxRecordSize is the largest record Allocate accepts.
func (db *Database) MaxRecordSize() int {
	return int(db.chunkSize) - BlockHeaderSize
}

// ReadOnly reports whether the store was opened read-only.
func (db *Database) ReadOnly() bool {
	return db.opts.ReadOnly
}

// Err returns the sticky corruption error, or nil.
func (db *Database) Err() error {
	if e := db.fatal.Load(); e != nil {
		return e
	}
	return nil
}

// Stats describes the state of the address space.
type Stats struct {
	ID            uuid.UUID
	Path          string
	ReadOnly      bool
	SchemaVersion uint32
	Fingerprint   uint32
	Root          Address
	ChunkSize     int
	Chunks        int
	FileSize      int64
	HighWater     uint64
	LiveBlocks    int64
	LiveBytes     int64
	FreeBlocks    int64
	FreeBytes     int64
}

// Stats returns a snapshot of the address space counters.
func (db *Database) Stats() Stats {
	n := len(*db.chunks.Load())
	db.mu.Lock()
	root := db.hdr.root
	db.mu.Unlock()
	return Stats{
		ID:            db.hdr.id,
		Path:          db.path,
		ReadOnly:      db.opts.ReadOnly,
		SchemaVersion: db.hdr.schemaVersion,
		Fingerprint:   db.hdr.fingerprint,
		Root:          root,
		ChunkSize:     int(db.chunkSize),
		Chunks:        n,
		FileSize:      int64(n) * int64(db.chunkSize),
		HighWater:     db.highWater.Load(),
		LiveBlocks:    db.liveBlocks.Load(),
		LiveBytes:     db.liveBytes.Load(),
		FreeBlocks:    db.freeBlocks.Load(),
		FreeBytes:     db.freeBytes.Load(),
	}
}

func (db *Database) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	if e := db.fatal.Load(); e != nil {
		return e
	}
	return nil
}

func (db *Database) checkWritable() error {
	if err := db.check(); err != nil {
		return err
	}
	if db.opts.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// corrupt records a sticky corruption error and returns it.
func (db *Database) corrupt(op string, addr Address, cause error, format string, args ...any) error {
	e := &CorruptionError{Op: op, Addr: addr, Reason: fmt.Sprintf(format, args...), Err: cause}
	if db.fatal.CompareAndSwap(nil, e) {
		db.logger.Error("store corrupted", slog.String("op", op), slog.String("addr", addr.String()), slog.String("reason", e.Reason))
	}
	return e
}

// writeHeader encodes the in-memory header into chunk 0. Caller holds mu.
func (db *Database) writeHeader() {
	if db.opts.ReadOnly {
		return
	}
	db.hdr.highWater = db.highWater.Load()
	chunks := *db.chunks.Load()
	db.hdr.encode(chunks[0].Bytes()[:HeaderSize])
}

func (db *Database) syncHeader() error {
	chunks := *db.chunks.Load()
	if err := chunks[0].Sync(); err != nil {
		return fmt.Errorf("database: msync header: %w", err)
	}
	return nil
}

func (db *Database) mapChunk(i uint64) error {
	if err := db.opts.Resources.AcquireCapacity(int64(db.chunkSize)); err != nil {
		return fmt.Errorf("%w: %w", ErrCapacity, err)
	}

	var (
		m   *mmap.Mapping
		err error
	)
	if db.file == nil {
		m, err = mmap.MapAnon(int(db.chunkSize))
	} else {
		m, err = mmap.MapFile(db.file.Fd(), int64(i*db.chunkSize), int(db.chunkSize), !db.opts.ReadOnly)
	}
	if err != nil {
		db.opts.Resources.ReleaseCapacity(int64(db.chunkSize))
		return fmt.Errorf("%w: map chunk %d: %w", ErrCapacity, i, err)
	}
	db.reserved += int64(db.chunkSize)
	_ = m.Advise(db.opts.Access)

	old := *db.chunks.Load()
	next := append(slices.Clip(old), m)
	db.chunks.Store(&next)
	return nil
}

// grow appends one chunk to the store. Caller holds mu (or owns db exclusively).
func (db *Database) grow() error {
	n := uint64(len(*db.chunks.Load()))
	if db.file != nil {
		size := (n + 1) * db.chunkSize
		if err := db.file.Truncate(int64(size)); err != nil {
			return fmt.Errorf("%w: grow to %d bytes: %w", ErrCapacity, size, err)
		}
	}
	if err := db.mapChunk(n); err != nil {
		if db.file != nil {
			_ = db.file.Truncate(int64(n * db.chunkSize))
		}
		return err
	}
	db.logger.Debug("grew store", slog.Uint64("chunks", n+1))
	return nil
}

func (db *Database) unmapAll() error {
	var errs []error
	for _, m := range *db.chunks.Load() {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	empty := []*mmap.Mapping{}
	db.chunks.Store(&empty)
	return errors.Join(errs...)
}
