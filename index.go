package ndb

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/resource"
	"github.com/hupe1980/ndb/persistence"
)

// Index is an open constant store. Writers are serialized by the Index;
// readers run concurrently with each other.
type Index struct {
	mu      sync.RWMutex
	db      *database.Database
	store   *constant.Store
	rc      *resource.Controller
	opts    options
	logger  *Logger
	metrics MetricsCollector
	closed  bool
}

// Open opens the store at path, creating it if it does not exist.
//
// Existing stores are checked for format, schema version and layout
// (ErrIncompatibleVersion), structural damage (ErrCorrupt) and a missing
// clean shutdown (ErrUncleanShutdown, unless WithRecoverUnclean is set).
func Open(path string, optFns ...Option) (*Index, error) {
	return open(path, optFns, func(opts ...database.Option) (*database.Database, error) {
		return database.Open(path, opts...)
	})
}

// OpenMemory creates an Index backed by anonymous memory. Nothing is
// persisted, but snapshots can still be taken.
func OpenMemory(optFns ...Option) (*Index, error) {
	return open("", optFns, database.OpenMemory)
}

func open(path string, optFns []Option, openDB func(...database.Option) (*database.Database, error)) (*Index, error) {
	o := applyOptions(optFns)
	schema := constant.NewSchema()
	rc := o.resources()
	ctx := context.Background()

	db, err := openDB(o.databaseOptions(schema, rc)...)
	if err != nil {
		o.logger.LogOpen(ctx, path, database.Stats{}, err)
		return nil, translateError(err)
	}

	store, err := constant.Open(db, schema, o.constantOptions()...)
	if err != nil {
		_ = db.Close()
		o.logger.LogOpen(ctx, path, database.Stats{}, err)
		return nil, translateError(err)
	}

	stats := db.Stats()
	idx := &Index{
		db:      db,
		store:   store,
		rc:      rc,
		opts:    o,
		logger:  o.logger.WithStore(path, stats.ID.String()),
		metrics: o.metricsCollector,
	}
	idx.logger.LogOpen(ctx, path, stats, nil)
	idx.metrics.RecordStats(stats)
	return idx, nil
}

// Close flushes the store, marks it cleanly shut down and releases the
// mapping. Closing twice is a no-op.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	err := idx.db.Close()
	idx.logger.LogClose(context.Background(), idx.db.Path(), err)
	return translateError(err)
}

// Store returns the underlying constant store. Callers using it directly
// must serialize writers themselves.
func (idx *Index) Store() *constant.Store { return idx.store }

// Database returns the underlying address space.
func (idx *Index) Database() *database.Database { return idx.db }

// Stats returns the address space counters.
func (idx *Index) Stats() database.Stats { return idx.db.Stats() }

func (idx *Index) write(fn func() error) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	err := fn()
	idx.metrics.RecordStats(idx.db.Stats())
	return translateError(err)
}

func (idx *Index) read(fn func() error) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrClosed
	}
	return translateError(fn())
}

// Create stores v and returns the address of its record.
func (idx *Index) Create(v constant.Value) (database.Address, error) {
	tag := constant.TagInvalid
	if v != nil {
		tag = v.Tag()
	}

	var addr database.Address
	start := time.Now()
	err := idx.write(func() error {
		var err error
		addr, err = idx.store.Create(v)
		return err
	})
	idx.metrics.RecordCreate(tag, time.Since(start), err)
	idx.logger.LogCreate(context.Background(), tag.String(), addr, err)
	return addr, err
}

// CreateClass stores a class constant for the interned signature sig.
func (idx *Index) CreateClass(sig database.Address) (database.Address, error) {
	var addr database.Address
	start := time.Now()
	err := idx.write(func() error {
		var err error
		addr, err = idx.store.CreateClass(sig)
		return err
	})
	idx.metrics.RecordCreate(constant.TagClass, time.Since(start), err)
	idx.logger.LogCreate(context.Background(), constant.TagClass.String(), addr, err)
	return addr, err
}

// Signature interns a type signature.
func (idx *Index) Signature(name string) (database.Address, error) {
	var addr database.Address
	err := idx.write(func() error {
		var err error
		addr, err = idx.store.Signature(name)
		return err
	})
	return addr, err
}

// LookupSignature returns the interned signature name, or database.Null.
func (idx *Index) LookupSignature(name string) (database.Address, error) {
	var addr database.Address
	err := idx.read(func() error {
		var err error
		addr, err = idx.store.LookupSignature(name)
		return err
	})
	return addr, err
}

// Tag returns the discriminator of the constant at addr.
func (idx *Index) Tag(addr database.Address) (constant.Tag, error) {
	var tag constant.Tag
	err := idx.read(func() error {
		var err error
		tag, err = idx.store.Tag(addr)
		return err
	})
	return tag, err
}

// Decode reads the constant at addr.
func (idx *Index) Decode(addr database.Address) (constant.Value, error) {
	var v constant.Value
	start := time.Now()
	err := idx.read(func() error {
		var err error
		v, err = idx.store.Decode(addr)
		return err
	})
	idx.metrics.RecordDecode(time.Since(start), err)
	return v, err
}

// DecodeAs reads the constant at addr, failing with ErrInvariant if it is
// not of variant want.
func (idx *Index) DecodeAs(addr database.Address, want constant.Tag) (constant.Value, error) {
	var v constant.Value
	start := time.Now()
	err := idx.read(func() error {
		var err error
		v, err = idx.store.DecodeAs(addr, want)
		return err
	})
	idx.metrics.RecordDecode(time.Since(start), err)
	return v, err
}

// Delete removes the constant at addr together with the records it owns.
// Interned records stay until Purge. Constants nested in an array or an
// annotation fail with ErrInvariant.
func (idx *Index) Delete(addr database.Address) error {
	start := time.Now()
	err := idx.write(func() error {
		return idx.store.Delete(addr)
	})
	idx.metrics.RecordDelete(time.Since(start), err)
	idx.logger.LogRelease(context.Background(), addr, 1, err)
	return err
}

// Purge releases interned signatures and pool strings no constant refers
// to and returns how many were released.
func (idx *Index) Purge() (int, error) {
	var n int
	start := time.Now()
	err := idx.write(func() error {
		var err error
		n, err = idx.store.Purge()
		return err
	})
	idx.metrics.RecordPurge(n, time.Since(start), err)
	idx.logger.LogRelease(context.Background(), database.Null, n, err)
	return n, err
}

// Users returns the class constants referring to the signature sig.
func (idx *Index) Users(sig database.Address) ([]database.Address, error) {
	var users []database.Address
	err := idx.read(func() error {
		var err error
		users, err = idx.store.Users(sig)
		return err
	})
	return users, err
}

// Owner returns the array or annotation a nested constant belongs to, or
// Null for a top-level constant. Nested constants are deleted with their
// owner; Delete rejects them with ErrInvariant.
func (idx *Index) Owner(addr database.Address) (database.Address, error) {
	var owner database.Address
	err := idx.read(func() error {
		var err error
		owner, err = idx.store.Owner(addr)
		return err
	})
	return owner, err
}

// References returns the number of records referring to addr.
func (idx *Index) References(addr database.Address) (int, error) {
	var n int
	err := idx.read(func() error {
		var err error
		n, err = idx.store.References(addr)
		return err
	})
	return n, err
}

// Count returns the number of constants per variant and of interned records.
func (idx *Index) Count() (constant.Counts, error) {
	var c constant.Counts
	err := idx.read(func() error {
		var err error
		c, err = idx.store.Count()
		return err
	})
	return c, err
}

// Flush writes dirty pages to disk without marking the store clean.
func (idx *Index) Flush() error {
	return idx.write(idx.db.Flush)
}

// Validate checks the block chain of the whole store. A successful
// validation clears a previously detected corruption.
func (idx *Index) Validate(ctx context.Context) error {
	err := idx.write(func() error {
		return idx.db.Validate(ctx)
	})
	idx.logger.LogValidate(ctx, idx.db.Path(), err)
	return err
}

// Snapshot streams a consistent copy of the store to w. Writers are blocked
// while the snapshot runs.
func (idx *Index) Snapshot(ctx context.Context, w io.Writer) (persistence.Info, error) {
	return idx.snapshot(ctx, "stream", func() (persistence.Info, error) {
		return persistence.Write(ctx, w, idx.db, idx.opts.snapshotOptions(idx.rc)...)
	})
}

// SaveSnapshot atomically writes a snapshot to filename.
func (idx *Index) SaveSnapshot(ctx context.Context, filename string) (persistence.Info, error) {
	return idx.snapshot(ctx, filename, func() (persistence.Info, error) {
		return persistence.SaveFile(ctx, filename, idx.db, idx.opts.snapshotOptions(idx.rc)...)
	})
}

func (idx *Index) snapshot(ctx context.Context, target string, fn func() (persistence.Info, error)) (persistence.Info, error) {
	var info persistence.Info
	start := time.Now()
	err := idx.read(func() error {
		var err error
		info, err = fn()
		return err
	})
	idx.metrics.RecordSnapshot(info.Size, time.Since(start), err)
	idx.logger.LogSnapshot(ctx, target, info.Size, err)
	return info, err
}

// RestoreSnapshot restores the snapshot file snapshot into a store file at
// path and validates the result. An existing file at path is replaced only
// if the snapshot is intact.
func RestoreSnapshot(ctx context.Context, snapshot, path string, optFns ...Option) (persistence.Info, error) {
	o := applyOptions(optFns)
	start := time.Now()
	info, err := persistence.RestoreFile(ctx, snapshot, path, o.snapshotOptions(o.resources())...)
	if err == nil {
		err = validateFile(ctx, path, o)
	}
	o.metricsCollector.RecordRestore(info.Size, time.Since(start), err)
	o.logger.LogRestore(ctx, snapshot, path, err)
	return info, translateError(err)
}

// VerifySnapshot checks the integrity of a snapshot stream without
// restoring it.
func VerifySnapshot(ctx context.Context, r io.Reader, optFns ...Option) (persistence.Info, error) {
	o := applyOptions(optFns)
	info, err := persistence.Verify(ctx, r, o.snapshotOptions(o.resources())...)
	return info, translateError(err)
}

// validateFile opens the store at path read-only with the schema checks of
// o and validates its block chain.
func validateFile(ctx context.Context, path string, o options) error {
	o.readOnly = true
	o.recoverUnclean = false
	rc := o.resources()
	db, err := database.Open(path, o.databaseOptions(constant.NewSchema(), rc)...)
	if err != nil {
		return err
	}
	verr := db.Validate(ctx)
	o.logger.LogValidate(ctx, path, verr)
	if cerr := db.Close(); verr == nil {
		verr = cerr
	}
	return verr
}
