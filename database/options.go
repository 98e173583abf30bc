package database

import (
	"fmt"
	"log/slog"
	"math/bits"
	"runtime"

	"github.com/hupe1980/ndb/internal/fs"
	"github.com/hupe1980/ndb/internal/mmap"
	"github.com/hupe1980/ndb/internal/resource"
)

// Options configures a Database.
type Options struct {
	// ChunkSize is the mapping and growth granularity for new stores.
	// Must be a power of two in [MinChunkSize, MaxChunkSize]. Existing
	// stores keep the chunk size they were created with.
	ChunkSize int

	// SchemaVersion and Fingerprint are stamped into new stores and must
	// match on open.
	SchemaVersion uint32
	Fingerprint   uint32

	// ReadOnly maps the store read-only; every mutation fails with ErrReadOnly.
	ReadOnly bool

	// RecoverUnclean opens a store that was not closed cleanly by scanning
	// its blocks instead of failing with ErrUncleanShutdown.
	RecoverUnclean bool

	// FileSystem opens the backing file. Defaults to fs.Default.
	FileSystem fs.FileSystem

	// Resources limits store capacity and maintenance workers. May be nil.
	Resources *resource.Controller

	// ValidateWorkers bounds the parallel chunk walk in Validate.
	ValidateWorkers int

	// Access is the madvise hint applied to every chunk.
	Access mmap.AccessPattern

	// Logger receives growth and corruption events.
	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       DefaultChunkSize,
		FileSystem:      fs.Default,
		ValidateWorkers: runtime.GOMAXPROCS(0),
		Access:          mmap.AccessRandom,
		Logger:          slog.New(slog.DiscardHandler),
	}
}

// Option configures Options.
type Option func(*Options)

// WithChunkSize sets the chunk size for newly created stores.
func WithChunkSize(n int) Option {
	return func(o *Options) { o.ChunkSize = n }
}

// WithSchemaVersion sets the expected schema version.
func WithSchemaVersion(v uint32) Option {
	return func(o *Options) { o.SchemaVersion = v }
}

// WithFingerprint sets the expected layout fingerprint.
func WithFingerprint(fp uint32) Option {
	return func(o *Options) { o.Fingerprint = fp }
}

// WithReadOnly opens the store read-only.
func WithReadOnly() Option {
	return func(o *Options) { o.ReadOnly = true }
}

// WithRecoverUnclean enables recovery of stores that were not closed cleanly.
func WithRecoverUnclean() Option {
	return func(o *Options) { o.RecoverUnclean = true }
}

// WithFileSystem sets the file system used to open the backing file.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *Options) { o.FileSystem = fsys }
}

// WithResourceController sets the resource controller.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) { o.Resources = rc }
}

// WithValidateWorkers bounds the number of chunks validated in parallel.
func WithValidateWorkers(n int) Option {
	return func(o *Options) { o.ValidateWorkers = n }
}

// WithAccessPattern sets the madvise hint for chunk mappings.
func WithAccessPattern(p mmap.AccessPattern) Option {
	return func(o *Options) { o.Access = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func applyOptions(opts []Option) (Options, error) {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.FileSystem == nil {
		o.FileSystem = fs.Default
	}
	if o.ValidateWorkers <= 0 {
		o.ValidateWorkers = 1
	}
	if o.ChunkSize < MinChunkSize || o.ChunkSize > MaxChunkSize || bits.OnesCount(uint(o.ChunkSize)) != 1 {
		return o, fmt.Errorf("database: chunk size %d must be a power of two in [%d, %d]", o.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	return o, nil
}
