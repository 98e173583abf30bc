package ndb

import (
	"log/slog"

	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/internal/resource"
	"github.com/hupe1980/ndb/persistence"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	schemaVersion    uint32
	chunkSize        int
	capacityLimit    int64
	ioLimit          int64
	maxWorkers       int64
	internBuckets    int
	readOnly         bool
	recoverUnclean   bool
	compression      persistence.Compression
}

// Option configures Open and the snapshot operations of an Index.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &ndb.BasicMetricsCollector{}
//	idx, _ := ndb.Open("index.ndb", ndb.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Creates: %d, Avg latency: %dns\n", stats.CreateCount, stats.CreateAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := ndb.NewJSONLogger(slog.LevelInfo)
//	idx, _ := ndb.Open("index.ndb", ndb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSchemaVersion stamps new stores with version v instead of
// constant.SchemaVersion. Bump it to force existing stores to be rebuilt.
func WithSchemaVersion(v uint32) Option {
	return func(o *options) {
		o.schemaVersion = v
	}
}

// WithChunkSize sets the growth granularity of new stores. Records cannot be
// larger than a chunk.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithCapacityLimit bounds the size of the store file in bytes. Growing past
// it fails with ErrCapacity.
func WithCapacityLimit(bytes int64) Option {
	return func(o *options) {
		o.capacityLimit = bytes
	}
}

// WithIOLimit throttles snapshot, restore and archive IO to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMaxBackgroundWorkers bounds the parallelism of Validate.
func WithMaxBackgroundWorkers(n int64) Option {
	return func(o *options) {
		o.maxWorkers = n
	}
}

// WithInternBuckets sets the bucket count of the intern tables of new stores.
func WithInternBuckets(n int) Option {
	return func(o *options) {
		o.internBuckets = n
	}
}

// WithReadOnly opens the store read-only.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithRecoverUnclean opens stores that were not closed cleanly by validating
// them, instead of failing with ErrUncleanShutdown.
func WithRecoverUnclean() Option {
	return func(o *options) {
		o.recoverUnclean = true
	}
}

// WithCompression sets the compression of snapshots and archives.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		schemaVersion:    constant.SchemaVersion,
		chunkSize:        database.DefaultChunkSize,
		internBuckets:    0,
		compression:      persistence.CompressionZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) resources() *resource.Controller {
	return resource.NewController(resource.Config{
		CapacityLimitBytes:   o.capacityLimit,
		MaxBackgroundWorkers: o.maxWorkers,
		IOLimitBytesPerSec:   o.ioLimit,
	})
}

func (o options) databaseOptions(schema *constant.Schema, rc *resource.Controller) []database.Option {
	opts := []database.Option{
		database.WithChunkSize(o.chunkSize),
		database.WithSchemaVersion(o.schemaVersion),
		database.WithFingerprint(schema.Fingerprint()),
		database.WithResourceController(rc),
		database.WithLogger(o.logger.Logger),
	}
	if o.maxWorkers > 0 {
		opts = append(opts, database.WithValidateWorkers(int(o.maxWorkers)))
	}
	if o.readOnly {
		opts = append(opts, database.WithReadOnly())
	}
	if o.recoverUnclean {
		opts = append(opts, database.WithRecoverUnclean())
	}
	return opts
}

func (o options) constantOptions() []constant.Option {
	if o.internBuckets > 0 {
		return []constant.Option{constant.WithBuckets(o.internBuckets)}
	}
	return nil
}

func (o options) snapshotOptions(rc *resource.Controller) []persistence.Option {
	return []persistence.Option{
		persistence.WithCompression(o.compression),
		persistence.WithResourceController(rc),
	}
}
