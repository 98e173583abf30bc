package ndb

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prommetrics package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordCreate is called after each constant is created.
	RecordCreate(tag constant.Tag, duration time.Duration, err error)

	// RecordDecode is called after each constant is decoded.
	RecordDecode(duration time.Duration, err error)

	// RecordDelete is called after each constant is deleted.
	RecordDelete(duration time.Duration, err error)

	// RecordPurge is called after interned records are purged.
	RecordPurge(released int, duration time.Duration, err error)

	// RecordSnapshot is called after a snapshot was written. bytes is the
	// size of the snapshot stream.
	RecordSnapshot(bytes int64, duration time.Duration, err error)

	// RecordRestore is called after a snapshot was restored.
	RecordRestore(bytes int64, duration time.Duration, err error)

	// RecordStats is called with the address space counters after every
	// mutation that may have changed them.
	RecordStats(stats database.Stats)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(constant.Tag, time.Duration, error) {}
func (NoopMetricsCollector) RecordDecode(time.Duration, error)               {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)               {}
func (NoopMetricsCollector) RecordPurge(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error)      {}
func (NoopMetricsCollector) RecordRestore(int64, time.Duration, error)       {}
func (NoopMetricsCollector) RecordStats(database.Stats)                      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount      atomic.Int64
	CreateErrors     atomic.Int64
	CreateTotalNanos atomic.Int64
	DecodeCount      atomic.Int64
	DecodeErrors     atomic.Int64
	DecodeTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	PurgedRecords    atomic.Int64
	SnapshotCount    atomic.Int64
	SnapshotBytes    atomic.Int64
	SnapshotErrors   atomic.Int64
	RestoreCount     atomic.Int64
	RestoreErrors    atomic.Int64
	FileSize         atomic.Int64
	LiveBlocks       atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(_ constant.Tag, duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordDecode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecode(duration time.Duration, err error) {
	b.DecodeCount.Add(1)
	b.DecodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DecodeErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordPurge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPurge(released int, _ time.Duration, _ error) {
	b.PurgedRecords.Add(int64(released))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(bytes)
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(_ int64, _ time.Duration, err error) {
	b.RestoreCount.Add(1)
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// RecordStats implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStats(stats database.Stats) {
	b.FileSize.Store(stats.FileSize)
	b.LiveBlocks.Store(stats.LiveBlocks)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:    b.CreateCount.Load(),
		CreateErrors:   b.CreateErrors.Load(),
		CreateAvgNanos: avg(b.CreateTotalNanos.Load(), b.CreateCount.Load()),
		DecodeCount:    b.DecodeCount.Load(),
		DecodeErrors:   b.DecodeErrors.Load(),
		DecodeAvgNanos: avg(b.DecodeTotalNanos.Load(), b.DecodeCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		PurgedRecords:  b.PurgedRecords.Load(),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotBytes:  b.SnapshotBytes.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
		RestoreCount:   b.RestoreCount.Load(),
		RestoreErrors:  b.RestoreErrors.Load(),
		FileSize:       b.FileSize.Load(),
		LiveBlocks:     b.LiveBlocks.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount    int64
	CreateErrors   int64
	CreateAvgNanos int64
	DecodeCount    int64
	DecodeErrors   int64
	DecodeAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
	PurgedRecords  int64
	SnapshotCount  int64
	SnapshotBytes  int64
	SnapshotErrors int64
	RestoreCount   int64
	RestoreErrors  int64
	FileSize       int64
	LiveBlocks     int64
}
