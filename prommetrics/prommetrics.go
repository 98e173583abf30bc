// Package prommetrics exports ndb operation metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	idx, _ := ndb.Open("index.ndb", ndb.WithMetricsCollector(prommetrics.New(reg, "ndb")))
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
)

// Collector implements ndb.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	creates     *prometheus.CounterVec
	purged      prometheus.Counter
	streamBytes *prometheus.CounterVec
	fileSize    prometheus.Gauge
	highWater   prometheus.Gauge
	liveBlocks  prometheus.Gauge
	liveBytes   prometheus.Gauge
	freeBlocks  prometheus.Gauge
	freeBytes   prometheus.Gauge
}

var _ ndb.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Store operations by outcome.",
		}, []string{"op", "status"}),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constants_created_total",
			Help:      "Constants created by variant.",
		}, []string{"tag"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interned_purged_total",
			Help:      "Interned records released by purges.",
		}),
		streamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes_total",
			Help:      "Bytes of snapshot streams written and restored.",
		}, []string{"direction"}),
		fileSize:   gauge("file_size_bytes", "Size of the store file."),
		highWater:  gauge("high_water_bytes", "Offset of the first never-allocated byte."),
		liveBlocks: gauge("live_blocks", "Allocated records."),
		liveBytes:  gauge("live_bytes", "Bytes held by allocated records."),
		freeBlocks: gauge("free_blocks", "Free blocks available for reuse."),
		freeBytes:  gauge("free_bytes", "Bytes held by free blocks."),
	}

	reg.MustRegister(
		c.opLatency, c.ops, c.creates, c.purged, c.streamBytes,
		c.fileSize, c.highWater, c.liveBlocks, c.liveBytes, c.freeBlocks, c.freeBytes,
	)
	return c
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ops.WithLabelValues(op, status).Inc()
}

// RecordCreate implements ndb.MetricsCollector.
func (c *Collector) RecordCreate(tag constant.Tag, d time.Duration, err error) {
	c.observe("create", d, err)
	if err == nil {
		c.creates.WithLabelValues(tag.String()).Inc()
	}
}

// RecordDecode implements ndb.MetricsCollector.
func (c *Collector) RecordDecode(d time.Duration, err error) {
	c.observe("decode", d, err)
}

// RecordDelete implements ndb.MetricsCollector.
func (c *Collector) RecordDelete(d time.Duration, err error) {
	c.observe("delete", d, err)
}

// RecordPurge implements ndb.MetricsCollector.
func (c *Collector) RecordPurge(released int, d time.Duration, err error) {
	c.observe("purge", d, err)
	c.purged.Add(float64(released))
}

// RecordSnapshot implements ndb.MetricsCollector.
func (c *Collector) RecordSnapshot(bytes int64, d time.Duration, err error) {
	c.observe("snapshot", d, err)
	if err == nil {
		c.streamBytes.WithLabelValues("write").Add(float64(bytes))
	}
}

// RecordRestore implements ndb.MetricsCollector.
func (c *Collector) RecordRestore(bytes int64, d time.Duration, err error) {
	c.observe("restore", d, err)
	if err == nil {
		c.streamBytes.WithLabelValues("restore").Add(float64(bytes))
	}
}

// RecordStats implements ndb.MetricsCollector.
func (c *Collector) RecordStats(s database.Stats) {
	c.fileSize.Set(float64(s.FileSize))
	c.highWater.Set(float64(s.HighWater))
	c.liveBlocks.Set(float64(s.LiveBlocks))
	c.liveBytes.Set(float64(s.LiveBytes))
	c.freeBlocks.Set(float64(s.FreeBlocks))
	c.freeBytes.Set(float64(s.FreeBytes))
}
