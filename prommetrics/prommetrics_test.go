package prommetrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
	"github.com/hupe1980/ndb/prommetrics"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prommetrics.New(reg, "ndb")

	c.RecordCreate(constant.TagInt, time.Millisecond, nil)
	c.RecordCreate(constant.TagInt, time.Millisecond, nil)
	c.RecordCreate(constant.TagClass, time.Millisecond, errors.New("boom"))
	c.RecordPurge(3, time.Millisecond, nil)
	c.RecordSnapshot(4096, time.Millisecond, nil)
	c.RecordStats(database.Stats{FileSize: 1 << 20, LiveBlocks: 7})

	assert.InDelta(t, 2.0, gatherLabel(t, reg, "ndb_constants_created_total", "tag", "int"), 0)
	assert.InDelta(t, 0.0, gatherLabel(t, reg, "ndb_constants_created_total", "tag", "class"), 0)
	assert.InDelta(t, 1.0, gatherLabel(t, reg, "ndb_operations_total", "status", "error"), 0)
	assert.InDelta(t, 3.0, gather(t, reg, "ndb_interned_purged_total"), 0)
	assert.InDelta(t, float64(1<<20), gather(t, reg, "ndb_file_size_bytes"), 0)
	assert.InDelta(t, 7.0, gather(t, reg, "ndb_live_blocks"), 0)
	assert.InDelta(t, 4096.0, gather(t, reg, "ndb_snapshot_bytes_total"), 0)

	n, err := testutil.GatherAndCount(reg, "ndb_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "create ok, create error, purge ok, snapshot ok")
}

func TestCollector_WithIndex(t *testing.T) {
	reg := prometheus.NewRegistry()
	idx, err := ndb.OpenMemory(ndb.WithMetricsCollector(prommetrics.New(reg, "ndb")))
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Create(constant.String("x"))
	require.NoError(t, err)

	assert.Positive(t, gather(t, reg, "ndb_live_blocks"))
	assert.Positive(t, gather(t, reg, "ndb_file_size_bytes"))
}

// gather returns the sum of all samples of the named metric family.
func gather(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return gatherLabel(t, reg, name, "", "")
}

// gatherLabel sums the samples of the named family whose label matches. An
// empty label matches every sample; a missing family sums to zero.
func gatherLabel(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && !hasLabel(m.GetLabel(), label, value) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
	}
	return sum
}

func hasLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
