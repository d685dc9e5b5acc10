package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.PacketProcessed(100)
	m.PacketProcessed(200)
	m.PacketDropped(DropUnparsed)
	m.EntryCreated("flows")
	m.Purged("flows", 3, 7)
	m.Classified("guess")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsProcessed))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.BytesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues(DropUnparsed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EntriesPurged.WithLabelValues("flows")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveEntries.WithLabelValues("flows")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("guess")))

	n, err := testutil.GatherAndCount(reg, "nettop_packets_processed_total", "nettop_refcount_underflows_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, m.Register(reg), "registering twice fails")
}
