// Package metrics exposes the flow engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"Go2NetTop/internal/engine/lifetime"
)

// Drop reasons.
const (
	DropUnparsed  = "unparsed"
	DropHostTable = "host_table_full"
	DropFlowTable = "flow_table_full"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	PacketsProcessed prometheus.Counter
	BytesProcessed   prometheus.Counter
	PacketsDropped   *prometheus.CounterVec

	EntriesCreated *prometheus.CounterVec
	EntriesPurged  *prometheus.CounterVec
	ActiveEntries  *prometheus.GaugeVec

	// Classifications counts flows that reached a final protocol, by method
	// ("dpi" or "guess").
	Classifications *prometheus.CounterVec

	RefUnderflows prometheus.CounterFunc
}

// New creates the engine metrics. Nothing is registered yet.
func New() *Metrics {
	return &Metrics{
		PacketsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nettop_packets_processed_total",
			Help: "Total number of packets accounted on a flow",
		}),
		BytesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nettop_bytes_processed_total",
			Help: "Total wire bytes of accounted packets",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nettop_packets_dropped_total",
			Help: "Total number of packets ignored by the engine",
		}, []string{"reason"}),
		EntriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nettop_entries_created_total",
			Help: "Total number of flows and hosts created",
		}, []string{"table"}),
		EntriesPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nettop_entries_purged_total",
			Help: "Total number of idle flows and hosts evicted",
		}, []string{"table"}),
		ActiveEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nettop_active_entries",
			Help: "Number of flows and hosts currently tracked",
		}, []string{"table"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nettop_classifications_total",
			Help: "Total number of flows whose protocol detection completed",
		}, []string{"method"}),
		RefUnderflows: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "nettop_refcount_underflows_total",
			Help: "Reference counts released below zero; non-zero means an ownership bug",
		}, func() float64 { return float64(lifetime.Underflows()) }),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.PacketsProcessed.Describe(ch)
	m.BytesProcessed.Describe(ch)
	m.PacketsDropped.Describe(ch)
	m.EntriesCreated.Describe(ch)
	m.EntriesPurged.Describe(ch)
	m.ActiveEntries.Describe(ch)
	m.Classifications.Describe(ch)
	m.RefUnderflows.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.PacketsProcessed.Collect(ch)
	m.BytesProcessed.Collect(ch)
	m.PacketsDropped.Collect(ch)
	m.EntriesCreated.Collect(ch)
	m.EntriesPurged.Collect(ch)
	m.ActiveEntries.Collect(ch)
	m.Classifications.Collect(ch)
	m.RefUnderflows.Collect(ch)
}

// Register registers the metrics with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	return r.Register(m)
}

// PacketProcessed records one accounted packet.
func (m *Metrics) PacketProcessed(length uint32) {
	m.PacketsProcessed.Inc()
	m.BytesProcessed.Add(float64(length))
}

// PacketDropped records one ignored packet.
func (m *Metrics) PacketDropped(reason string) {
	m.PacketsDropped.WithLabelValues(reason).Inc()
}

// EntryCreated records a new flow or host.
func (m *Metrics) EntryCreated(table string) {
	m.EntriesCreated.WithLabelValues(table).Inc()
}

// Purged records one purge pass and the table sizes after it.
func (m *Metrics) Purged(table string, removed, active int) {
	m.EntriesPurged.WithLabelValues(table).Add(float64(removed))
	m.ActiveEntries.WithLabelValues(table).Set(float64(active))
}

// Classified records a flow whose detection completed.
func (m *Metrics) Classified(method string) {
	m.Classifications.WithLabelValues(method).Inc()
}
