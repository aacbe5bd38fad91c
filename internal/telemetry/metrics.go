package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flapjack",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by method and route pattern.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route"},
)

var DocumentsIndexedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "documents",
		Name:      "indexed_total",
		Help:      "Total number of documents indexed, by tenant index.",
	},
	[]string{"index"},
)

var DocumentsDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "documents",
		Name:      "deleted_total",
		Help:      "Total number of documents deleted, by tenant index.",
	},
	[]string{"index"},
)

var SearchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flapjack",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Search query execution duration in seconds, by index.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"index"},
)

var AuthDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "auth",
		Name:      "denied_total",
		Help:      "Total number of authentication/authorization denials, by reason.",
	},
	[]string{"reason"},
)

var ReplicationShippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "replication",
		Name:      "shipped_total",
		Help:      "Total number of oplog entries shipped to a peer.",
	},
	[]string{"peer"},
)

var ReplicationErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "replication",
		Name:      "errors_total",
		Help:      "Total number of failed replication shipments, by peer.",
	},
	[]string{"peer"},
)

var PausedIndexesGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "flapjack",
		Name:      "paused_indexes",
		Help:      "Current number of indexes with writes paused.",
	},
)

var FingerprintMismatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flapjack",
		Subsystem: "embedder",
		Name:      "fingerprint_mismatch_total",
		Help:      "Total number of embedder fingerprint mismatches detected at startup, by tenant.",
	},
	[]string{"tenant"},
)

// ReplicationCollector adapts the package-level replication counters to the
// narrow interface pkg/oplog's Shipper depends on, so that package never
// imports prometheus directly.
type ReplicationCollector struct{}

func (ReplicationCollector) IncShipped(peer string) { ReplicationShippedTotal.WithLabelValues(peer).Inc() }
func (ReplicationCollector) IncErrors(peer string)  { ReplicationErrorsTotal.WithLabelValues(peer).Inc() }

// All returns every flapjack metric for registration against a Registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		DocumentsIndexedTotal,
		DocumentsDeletedTotal,
		SearchDuration,
		AuthDeniedTotal,
		ReplicationShippedTotal,
		ReplicationErrorsTotal,
		PausedIndexesGauge,
		FingerprintMismatchTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors plus every flapjack metric.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
