package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster topology metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_nodes_total",
			Help: "Total number of known data nodes by down/up status",
		},
		[]string{"status"},
	)

	ConfigRevision = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cbcore_config_revision",
			Help: "Revision number of the last accepted cluster topology document",
		},
	)

	ConfigFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbcore_config_fetches_total",
			Help: "Total topology fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// Connection pool metrics
	PoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_pool_connections",
			Help: "Current number of pooled connections to a node",
		},
		[]string{"node"},
	)

	PoolInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_pool_connections_in_use",
			Help: "Current number of pooled connections checked out to an operation",
		},
		[]string{"node"},
	)

	PoolWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbcore_pool_acquire_wait_seconds",
			Help:    "Time spent waiting to acquire a pooled connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	// IO service metrics
	IOErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbcore_io_errors_total",
			Help: "Total transport-level IO errors observed per node",
		},
		[]string{"node"},
	)

	OpaqueTableDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_opaque_table_depth",
			Help: "Number of in-flight operations awaiting a response on a multiplexed connection",
		},
		[]string{"node"},
	)

	NodeDown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_node_down",
			Help: "Whether a node is currently quarantined (1) or live (0)",
		},
		[]string{"node"},
	)

	KVOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbcore_kv_operations_total",
			Help: "Total key/value operations by opcode and result status",
		},
		[]string{"opcode", "status"},
	)

	KVOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbcore_kv_operation_duration_seconds",
			Help:    "Key/value operation round-trip latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbcore_retries_total",
			Help: "Total operation retries by reason (not_my_vbucket, busy, temp_failure, transport)",
		},
		[]string{"reason"},
	)

	// HTTP dispatcher metrics
	HTTPURIFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbcore_http_uri_failures_total",
			Help: "Total failed requests against an HTTP service URI",
		},
		[]string{"service", "uri"},
	)

	HTTPURIHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbcore_http_uri_healthy",
			Help: "Set to 1 when an HTTP service URI is rehabilitated by the background prober",
		},
		[]string{"service", "uri"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbcore_http_request_duration_seconds",
			Help:    "HTTP dispatcher request duration by service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		ConfigRevision,
		ConfigFetchesTotal,
		PoolSize,
		PoolInUse,
		PoolWaitDuration,
		IOErrorsTotal,
		OpaqueTableDepth,
		NodeDown,
		KVOperationsTotal,
		KVOperationDuration,
		RetriesTotal,
		HTTPURIFailuresTotal,
		HTTPURIHealthy,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
