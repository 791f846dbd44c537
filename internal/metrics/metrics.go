// Package metrics provides Prometheus metrics for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scanner metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strop_scans_total",
			Help: "Total directory scans by result",
		},
		[]string{"result"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strop_scan_duration_seconds",
			Help:    "Time to read one directory",
			Buckets: prometheus.DefBuckets,
		},
	)

	scansCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strop_scans_coalesced_total",
			Help: "Scan requests joined to one already in flight",
		},
	)

	// Index metrics
	indexNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strop_index_nodes",
			Help: "Number of directory nodes cached in the index",
		},
	)

	staleResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strop_index_stale_results_total",
			Help: "Scan results dropped because a newer one was already applied",
		},
	)

	// Operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strop_operations_total",
			Help: "Finished operations by kind and status",
		},
		[]string{"kind", "status"},
	)

	operationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strop_operations_active",
			Help: "Operations currently running or paused",
		},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strop_operation_duration_seconds",
			Help:    "Operation wall time from start to finish",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"kind"},
	)

	bytesCopied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strop_bytes_copied_total",
			Help: "Bytes written by copy and cross-device move",
		},
	)

	conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strop_conflicts_total",
			Help: "Destination conflicts by decision",
		},
		[]string{"decision"},
	)

	// Watcher metrics
	watchedDirs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strop_watched_directories",
			Help: "Directories with a live watch",
		},
	)

	watchRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strop_watch_refreshes_total",
			Help: "Debounced change notifications delivered",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan records a finished scan.
func RecordScan(duration time.Duration, err error, cancelled bool) {
	result := "success"
	switch {
	case cancelled:
		result = "cancelled"
	case err != nil:
		result = "error"
	}
	scansTotal.WithLabelValues(result).Inc()
	if !cancelled {
		scanDuration.Observe(duration.Seconds())
	}
}

// RecordScanCoalesced records a request that joined an in-flight scan.
func RecordScanCoalesced() {
	scansCoalesced.Inc()
}

// SetIndexNodes sets the number of cached nodes.
func SetIndexNodes(n int) {
	indexNodes.Set(float64(n))
}

// RecordStaleResult records a dropped out-of-order scan result.
func RecordStaleResult() {
	staleResults.Inc()
}

// OperationStarted increments the active operation gauge.
func OperationStarted() {
	operationsActive.Inc()
}

// RecordOperation records a finished operation and decrements the active gauge.
func RecordOperation(kind, status string, duration time.Duration) {
	operationsActive.Dec()
	operationsTotal.WithLabelValues(kind, status).Inc()
	operationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddBytesCopied adds n to the copied bytes counter.
func AddBytesCopied(n int64) {
	bytesCopied.Add(float64(n))
}

// RecordConflict records how a destination conflict was decided.
func RecordConflict(decision string) {
	conflictsTotal.WithLabelValues(decision).Inc()
}

// SetWatchedDirs sets the number of watched directories.
func SetWatchedDirs(n int) {
	watchedDirs.Set(float64(n))
}

// RecordWatchRefresh records a debounced change notification.
func RecordWatchRefresh() {
	watchRefreshes.Inc()
}
