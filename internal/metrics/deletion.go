package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deletion outcome labels
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Deletion subsystem metrics
var (
	// DispatchedTotal tracks paths handed to the dispatcher per strategy
	DispatchedTotal *prometheus.CounterVec

	// DeletionsTotal tracks completed deletions per strategy and status
	DeletionsTotal *prometheus.CounterVec

	// DeletionDuration tracks time from dispatch to completion
	DeletionDuration *prometheus.HistogramVec

	// WorkersActive tracks live pool workers by kind (thread, process)
	WorkersActive *prometheus.GaugeVec

	// WorkerExitsTotal tracks worker processes that exited while still owning work
	WorkerExitsTotal prometheus.Counter

	// HistoryErrorsTotal tracks failures writing deletion history
	HistoryErrorsTotal prometheus.Counter
)

// initDeletionMetrics initializes all deletion subsystem metrics
func initDeletionMetrics() {
	DispatchedTotal = NewCounterVec(
		"trashcan_dispatched_total",
		"Total number of paths dispatched for deletion.",
		[]string{"strategy"},
	)

	DeletionsTotal = NewCounterVec(
		"trashcan_deletions_total",
		"Total number of completed deletions by outcome.",
		[]string{"strategy", "status"},
	)

	DeletionDuration = NewDurationHistogramVec(
		"trashcan_deletion_duration_seconds",
		"Time from dispatch to deletion completion in seconds.",
		DeletionBuckets,
		[]string{"strategy"},
	)

	WorkersActive = NewGaugeVec(
		"trashcan_workers_active",
		"Number of live pool workers.",
		[]string{"kind"},
	)

	WorkerExitsTotal = NewCounter(
		"trashcan_worker_exits_total",
		"Total number of worker processes that exited unexpectedly.",
	)

	HistoryErrorsTotal = NewCounter(
		"trashcan_history_errors_total",
		"Total number of failures recording deletion history.",
	)
}

// registerDeletionMetrics registers all deletion metrics with Prometheus
func registerDeletionMetrics() {
	prometheus.MustRegister(DispatchedTotal)
	prometheus.MustRegister(DeletionsTotal)
	prometheus.MustRegister(DeletionDuration)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkerExitsTotal)
	prometheus.MustRegister(HistoryErrorsTotal)
}

// RecordDispatch counts a path handed to the dispatcher
func RecordDispatch(strategy string) {
	DispatchedTotal.WithLabelValues(strategy).Inc()
}

// RecordDeletion records one completed deletion
func RecordDeletion(strategy string, err error, elapsed time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	DeletionsTotal.WithLabelValues(strategy, status).Inc()
	DeletionDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// AddActiveWorkers adjusts the live worker gauge for kind by delta
func AddActiveWorkers(kind string, delta int) {
	WorkersActive.WithLabelValues(kind).Add(float64(delta))
}

// RecordWorkerExit counts a worker process lost before shutdown
func RecordWorkerExit() {
	WorkerExitsTotal.Inc()
}

// RecordHistoryError counts a failed history write
func RecordHistoryError() {
	HistoryErrorsTotal.Inc()
}
