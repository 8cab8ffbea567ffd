package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// API/HTTP subsystem metrics
var (
	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal tracks total HTTP requests by handler, method, status
	HTTPRequestsTotal *prometheus.CounterVec
)

// initAPIMetrics initializes all API subsystem metrics
func initAPIMetrics() {
	HTTPRequestDuration = NewDurationHistogramVec(
		"trashcan_api_request_duration_seconds",
		"HTTP request duration in seconds.",
		APIBuckets,
		[]string{"handler", "method", "status"},
	)

	HTTPRequestsTotal = NewCounterVec(
		"trashcan_api_requests_total",
		"Total HTTP requests served by the metrics endpoint.",
		[]string{"handler", "method", "status"},
	)
}

// registerAPIMetrics registers all API metrics with Prometheus
func registerAPIMetrics() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// instrument records request count and latency for every route
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.URL.Path, r.Method, strconv.Itoa(status)}
		HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
