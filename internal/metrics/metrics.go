package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Core synchronization primitives
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server

	// ErrorsTotal tracks errors of the metrics server itself
	ErrorsTotal prometheus.Counter
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initDeletionMetrics()
		initAPIMetrics()
		ErrorsTotal = NewCounter(
			"trashcan_errors_total",
			"Total number of internal errors encountered by trashcan.",
		)

		registerDeletionMetrics()
		registerAPIMetrics()
		prometheus.MustRegister(ErrorsTotal)

		// Make worker gauges visible before the first pool starts
		WorkersActive.WithLabelValues("thread").Set(0)
		WorkersActive.WithLabelValues("process").Set(0)
	})
}

// Router exposes /metrics (Prometheus) and /health
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","healthy":true}`))
	})
	return r
}

// StartServer starts the metrics HTTP server on addr and returns the bound address.
// A second call while a server is running returns the running server's address.
func StartServer(addr string, logger zerolog.Logger) (string, error) {
	Init()

	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Info().Str("addr", currentSrv.Addr).Msg("metrics server already running")
		return currentSrv.Addr, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: Router(),
	}
	currentSrv = srv

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
			ErrorsTotal.Inc()
		}
	}()

	return srv.Addr, nil
}

// Shutdown gracefully shuts down the metrics server
func Shutdown(ctx context.Context, logger zerolog.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv == nil {
		return
	}

	if err := currentSrv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
		ErrorsTotal.Inc()
	}
	currentSrv = nil
}
