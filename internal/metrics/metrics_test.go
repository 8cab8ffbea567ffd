package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// TestMetricsInit verifies that Init() is idempotent and registers metrics
func TestMetricsInit(t *testing.T) {
	Init()
	Init()
	Init()

	if DispatchedTotal == nil {
		t.Error("DispatchedTotal should be initialized")
	}
	if DeletionsTotal == nil {
		t.Error("DeletionsTotal should be initialized")
	}
	if DeletionDuration == nil {
		t.Error("DeletionDuration should be initialized")
	}
	if WorkersActive == nil {
		t.Error("WorkersActive should be initialized")
	}

	// Touch labeled vectors so they are exported
	RecordDispatch("synchronous")
	RecordDeletion("synchronous", nil, time.Millisecond)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := []string{
		"trashcan_dispatched_total",
		"trashcan_deletions_total",
		"trashcan_deletion_duration_seconds",
		"trashcan_workers_active",
		"trashcan_worker_exits_total",
		"trashcan_history_errors_total",
		"trashcan_errors_total",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range mfs {
		foundMetrics[mf.GetName()] = true
	}
	for _, expected := range expectedMetrics {
		if !foundMetrics[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

func TestRecordDeletionStatus(t *testing.T) {
	Init()

	okBefore := testutil.ToFloat64(DeletionsTotal.WithLabelValues("thread-pooled", StatusOK))
	errBefore := testutil.ToFloat64(DeletionsTotal.WithLabelValues("thread-pooled", StatusError))

	RecordDeletion("thread-pooled", nil, time.Millisecond)
	RecordDeletion("thread-pooled", errors.New("boom"), time.Millisecond)
	RecordDeletion("thread-pooled", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(DeletionsTotal.WithLabelValues("thread-pooled", StatusOK)) - okBefore; got != 1 {
		t.Errorf("Expected 1 ok deletion, got %v", got)
	}
	if got := testutil.ToFloat64(DeletionsTotal.WithLabelValues("thread-pooled", StatusError)) - errBefore; got != 2 {
		t.Errorf("Expected 2 failed deletions, got %v", got)
	}
}

func TestActiveWorkers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(WorkersActive.WithLabelValues("process"))
	AddActiveWorkers("process", 3)
	AddActiveWorkers("process", -3)
	if got := testutil.ToFloat64(WorkersActive.WithLabelValues("process")); got != before {
		t.Errorf("Expected gauge back at %v, got %v", before, got)
	}
}

func TestRouterEndpoints(t *testing.T) {
	Init()
	srv := httptest.NewServer(Router())
	defer srv.Close()

	tests := []struct {
		path     string
		contains string
	}{
		{"/health", `"healthy":true`},
		{"/metrics", "trashcan_workers_active"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s failed: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("GET %s: expected 200, got %d", tt.path, resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("GET %s: body does not contain %q", tt.path, tt.contains)
			}
		})
	}
}

func TestStartServerAndShutdown(t *testing.T) {
	logger := zerolog.Nop()

	addr, err := StartServer("127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}

	again, err := StartServer("127.0.0.1:0", logger)
	if err != nil || again != addr {
		t.Errorf("Second StartServer should return running address %s, got %s (%v)", addr, again, err)
	}

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	Shutdown(ctx, logger)
	Shutdown(ctx, logger)
}
