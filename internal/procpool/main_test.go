package procpool

import (
	"os"
	"testing"

	"trashcan/internal/fsops"
)

// TestMain doubles as the worker entry point: the pool re-executes this test
// binary with EnvWorker set. Metrics are left for New to initialize.
func TestMain(m *testing.M) {
	if IsWorker() {
		if err := ServeWorker(fsops.OSDeleter{}); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}
