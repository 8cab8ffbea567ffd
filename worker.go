package trashcan

import (
	"os"

	"trashcan/internal/exitcodes"
	"trashcan/internal/fsops"
	"trashcan/internal/log"
	"trashcan/internal/procpool"
)

// ServeWorkerIfRequested turns the current process into a deletion worker
// when it was started by a process pool, and exits once the pool releases
// it. Otherwise it returns immediately.
func ServeWorkerIfRequested() {
	if !procpool.IsWorker() {
		return
	}
	if err := procpool.ServeWorker(fsops.Traced(fsops.OSDeleter{})); err != nil {
		logger := log.New(os.Stderr, "worker")
		logger.Error().Err(err).Int("pid", os.Getpid()).Msg("worker stopped")
		os.Exit(exitcodes.RuntimeError)
	}
	os.Exit(exitcodes.Success)
}
