// Package trashcan deletes files and directory trees in the background.
//
// A Trashcan hands every dispatched path to one of four strategies chosen
// from its thread and process counts:
//
//	threads  processes  strategy
//	0        0          synchronous: delete on the calling goroutine
//	N        0          thread-pooled: N goroutines
//	0        M          process-pooled: M worker processes
//	N        M          process-pooled-with-threads: M workers, N goroutines each
//
// Dispatch never reports a failure to its caller. Failures are logged at
// error level as "Exception deleting {path}" once the deletion completes.
//
// Process strategies re-execute the running binary as a worker, so programs
// that use them must call ServeWorkerIfRequested at the top of main (and
// tests at the top of TestMain).
package trashcan
