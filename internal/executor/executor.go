// Package executor runs deletions either inline or on a fixed pool of goroutines.
package executor

import (
	"errors"

	"trashcan/internal/future"
)

// ErrClosed is the outcome of work submitted after Shutdown.
var ErrClosed = errors.New("executor: cannot submit after shutdown")

// Executor accepts one path at a time and hands back its completion handle.
type Executor interface {
	// Submit schedules deletion of path. It never reports deletion failure
	// directly; the returned future carries it.
	Submit(path string) *future.Future

	// Shutdown stops accepting work and blocks until submitted work finished.
	// Calling it more than once is safe.
	Shutdown() error
}
