package executor

import (
	"sync/atomic"

	"trashcan/internal/fsops"
	"trashcan/internal/future"
)

// Inline runs each deletion on the submitting goroutine and returns an
// already-resolved future, so callers see the same contract as a pool.
type Inline struct {
	deleter fsops.Deleter
	closed  atomic.Bool
}

func NewInline(d fsops.Deleter) *Inline {
	return &Inline{deleter: d}
}

func (e *Inline) Submit(path string) *future.Future {
	if e.closed.Load() {
		return future.Resolved(ErrClosed)
	}
	return future.Run(func() error {
		return e.deleter.Delete(path)
	})
}

// Shutdown owns no pool; it only rejects later submissions.
func (e *Inline) Shutdown() error {
	e.closed.Store(true)
	return nil
}
