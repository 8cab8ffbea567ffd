package main

import (
	"errors"
	"sync/atomic"

	"trashcan"
	"trashcan/internal/history"
	"trashcan/internal/safety"
)

// outcomeTally counts completed deletions and, with a database, records them.
type outcomeTally struct {
	db *history.DB

	completed atomic.Int64
	failed    atomic.Int64
	refused   atomic.Int64
}

func (o *outcomeTally) Record(out trashcan.Outcome) error {
	o.completed.Add(1)
	if out.Err != nil {
		if refusedBySafety(out.Err) {
			o.refused.Add(1)
		} else {
			o.failed.Add(1)
		}
	}

	if o.db == nil {
		return nil
	}
	r := history.Record{
		Path:          out.Path,
		CanonicalPath: out.Canonical,
		Strategy:      out.Strategy.String(),
		Duration:      out.Duration,
		Status:        history.StatusOK,
	}
	if out.Err != nil {
		r.Status = history.StatusError
		r.ErrorMessage = out.Err.Error()
	}
	return o.db.Record(r)
}

func (o *outcomeTally) counts() (completed, failed, refused int64) {
	return o.completed.Load(), o.failed.Load(), o.refused.Load()
}

func refusedBySafety(err error) bool {
	for _, target := range []error{
		safety.ErrInvalidPath,
		safety.ErrProtectedPath,
		safety.ErrOutsideAllowed,
		safety.ErrTraversal,
		safety.ErrSymlinkEscape,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
