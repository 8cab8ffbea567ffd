// Package future provides a one-shot completion handle for background work.
//
// A Future reaches exactly one terminal state: success (nil error) or failure.
// Callbacks registered with AddDoneCallback run exactly once, either on the
// goroutine that resolves the future or, when the future is already resolved,
// immediately on the goroutine that registers them.
package future

import (
	"fmt"
	"sync"

	"trashcan/internal/log"
)

// Future is the eventual outcome of one unit of work.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	err       error
	callbacks []func(error)
}

// New returns an unresolved Future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already resolved with err.
func Resolved(err error) *Future {
	f := New()
	f.Resolve(err)
	return f
}

// Run executes fn on the calling goroutine and returns a Future holding its outcome.
// A panic in fn is captured as a failure.
func Run(fn func() error) *Future {
	f := New()
	f.Resolve(Call(fn))
	return f
}

// Call runs fn and returns its error, converting a panic into an error.
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Resolve moves the future to its terminal state. It reports false, and changes
// nothing, when the future was already resolved.
func (f *Future) Resolve(err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		invoke(cb, err)
	}
	return true
}

// AddDoneCallback registers fn to receive the terminal error (nil on success).
func (f *Future) AddDoneCallback(fn func(error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	err := f.err
	f.mu.Unlock()
	invoke(fn, err)
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved and returns its error.
func (f *Future) Wait() error {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// invoke runs a callback, keeping a panicking callback from taking the
// resolving goroutine (often a pool worker) down with it.
func invoke(fn func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("future")
			logger.Error().Interface("panic", r).Msg("exception calling done callback")
		}
	}()
	fn(err)
}
