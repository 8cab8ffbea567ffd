package trashcan

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trashcan/internal/executor"
	"trashcan/internal/fsops"
	"trashcan/internal/future"
	"trashcan/internal/log"
	"trashcan/internal/metrics"
	"trashcan/internal/procpool"
)

// ErrInvalidConfig is returned by New for negative thread or process counts.
var ErrInvalidConfig = errors.New("trashcan: invalid configuration")

// Strategy is the execution strategy a Trashcan runs deletions with.
type Strategy int

const (
	Synchronous Strategy = iota
	ThreadPooled
	ProcessPooled
	ProcessPooledWithThreads
)

func (s Strategy) String() string {
	switch s {
	case Synchronous:
		return "synchronous"
	case ThreadPooled:
		return "thread-pooled"
	case ProcessPooled:
		return "process-pooled"
	case ProcessPooledWithThreads:
		return "process-pooled-with-threads"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func strategyFor(threads, processes int) Strategy {
	switch {
	case threads > 0 && processes > 0:
		return ProcessPooledWithThreads
	case threads > 0:
		return ThreadPooled
	case processes > 0:
		return ProcessPooled
	default:
		return Synchronous
	}
}

// Deleter removes one path. It is used by the in-process strategies;
// worker processes always use the OS deleter.
type Deleter interface {
	Delete(path string) error
}

// Validator may veto a deletion before it is submitted.
type Validator interface {
	ValidateDeleteTarget(path string) error
}

// Recorder receives every completed deletion, successful or not.
// It is called from whichever goroutine completed the deletion.
type Recorder interface {
	Record(Outcome) error
}

// Outcome describes one completed deletion.
type Outcome struct {
	Path      string // as passed to Dispatch
	Canonical string // absolute path handed to the deleter; empty if never resolved
	Strategy  Strategy
	Err       error
	Duration  time.Duration // from Dispatch to completion
}

// Options configures New. The zero value deletes synchronously.
type Options struct {
	Threads   int
	Processes int

	// WorkerCommand starts a worker process; defaults to the running executable.
	WorkerCommand []string

	// Logger receives failure events; a component=trashcan field is added.
	// Defaults to the global logger.
	Logger *zerolog.Logger

	Deleter   Deleter
	Validator Validator
	Recorder  Recorder
}

// Trashcan dispatches deletions to its strategy's executor.
type Trashcan struct {
	strategy  Strategy
	exec      executor.Executor
	logger    zerolog.Logger
	validator Validator
	recorder  Recorder

	// dispatchMu is held shared by Dispatch, so an observer that runs on the
	// dispatching goroutine finishes before Shutdown can return
	dispatchMu sync.RWMutex

	stopOnce sync.Once
	stopErr  error
}

// New builds a Trashcan and starts any pool its strategy needs.
func New(opts Options) (*Trashcan, error) {
	if opts.Threads < 0 || opts.Processes < 0 {
		return nil, fmt.Errorf("%w: threads=%d processes=%d", ErrInvalidConfig, opts.Threads, opts.Processes)
	}
	metrics.Init()

	base := log.Base()
	if opts.Logger != nil {
		base = *opts.Logger
	}

	var d fsops.Deleter = fsops.Traced(fsops.OSDeleter{})
	if opts.Deleter != nil {
		d = opts.Deleter
	}

	t := &Trashcan{
		strategy:  strategyFor(opts.Threads, opts.Processes),
		logger:    base.With().Str("component", "trashcan").Logger(),
		validator: opts.Validator,
		recorder:  opts.Recorder,
	}

	switch t.strategy {
	case Synchronous:
		t.exec = executor.NewInline(d)
	case ThreadPooled:
		pool := executor.NewThreadPool(opts.Threads, d)
		metrics.AddActiveWorkers("thread", pool.Workers())
		t.exec = pool
	case ProcessPooled, ProcessPooledWithThreads:
		pool, err := procpool.New(procpool.Config{
			Processes: opts.Processes,
			Threads:   opts.Threads,
			Command:   opts.WorkerCommand,
			Logger:    base.With().Str("component", "procpool").Logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("trashcan: start %s pool: %w", t.strategy, err)
		}
		t.exec = pool
	}

	t.logger.Debug().
		Str("strategy", t.strategy.String()).
		Int("threads", opts.Threads).
		Int("processes", opts.Processes).
		Msg("trashcan ready")
	return t, nil
}

// Strategy reports the strategy selected at construction.
func (t *Trashcan) Strategy() Strategy {
	return t.strategy
}

// Dispatch schedules path for deletion and returns without waiting.
// Relative paths resolve against the working directory at the time of the
// call. Failures are only ever logged.
func (t *Trashcan) Dispatch(path string) {
	t.dispatchMu.RLock()
	defer t.dispatchMu.RUnlock()

	start := time.Now()
	metrics.RecordDispatch(t.strategy.String())

	canonical, fut := t.submit(path)
	fut.AddDoneCallback(t.observer(path, canonical, start))
}

func (t *Trashcan) submit(path string) (string, *future.Future) {
	if path == "" {
		return "", future.Resolved(&fs.PathError{Op: "dispatch", Path: path, Err: fs.ErrInvalid})
	}
	canonical, err := filepath.Abs(path)
	if err != nil {
		return "", future.Resolved(err)
	}
	if t.validator != nil {
		// the raw path, so traversal segments are still visible
		if err := t.validator.ValidateDeleteTarget(path); err != nil {
			return canonical, future.Resolved(err)
		}
	}
	return canonical, t.exec.Submit(canonical)
}

// Shutdown waits until every dispatched deletion has completed and been
// observed, then releases the pool. Dispatch calls racing with Shutdown
// either finish first or are rejected. Later calls return the first result.
// It must not be called from a completion callback.
func (t *Trashcan) Shutdown() error {
	t.stopOnce.Do(func() {
		t.dispatchMu.Lock()
		t.stopErr = t.exec.Shutdown()
		t.dispatchMu.Unlock()

		if pool, ok := t.exec.(*executor.ThreadPool); ok {
			metrics.AddActiveWorkers("thread", -pool.Workers())
		}
		if t.stopErr != nil {
			t.logger.Error().Err(t.stopErr).Str("strategy", t.strategy.String()).Msg("shutdown")
		}
	})
	return t.stopErr
}

// Close is Shutdown, for use as an io.Closer.
func (t *Trashcan) Close() error {
	return t.Shutdown()
}

// With runs fn with a new Trashcan and shuts it down afterwards, also when
// fn fails or panics. A shutdown error is returned only if fn succeeded.
func With(opts Options, fn func(*Trashcan) error) (err error) {
	t, err := New(opts)
	if err != nil {
		return err
	}
	defer func() {
		if serr := t.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()
	return fn(t)
}
