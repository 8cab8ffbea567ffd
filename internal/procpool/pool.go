// Package procpool runs deletions in child worker processes.
//
// The parent re-executes a binary (by default its own) with EnvWorker set.
// That binary must call ServeWorker before doing anything else when IsWorker
// reports true. Parent and worker speak JSON lines over the worker's stdin and
// stdout: an Init/Ready handshake, then Request/Response pairs matched by id.
//
// With Threads set, every worker lazily builds one goroutine pool of that size
// on its first request and runs all of its deletions there; otherwise a worker
// deletes synchronously, one request at a time.
package procpool

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trashcan/internal/executor"
	"trashcan/internal/future"
	"trashcan/internal/metrics"
)

const (
	// EnvWorker marks a process started as a pool worker
	EnvWorker = "TRASHCAN_WORKER"

	// startTimeout bounds the Init/Ready handshake
	startTimeout = 10 * time.Second

	// queuePerSlot sizes the shared request buffer
	queuePerSlot = 64
)

var (
	ErrWorkerExited = errors.New("procpool: worker process exited")
	ErrProtocol     = errors.New("procpool: protocol error")
	ErrBroken       = errors.New("procpool: pool is broken")
)

// Config selects the pool shape.
type Config struct {
	Processes int      // number of worker processes, at least one
	Threads   int      // nested pool size per worker; zero deletes synchronously
	Command   []string // worker command line; defaults to the running executable
	Logger    zerolog.Logger
}

// WorkerStats describes one worker process as seen by the parent.
type WorkerStats struct {
	PID         int
	NestedPools int
	Completed   int64
}

// Pool is a fixed set of worker processes. It implements executor.Executor.
type Pool struct {
	logger  zerolog.Logger
	threads int
	procs   []*proc

	jobs  chan *request
	slots sync.WaitGroup

	// mu guards closed and serialises close(jobs) against in-flight sends
	mu     sync.RWMutex
	closed bool

	brokenMu sync.Mutex
	broken   error

	stopOnce sync.Once
	stopErr  error
}

type request struct {
	id   string
	path string
	fut  *future.Future
}

var _ executor.Executor = (*Pool)(nil)

// New starts cfg.Processes workers and waits for each handshake.
// If any worker fails to start, the ones already running are killed.
func New(cfg Config) (*Pool, error) {
	if IsWorker() {
		return nil, fmt.Errorf("%w: worker process cannot start a pool; call ServeWorker first", ErrProtocol)
	}
	if cfg.Processes <= 0 {
		return nil, fmt.Errorf("procpool: processes must be positive, got %d", cfg.Processes)
	}
	if cfg.Threads < 0 {
		return nil, fmt.Errorf("procpool: threads must not be negative, got %d", cfg.Threads)
	}

	metrics.Init()

	command := cfg.Command
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("procpool: locate executable: %w", err)
		}
		command = []string{exe}
	}

	slotsPerProc := 1
	if cfg.Threads > 0 {
		slotsPerProc = cfg.Threads
	}

	p := &Pool{
		logger:  cfg.Logger,
		threads: cfg.Threads,
		jobs:    make(chan *request, cfg.Processes*slotsPerProc*queuePerSlot),
	}

	procs := make([]*proc, cfg.Processes)
	var g errgroup.Group
	for i := range procs {
		g.Go(func() error {
			w, err := startProc(command, cfg.Threads)
			if err != nil {
				return err
			}
			procs[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, w := range procs {
			if w != nil {
				w.kill()
			}
		}
		return nil, err
	}
	p.procs = procs

	for _, w := range procs {
		go p.readLoop(w)
		for i := 0; i < slotsPerProc; i++ {
			p.slots.Add(1)
			go p.slotLoop(w)
		}
	}
	metrics.AddActiveWorkers("process", len(procs))

	p.logger.Debug().
		Int("processes", cfg.Processes).
		Int("threads", cfg.Threads).
		Msg("process pool started")
	return p, nil
}

// Submit queues path for the next free worker slot.
func (p *Pool) Submit(path string) *future.Future {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return future.Resolved(executor.ErrClosed)
	}
	if err := p.brokenErr(); err != nil {
		return future.Resolved(err)
	}

	req := &request{id: uuid.NewString(), path: path, fut: future.New()}
	p.jobs <- req
	return req.fut
}

// Shutdown stops accepting work, waits until every queued request resolved,
// then closes the workers' stdin and reaps them.
func (p *Pool) Shutdown() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		p.slots.Wait()

		var errs []error
		for _, w := range p.procs {
			if err := w.stop(); err != nil {
				errs = append(errs, err)
			}
		}
		metrics.AddActiveWorkers("process", -len(p.procs))
		p.stopErr = errors.Join(errs...)
	})
	return p.stopErr
}

// Stats returns a snapshot per worker process.
func (p *Pool) Stats() []WorkerStats {
	out := make([]WorkerStats, 0, len(p.procs))
	for _, w := range p.procs {
		out = append(out, WorkerStats{
			PID:         w.pid,
			NestedPools: int(w.nestedPools.Load()),
			Completed:   w.completed.Load(),
		})
	}
	return out
}

// slotLoop keeps one request in flight on w at a time
func (p *Pool) slotLoop(w *proc) {
	defer p.slots.Done()
	for req := range p.jobs {
		if err := p.brokenErr(); err != nil {
			req.fut.Resolve(err)
			continue
		}
		if err := w.send(req); err != nil {
			req.fut.Resolve(err)
			continue
		}
		<-req.fut.Done()
	}
}

// readLoop resolves futures from w's responses. Callbacks therefore run here,
// in the parent process.
func (p *Pool) readLoop(w *proc) {
	defer close(w.readerDone)
	for {
		var resp Response
		if err := w.dec.Decode(&resp); err != nil {
			failed := w.fail(err)
			if !w.stopping.Load() {
				p.markBroken(w, err, failed)
			}
			return
		}

		req := w.take(resp.ID)
		if req == nil {
			p.logger.Warn().Int("pid", w.pid).Str("id", resp.ID).Msg("response for unknown request")
			continue
		}
		if resp.Pools > int(w.nestedPools.Load()) {
			w.nestedPools.Store(int32(resp.Pools))
		}
		w.completed.Add(1)
		req.fut.Resolve(resp.Error.Err())
	}
}

func (p *Pool) markBroken(w *proc, cause error, failed int) {
	p.brokenMu.Lock()
	first := p.broken == nil
	if first {
		p.broken = fmt.Errorf("%w: worker pid %d: %w", ErrBroken, w.pid, cause)
	}
	p.brokenMu.Unlock()

	metrics.RecordWorkerExit()
	if first {
		p.logger.Error().
			Err(cause).
			Int("pid", w.pid).
			Int("pending", failed).
			Msg("worker process exited unexpectedly, pool is broken")
	}
}

func (p *Pool) brokenErr() error {
	p.brokenMu.Lock()
	defer p.brokenMu.Unlock()
	return p.broken
}

// proc is the parent's handle on one worker process
type proc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	dec   *json.Decoder
	pid   int

	encMu sync.Mutex
	enc   *json.Encoder

	pendingMu sync.Mutex
	pending   map[string]*request
	dead      bool

	stopping    atomic.Bool
	nestedPools atomic.Int32
	completed   atomic.Int64
	readerDone  chan struct{}
}

func startProc(command []string, threads int) (*proc, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), EnvWorker+"=1")
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("procpool: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("procpool: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("procpool: start worker: %w", err)
	}

	w := &proc{
		cmd:        cmd,
		stdin:      stdin,
		dec:        json.NewDecoder(bufio.NewReader(stdout)),
		enc:        json.NewEncoder(stdin),
		pid:        cmd.Process.Pid,
		pending:    make(map[string]*request),
		readerDone: make(chan struct{}),
	}

	if err := w.handshake(threads); err != nil {
		w.kill()
		return nil, err
	}
	return w, nil
}

func (w *proc) handshake(threads int) error {
	if err := w.enc.Encode(Init{Protocol: protocolVersion, Threads: threads}); err != nil {
		return fmt.Errorf("procpool: send init to pid %d: %w", w.pid, err)
	}

	var ready Ready
	done := make(chan error, 1)
	go func() {
		done <- w.dec.Decode(&ready)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: worker pid %d handshake: %w", ErrProtocol, w.pid, err)
		}
	case <-time.After(startTimeout):
		// kill unblocks the decoder goroutine
		_ = w.cmd.Process.Kill()
		<-done
		return fmt.Errorf("%w: worker pid %d did not answer within %s", ErrProtocol, w.pid, startTimeout)
	}

	if !ready.Ready || ready.Protocol != protocolVersion {
		return fmt.Errorf("%w: worker pid %d answered %+v", ErrProtocol, w.pid, ready)
	}
	return nil
}

func (w *proc) send(req *request) error {
	w.pendingMu.Lock()
	if w.dead {
		w.pendingMu.Unlock()
		return fmt.Errorf("%w: pid %d", ErrWorkerExited, w.pid)
	}
	w.pending[req.id] = req
	w.pendingMu.Unlock()

	w.encMu.Lock()
	err := w.enc.Encode(Request{ID: req.id, Path: []byte(req.path)})
	w.encMu.Unlock()
	if err != nil {
		w.take(req.id)
		return fmt.Errorf("%w: pid %d: %w", ErrWorkerExited, w.pid, err)
	}
	return nil
}

func (w *proc) take(id string) *request {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	req := w.pending[id]
	delete(w.pending, id)
	return req
}

// fail resolves every pending request with cause and returns how many there were
func (w *proc) fail(cause error) int {
	w.pendingMu.Lock()
	w.dead = true
	pending := w.pending
	w.pending = make(map[string]*request)
	w.pendingMu.Unlock()

	for _, req := range pending {
		req.fut.Resolve(fmt.Errorf("%w: pid %d: %w", ErrWorkerExited, w.pid, cause))
	}
	return len(pending)
}

// stop closes stdin, waits for the reader to drain stdout, then reaps the process
func (w *proc) stop() error {
	w.stopping.Store(true)
	_ = w.stdin.Close()
	<-w.readerDone
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("procpool: worker pid %d: %w", w.pid, err)
	}
	return nil
}

func (w *proc) kill() {
	_ = w.cmd.Process.Kill()
	_ = w.stdin.Close()
	_ = w.cmd.Wait()
}
