package procpool

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"trashcan/internal/executor"
	"trashcan/internal/fsops"
	"trashcan/internal/future"
	"trashcan/internal/log"
)

// IsWorker reports whether this process was started by a Pool.
func IsWorker() bool {
	return os.Getenv(EnvWorker) == "1"
}

var serveOnce sync.Once

// ServeWorker serves the worker protocol on stdin/stdout until the parent
// closes stdin. A process serves at most once; later calls return immediately.
func ServeWorker(d fsops.Deleter) error {
	var err error
	served := false
	serveOnce.Do(func() {
		served = true
		err = Serve(os.Stdin, os.Stdout, d)
	})
	if !served {
		return fmt.Errorf("%w: worker already served", ErrProtocol)
	}
	return err
}

// Serve runs the worker side of the protocol over r and w.
// It returns nil once r reaches EOF and every accepted request was answered.
func Serve(r io.Reader, w io.Writer, d fsops.Deleter) error {
	dec := json.NewDecoder(bufio.NewReader(r))

	var init Init
	if err := dec.Decode(&init); err != nil {
		return fmt.Errorf("%w: read init: %w", ErrProtocol, err)
	}
	if init.Protocol != protocolVersion {
		return fmt.Errorf("%w: unsupported protocol version %d", ErrProtocol, init.Protocol)
	}

	s := &server{
		threads: init.Threads,
		deleter: d,
		enc:     json.NewEncoder(w),
		pid:     os.Getpid(),
		logger:  log.New(os.Stderr, "worker"),
	}
	if err := s.write(Ready{Ready: true, Protocol: protocolVersion, PID: s.pid}); err != nil {
		return err
	}

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			s.drain()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: read request: %w", ErrProtocol, err)
		}
		s.handle(req)
	}
}

// server is the state of one worker process
type server struct {
	threads int
	deleter fsops.Deleter
	pid     int
	logger  zerolog.Logger

	encMu sync.Mutex
	enc   *json.Encoder

	poolOnce     sync.Once
	pool         *executor.ThreadPool
	poolsCreated atomic.Int32
}

// threadPool returns the nested pool, building it on first use. Concurrent
// first callers all get the same pool.
func (s *server) threadPool() *executor.ThreadPool {
	s.poolOnce.Do(func() {
		s.pool = executor.NewThreadPool(s.threads, s.deleter)
		s.poolsCreated.Add(1)
	})
	return s.pool
}

func (s *server) handle(req Request) {
	if s.threads <= 0 {
		s.reply(req.ID, future.Call(func() error {
			return s.deleter.Delete(string(req.Path))
		}))
		return
	}
	s.threadPool().Submit(string(req.Path)).AddDoneCallback(func(err error) {
		s.reply(req.ID, err)
	})
}

func (s *server) reply(id string, err error) {
	resp := Response{
		ID:    id,
		PID:   s.pid,
		Pools: int(s.poolsCreated.Load()),
		Error: encodeError(err),
	}
	if werr := s.write(resp); werr != nil {
		// parent is gone, nothing left to tell
		s.logger.Error().Err(werr).Int("pid", s.pid).Str("id", id).Msg("write response")
	}
}

func (s *server) write(v any) error {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	return s.enc.Encode(v)
}

// drain waits for the nested pool so every accepted request gets its response
func (s *server) drain() {
	if s.pool != nil {
		_ = s.pool.Shutdown()
	}
}
