package executor

import (
	"sync"

	"trashcan/internal/fsops"
	"trashcan/internal/future"
)

// queuePerWorker sizes the job buffer; Submit blocks only once it is full
const queuePerWorker = 64

type job struct {
	path string
	fut  *future.Future
}

// ThreadPool deletes paths on a fixed number of goroutines.
type ThreadPool struct {
	deleter fsops.Deleter
	workers int

	jobs chan job
	wg   sync.WaitGroup

	// mu guards closed and serialises close(jobs) against in-flight sends
	mu     sync.RWMutex
	closed bool

	stopOnce sync.Once
}

// NewThreadPool starts workers goroutines. workers below one is treated as one.
func NewThreadPool(workers int, d fsops.Deleter) *ThreadPool {
	if workers <= 0 {
		workers = 1
	}
	p := &ThreadPool{
		deleter: d,
		workers: workers,
		jobs:    make(chan job, workers*queuePerWorker),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(j)
			}
		}()
	}
	return p
}

func (p *ThreadPool) run(j job) {
	// the future's callbacks run here, on the worker goroutine
	j.fut.Resolve(future.Call(func() error {
		return p.deleter.Delete(j.path)
	}))
}

// Workers reports the pool size.
func (p *ThreadPool) Workers() int {
	return p.workers
}

func (p *ThreadPool) Submit(path string) *future.Future {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return future.Resolved(ErrClosed)
	}

	fut := future.New()
	p.jobs <- job{path: path, fut: fut}
	return fut
}

// Shutdown waits for every queued and running deletion, including its callbacks.
func (p *ThreadPool) Shutdown() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
	})
	return nil
}
