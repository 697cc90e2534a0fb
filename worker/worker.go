// Package worker offloads blocking storage calls onto a bounded pool of
// goroutines, so the goroutines serving HTTP requests are never stalled by a
// slow database call.
package worker

import (
	"runtime"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

type job struct {
	f    func() error
	done chan error
}

// Pool is a fixed-size set of workers consuming blocking jobs.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
}

// NewPool starts size workers. A size <= 0 defaults to the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	p := &Pool{jobs: make(chan job)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	return p
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j.done <- j.f()
	}
	zlog.Debug().Int("worker", id).Msg("Done")
}

// Submit schedules f on the pool and waits for it to finish. It blocks the
// calling goroutine, not a worker, while waiting for a free slot.
func (p *Pool) Submit(f func() error) error {
	done := make(chan error, 1)
	p.jobs <- job{f: f, done: done}
	return <-done
}

// Close stops the workers once in-flight jobs have finished.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Handle serializes access to one shared storage connection. The connection
// may block its thread, so the guarded call runs on the pool rather than on
// the caller's goroutine.
type Handle struct {
	mu   sync.Mutex
	pool *Pool
}

func NewHandle(pool *Pool) *Handle {
	return &Handle{pool: pool}
}

// Do runs f with exclusive access to the handle. The lock is held only for
// the duration of the single call and released on every exit path.
func (h *Handle) Do(f func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pool.Submit(f)
}

// Go runs f in the background and discards its result. Callers must not
// assume the effect of f is visible when Go returns.
func (h *Handle) Go(f func() error) {
	go func() {
		if err := h.Do(f); err != nil {
			zlog.Debug().Err(err).Msg("Background call failed")
		}
	}()
}
