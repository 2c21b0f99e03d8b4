package storage

import "sync"

// Pool runs blocking filesystem writes on a small set of worker
// goroutines so a slow disk or network mount never stalls the caller's
// scheduling context beyond the individual wait.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type job struct {
	fn  func() error
	res chan error
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.res <- j.fn()
	}
}

// Do runs fn on a pool worker and waits for its result.
func (p *Pool) Do(fn func() error) error {
	res := make(chan error, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fn() // pool shut down; degrade to inline execution
	}
	// Enqueue under the lock so Close cannot close the channel mid-send.
	p.jobs <- job{fn: fn, res: res}
	p.mu.Unlock()
	return <-res
}

// Close drains the pool and waits for in-flight jobs.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.jobs)
	p.wg.Wait()
}
