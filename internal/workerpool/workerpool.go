// Package workerpool implements a bounded, elastically growing goroutine
// pool for background work that must not block the agent's dispatch path,
// such as job-tree scans and asynchronous attach completion.
package workerpool

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxWorkers bounds pool growth when the caller does not specify
// a limit.
const DefaultMaxWorkers = 4

// Pool runs posted tasks on a set of workers that grows on demand up to a
// fixed bound. At most one worker is ever mid-creation; a single spawning
// flag guards the compare-and-spawn step.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	tasks []func()

	maxWorkers int
	workers    int
	idle       int
	spawning   bool
	shutdown   bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates a pool that grows up to maxWorkers. A non-positive
// maxWorkers selects DefaultMaxWorkers.
func New(maxWorkers int, logger zerolog.Logger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	p := &Pool{
		maxWorkers: maxWorkers,
		logger:     logger.With().Str("component", "worker_pool").Logger(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Post queues a task for execution. Returns false if the pool is shut
// down. Tasks run in the order posted when a single worker serves them;
// with multiple workers ordering is not guaranteed.
func (p *Pool) Post(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return false
	}
	p.tasks = append(p.tasks, task)

	// Wake an idle worker if one exists; otherwise grow, but never
	// while another worker is still mid-creation.
	if p.idle > 0 {
		p.cond.Signal()
	} else {
		p.maybeSpawnLocked()
	}
	return true
}

// maybeSpawnLocked starts one worker when backlog exists, no spawn is in
// flight and the bound allows it. Callers hold mu.
func (p *Pool) maybeSpawnLocked() {
	if p.spawning || p.shutdown || p.workers >= p.maxWorkers || len(p.tasks) == 0 {
		return
	}
	p.spawning = true
	p.workers++
	p.wg.Add(1)
	go p.run()
}

// Shutdown drains queued tasks and joins all workers. Further Post calls
// return false. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.shutdown = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *Pool) run() {
	defer p.wg.Done()

	p.mu.Lock()
	// Tasks posted while this worker was mid-creation saw spawning set
	// and did not grow the pool; pick that backlog up now.
	p.spawning = false
	p.maybeSpawnLocked()
	for {
		for len(p.tasks) == 0 && !p.shutdown {
			p.idle++
			p.cond.Wait()
			p.idle--
		}
		if len(p.tasks) == 0 {
			// Shutdown with an empty queue.
			p.workers--
			p.mu.Unlock()
			return
		}

		task := p.tasks[0]
		p.tasks = p.tasks[1:]
		if len(p.tasks) > 0 && p.idle == 0 {
			p.maybeSpawnLocked()
		}
		p.mu.Unlock()

		p.runTask(task)

		p.mu.Lock()
	}
}

func (p *Pool) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("worker task panicked")
		}
	}()
	task()
}
