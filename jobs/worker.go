package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrPoolStopped is returned by Submit once Stop has been called.
	ErrPoolStopped = errors.New("worker pool is shutting down")
	// ErrQueueFull is returned by TrySubmit when every queue slot is taken.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Job represents a unit of work
type Job struct {
	ID      string
	Execute func() error
}

// WorkerPool manages a pool of workers for async job processing
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	wg          sync.WaitGroup
	stopOnce    sync.Once
	mu          sync.RWMutex // guards stopped and sends on jobQueue
	stopped     bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	pool := &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, workerCount*2), // Buffer size = 2x workers
	}

	for i := 0; i < workerCount; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	log.Debug().Int("workers", workerCount).Msg("worker pool started")
	return pool
}

// worker processes jobs until the queue is closed and drained
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.run(id, job)
	}
	log.Debug().Int("worker", id).Msg("worker stopped")
}

func (p *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Str("job", job.ID).Msgf("job panicked: %v", r)
		}
	}()

	if err := job.Execute(); err != nil {
		log.Warn().Int("worker", id).Str("job", job.ID).Err(err).Msg("job failed")
		return
	}
	log.Debug().Int("worker", id).Str("job", job.ID).Msg("job completed")
}

// Submit adds a job to the queue. It blocks while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	if job.Execute == nil {
		return fmt.Errorf("job %s has nothing to execute", job.ID)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.jobQueue <- job
	return nil
}

// TrySubmit adds a job to the queue without waiting. It fails with
// ErrQueueFull while the queue is full.
func (p *WorkerPool) TrySubmit(job Job) error {
	if job.Execute == nil {
		return fmt.Errorf("job %s has nothing to execute", job.ID)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop gracefully shuts down the worker pool. Queued jobs still run.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		log.Debug().Msg("stopping worker pool")
		p.mu.Lock()
		p.stopped = true
		close(p.jobQueue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// QueueSize returns the current number of jobs in queue
func (p *WorkerPool) QueueSize() int {
	return len(p.jobQueue)
}
