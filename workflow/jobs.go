package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Job is a unit of background work started after a request has been answered.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes jobs on a fixed set of workers. Jobs are not persisted; Close waits for
// every accepted job to finish.
type Runner struct {
	queue chan Job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRunner Start the workers of a new runner
func NewRunner(workers int, queueSize int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	log.Info(fmt.Sprintf("Starting job runner with %d workers", workers))
	r := &Runner{queue: make(chan Job, queueSize)}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			for job := range r.queue {
				r.run(job)
			}
		}()
	}
	return r
}

// Enqueue Hand the job to a worker. When the queue is full the job gets its own goroutine so
// the caller never blocks. Returns false once the runner is closed.
func (r *Runner) Enqueue(job Job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		log.Warn(fmt.Sprintf("Job runner closed, dropping job %s", job.Name))
		return false
	}

	select {
	case r.queue <- job:
	default:
		log.Warn(fmt.Sprintf("Job queue full, running %s on its own", job.Name))
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(job)
		}()
	}
	return true
}

// Close Stop accepting jobs and wait for the accepted ones to finish
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) run(job Job) {
	logger := log.WithField("job", job.Name)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error(fmt.Sprintf("Job panicked: %v", p))
		}
	}()

	logger.Info("Started job")
	if err := job.Run(context.Background()); err != nil {
		logger.WithError(err).Warn("Job failed")
		return
	}
	logger.WithField("duration", time.Since(start).String()).Info("Job done")
}
