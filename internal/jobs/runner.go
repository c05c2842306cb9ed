package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"appforge/internal/logging"
)

// CompletionHandler is called when a job finishes.
type CompletionHandler func(job *Job)

// Runner owns background jobs.
type Runner struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	counter    int
	onComplete CompletionHandler
}

// NewRunner creates a job runner.
func NewRunner() *Runner {
	return &Runner{jobs: make(map[string]*Job)}
}

// SetCompletionHandler sets the handler called when jobs finish.
func (r *Runner) SetCompletionHandler(handler CompletionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = handler
}

// Submit starts a job and returns it. The run inherits cancellation
// from ctx and can additionally be canceled through the job itself.
func (r *Runner) Submit(ctx context.Context, prompt string, run RunFunc) *Job {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.counter++
	job := &Job{
		ID:        fmt.Sprintf("job_%d_%d", time.Now().Unix(), r.counter),
		Prompt:    prompt,
		StartTime: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusRunning,
	}
	r.jobs[job.ID] = job
	onComplete := r.onComplete
	r.mu.Unlock()

	go func() {
		defer cancel()
		result, err := run(runCtx)
		canceled := errors.Is(err, context.Canceled) || errors.Is(runCtx.Err(), context.Canceled)
		job.finish(result, err, canceled)
		logging.Debug("job finished", "job", job.ID, "status", job.Status().String())
		if onComplete != nil {
			onComplete(job)
		}
	}()
	return job
}

// Get returns a job by id.
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Cancel cancels a running job.
func (r *Runner) Cancel(id string) error {
	job, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	job.Cancel()
	return nil
}

// List returns snapshots of all jobs.
func (r *Runner) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.jobs))
	for _, job := range r.jobs {
		infos = append(infos, job.Snapshot())
	}
	return infos
}
