// Package jobs runs generation pipelines in the background so the CLI
// can report progress and accept cancellation while a run is in flight.
package jobs

import (
	"context"
	"sync"
	"time"

	"appforge/internal/pipeline"
)

// Status is a job's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunFunc is the work a job performs.
type RunFunc func(ctx context.Context) (*pipeline.Result, error)

// Job is one background generation run.
type Job struct {
	ID        string
	Prompt    string
	StartTime time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	status  Status
	phase   pipeline.State
	result  *pipeline.Result
	err     error
	endTime time.Time
}

// Info is a point-in-time snapshot of a job.
type Info struct {
	ID       string
	Prompt   string
	Status   Status
	Phase    pipeline.State
	Duration time.Duration
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result returns the run outcome once the job has completed.
func (j *Job) Result() (*pipeline.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Wait blocks until the job finishes or the context is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return nil
	}
}

// Cancel requests cancellation. The job transitions to Cancelled once
// its pipeline run observes the context.
func (j *Job) Cancel() {
	j.cancel()
}

// SetPhase records the pipeline phase for progress reporting.
func (j *Job) SetPhase(s pipeline.State) {
	j.mu.Lock()
	j.phase = s
	j.mu.Unlock()
}

// Snapshot returns the job's current info.
func (j *Job) Snapshot() Info {
	j.mu.Lock()
	defer j.mu.Unlock()

	duration := time.Since(j.StartTime)
	if !j.endTime.IsZero() {
		duration = j.endTime.Sub(j.StartTime)
	}
	return Info{
		ID:       j.ID,
		Prompt:   j.Prompt,
		Status:   j.status,
		Phase:    j.phase,
		Duration: duration,
	}
}

func (j *Job) finish(result *pipeline.Result, err error, canceled bool) {
	j.mu.Lock()
	j.result = result
	j.err = err
	j.endTime = time.Now()
	switch {
	case canceled:
		j.status = StatusCancelled
	case err != nil:
		j.status = StatusFailed
	default:
		j.status = StatusCompleted
	}
	j.mu.Unlock()
	close(j.done)
}
