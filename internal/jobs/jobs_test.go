package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"appforge/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCompletes(t *testing.T) {
	r := NewRunner()

	job := r.Submit(context.Background(), "make an app", func(ctx context.Context) (*pipeline.Result, error) {
		return &pipeline.Result{Attempts: 1}, nil
	})
	require.NoError(t, job.Wait(context.Background()))

	assert.Equal(t, StatusCompleted, job.Status())
	result, err := job.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
}

func TestSubmitFailure(t *testing.T) {
	r := NewRunner()
	boom := errors.New("boom")

	job := r.Submit(context.Background(), "p", func(ctx context.Context) (*pipeline.Result, error) {
		return nil, boom
	})
	require.NoError(t, job.Wait(context.Background()))

	assert.Equal(t, StatusFailed, job.Status())
	_, err := job.Result()
	require.ErrorIs(t, err, boom)
}

func TestCancelJob(t *testing.T) {
	r := NewRunner()

	started := make(chan struct{})
	job := r.Submit(context.Background(), "p", func(ctx context.Context) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started
	require.NoError(t, r.Cancel(job.ID))
	require.NoError(t, job.Wait(context.Background()))

	assert.Equal(t, StatusCancelled, job.Status())
}

func TestCancelUnknownJob(t *testing.T) {
	r := NewRunner()
	require.Error(t, r.Cancel("job_0_0"))
}

func TestCompletionHandler(t *testing.T) {
	r := NewRunner()
	done := make(chan *Job, 1)
	r.SetCompletionHandler(func(j *Job) { done <- j })

	job := r.Submit(context.Background(), "p", func(ctx context.Context) (*pipeline.Result, error) {
		return &pipeline.Result{}, nil
	})

	select {
	case finished := <-done:
		assert.Equal(t, job.ID, finished.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("completion handler not called")
	}
}

func TestSnapshotAndList(t *testing.T) {
	r := NewRunner()

	job := r.Submit(context.Background(), "my prompt", func(ctx context.Context) (*pipeline.Result, error) {
		return &pipeline.Result{}, nil
	})
	job.SetPhase(pipeline.StateCalling)
	require.NoError(t, job.Wait(context.Background()))

	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, job.ID, infos[0].ID)
	assert.Equal(t, "my prompt", infos[0].Prompt)
	assert.Equal(t, StatusCompleted, infos[0].Status)
}

func TestWaitHonorsContext(t *testing.T) {
	r := NewRunner()
	block := make(chan struct{})
	defer close(block)

	job := r.Submit(context.Background(), "p", func(ctx context.Context) (*pipeline.Result, error) {
		<-block
		return &pipeline.Result{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, job.Wait(ctx), context.DeadlineExceeded)
}
