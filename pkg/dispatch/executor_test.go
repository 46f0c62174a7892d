package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestExecutor_RunsJobsAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor(WithWorkers(3), WithQueueSize(16))
	var ran atomic.Int32
	var done atomic.Int32
	for i := 0; i < 10; i++ {
		err := exec.Submit(Job{
			ID: "job",
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
			Done: func(err error, _ time.Duration) {
				assert.NoError(t, err)
				done.Add(1)
			},
		})
		require.NoError(t, err)
	}

	require.NoError(t, exec.Close(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.Equal(t, int32(10), done.Load())
}

func TestExecutor_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor(WithWorkers(1))
	errs := make(chan error, 2)
	require.NoError(t, exec.Submit(Job{
		ID:   "boom",
		Run:  func(context.Context) error { panic("kaboom") },
		Done: func(err error, _ time.Duration) { errs <- err },
	}))
	require.NoError(t, exec.Submit(Job{
		ID:   "after",
		Run:  func(context.Context) error { return nil },
		Done: func(err error, _ time.Duration) { errs <- err },
	}))
	require.NoError(t, exec.Close(context.Background()))

	first := <-errs
	require.Error(t, first)
	assert.Contains(t, first.Error(), "kaboom")
	assert.NoError(t, <-errs, "worker survives a panicking job")
}

func TestExecutor_JobTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor(WithWorkers(1), WithJobTimeout(20*time.Millisecond))
	errs := make(chan error, 1)
	require.NoError(t, exec.Submit(Job{
		ID: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Done: func(err error, _ time.Duration) { errs <- err },
	}))
	require.NoError(t, exec.Close(context.Background()))
	assert.ErrorIs(t, <-errs, context.DeadlineExceeded)
}

func TestExecutor_QueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor(WithWorkers(1), WithQueueSize(1), WithJobTimeout(0))
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, exec.Submit(Job{ID: "blocker", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, exec.Submit(Job{ID: "queued"}))

	err := exec.Submit(Job{ID: "dropped"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, exec.Pending())

	close(release)
	require.NoError(t, exec.Close(context.Background()))
}

func TestExecutor_SubmitAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor()
	require.NoError(t, exec.Close(context.Background()))
	require.NoError(t, exec.Close(context.Background()), "close is idempotent")
	assert.ErrorIs(t, exec.Submit(Job{ID: "late"}), ErrExecutorClosed)
}

func TestExecutor_CloseDeadlineCancelsRunningJobs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	exec := NewExecutor(WithWorkers(1), WithJobTimeout(0))
	var once sync.Once
	started := make(chan struct{})
	errs := make(chan error, 1)
	require.NoError(t, exec.Submit(Job{
		ID: "stuck",
		Run: func(ctx context.Context) error {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return ctx.Err()
		},
		Done: func(err error, _ time.Duration) { errs <- err },
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := exec.Close(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.ErrorIs(t, <-errs, context.Canceled)
}
