package jobs

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(3)

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		err := pool.Submit(Job{ID: "job", Execute: func() error {
			done.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}

	pool.Stop()
	assert.Equal(t, int32(20), done.Load())
}

func TestWorkerPoolSurvivesFailingJobs(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	require.NoError(t, pool.Submit(Job{ID: "fails", Execute: func() error { return errors.New("boom") }}))
	require.NoError(t, pool.Submit(Job{ID: "panics", Execute: func() error { panic("boom") }}))

	ran := make(chan struct{})
	require.NoError(t, pool.Submit(Job{ID: "ok", Execute: func() error {
		close(ran)
		return nil
	}}))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover after failing jobs")
	}
}

func TestWorkerPoolRejectsAfterStop(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Stop()
	pool.Stop()

	err := pool.Submit(Job{ID: "late", Execute: func() error { return nil }})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPoolRejectsEmptyJob(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	assert.Error(t, pool.Submit(Job{ID: "empty"}))
}

func TestWorkerPoolTrySubmitDoesNotWait(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.TrySubmit(Job{ID: "busy", Execute: func() error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	// one worker busy, two queue slots
	noop := Job{ID: "queued", Execute: func() error { return nil }}
	require.NoError(t, pool.TrySubmit(noop))
	require.NoError(t, pool.TrySubmit(noop))

	done := make(chan error, 1)
	go func() { done <- pool.TrySubmit(noop) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("TrySubmit waited for queue space")
	}

	close(release)
}
