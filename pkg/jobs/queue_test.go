package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "j", Type: "noop"}))
	}
	assert.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(5), q.Stats().Processed)
}

func TestQueueRetriesThenDrops(t *testing.T) {
	var attempts atomic.Int32
	dropped := make(chan Job, 1)
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return errors.New("boom")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnDrop:     func(j Job, _ error) { dropped <- j },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r1"}))
	select {
	case job := <-dropped:
		assert.Equal(t, "r1", job.ID)
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not dropped")
	}
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(1), q.Stats().Dropped)
}

func TestQueueRecoversPanics(t *testing.T) {
	dropped := make(chan error, 1)
	q := NewQueue("panic", func(ctx context.Context, job Job) error {
		panic("bad handler")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnDrop: func(_ Job, err error) { dropped <- err }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	select {
	case err := <-dropped:
		assert.Contains(t, err.Error(), "panicked")
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not surfaced")
	}
}

func TestQueueJobTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("timeout", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		done <- ctx.Err()
		return nil
	}, QueueConfig{JobTimeout: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "t"}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("handler context was not bounded")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
