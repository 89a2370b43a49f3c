package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "1"})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestQueueProcessesJobs(t *testing.T) {
	var wg sync.WaitGroup
	var seen sync.Map
	q := NewQueue("test", func(_ context.Context, job Job) error {
		seen.Store(job.ID, job.Payload)
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	wg.Add(3)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Payload: "class-" + id}))
	}
	wg.Wait()

	value, ok := seen.Load("b")
	require.True(t, ok)
	assert.Equal(t, "class-b", value)
	assert.Eventually(t, func() bool { return q.Stats().Succeeded == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Stats().Pending)
}

func TestQueueCoalescesPendingKeys(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if job.ID == "1" {
			<-release
			close(done)
		}
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "class-1"}))
	err := q.Enqueue(Job{ID: "2", Key: "class-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, q.Enqueue(Job{ID: "3", Key: "class-2"}))

	close(release)
	<-done
	assert.Eventually(t, func() bool {
		return q.Enqueue(Job{ID: "4", Key: "class-1"}) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("test", func(context.Context, Job) error {
		started <- struct{}{}
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(Job{ID: "running"}))
	<-started
	require.NoError(t, q.Enqueue(Job{ID: "buffered"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "overflow"}), ErrQueueFull)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "retry", Key: "class-1"}))
	assert.Eventually(t, func() bool { return q.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)

	stats := q.Stats()
	assert.EqualValues(t, 2, stats.Retried)
	assert.EqualValues(t, 0, stats.Failed)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "fail", Key: "class-9"}))
	assert.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.NoError(t, q.Enqueue(Job{ID: "again", Key: "class-9"}))
}

func TestQueueStopRejectsNewJobs(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()
	q.Stop()

	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrNotStarted)
}
