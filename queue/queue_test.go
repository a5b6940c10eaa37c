package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocktimefinancial/refractor-sub001/errs"
)

func TestQueuePushResolvesWithResult(t *testing.T) {
	q := New(Config{Concurrency: 2, MaxConcurrency: 2, MetricsInterval: time.Hour})
	defer q.Kill()

	f := q.Push("t1", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestQueueRetriesTransientErrorsThenSucceeds(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxConcurrency: 1, RetryAttempts: 5, RetryDelay: time.Millisecond, MetricsInterval: time.Hour})
	defer q.Kill()

	var attempts int32
	f := q.Push("t1", func(ctx context.Context) (interface{}, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errs.New(errs.KindTransientNetwork, "boom")
		}
		return "done", nil
	})
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueDoesNotRetryValidationErrors(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxConcurrency: 1, RetryAttempts: 5, RetryDelay: time.Millisecond, MetricsInterval: time.Hour})
	defer q.Kill()

	var attempts int32
	f := q.Push("t1", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errs.New(errs.KindValidation, "bad input")
	})
	_, err := f.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "validation errors must not be retried")
}

func TestQueueConcurrencyStaysWithinBounds(t *testing.T) {
	q := New(Config{Concurrency: 2, MinConcurrency: 1, MaxConcurrency: 3, MetricsInterval: time.Hour})
	defer q.Kill()

	q.SetConcurrency(100)
	assert.LessOrEqual(t, q.Concurrency(), 3)
	q.SetConcurrency(-5)
	assert.GreaterOrEqual(t, q.Concurrency(), 1)
}

func TestQueueDrainWaitsForInFlight(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxConcurrency: 1, MetricsInterval: time.Hour})
	defer q.Kill()

	q.Push("t1", func(ctx context.Context) (interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.True(t, q.Idle())
}
