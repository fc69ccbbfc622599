// Package workers_test provides tests for the worker pool.
package workers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlas-desktop/unitsim/internal/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPool(t *testing.T, cfg *workers.PoolConfig) *workers.Pool {
	t.Helper()
	p := workers.NewPool(zap.NewNop(), cfg)
	p.Start()
	t.Cleanup(func() { p.Stop() })
	return p
}

func TestPoolRunsTasks(t *testing.T) {
	p := newPool(t, workers.DefaultPoolConfig("test"))

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.SubmitFunc(func(ctx context.Context) error {
			done.Add(1)
			return nil
		}))
	}

	require.Eventually(t, func() bool { return done.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().TasksCompleted == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(10), p.Stats().TasksSubmitted)
}

func TestPoolCountsFailuresAndPanics(t *testing.T) {
	p := newPool(t, workers.DefaultPoolConfig("test"))

	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error { panic("bad task") }))

	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.TasksFailed == 2 && s.PanicRecovered == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.IsRunning(), "a panicking task must not kill the pool")
}

func TestPoolQueueFull(t *testing.T) {
	p := newPool(t, &workers.PoolConfig{Name: "tiny", NumWorkers: 1, QueueSize: 1, ShutdownTimeout: time.Second})

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error {
		close(started)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}))
	<-started

	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, p.SubmitFunc(func(ctx context.Context) error { return nil }), workers.ErrQueueFull)
	close(block)
}

func TestPoolTaskTimeout(t *testing.T) {
	p := newPool(t, &workers.PoolConfig{Name: "t", NumWorkers: 1, QueueSize: 4, TaskTimeout: 20 * time.Millisecond, ShutdownTimeout: time.Second})

	errCh := make(chan error, 1)
	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("task context never expired")
	}
}

func TestPoolStopCancelsRunningTasks(t *testing.T) {
	p := workers.NewPool(zap.NewNop(), &workers.PoolConfig{Name: "s", NumWorkers: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	p.Start()

	started := make(chan struct{})
	require.NoError(t, p.SubmitFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.ErrorIs(t, p.SubmitFunc(func(ctx context.Context) error { return nil }), workers.ErrPoolStopped)
	assert.NoError(t, p.Stop(), "second stop is a no-op")
}
