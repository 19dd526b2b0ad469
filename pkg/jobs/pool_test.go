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
	"go.uber.org/zap"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool("test", PoolConfig{Workers: 2, Logger: zap.NewNop()})
	pool.Start(context.Background())
	defer pool.Stop()

	var wg sync.WaitGroup
	var ran int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), Job{Type: "count", Run: func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			return nil
		}})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool("bounded", PoolConfig{Workers: 2, BufferSize: 16})
	pool.Start(context.Background())
	defer pool.Stop()

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(context.Background(), Job{Type: "slow", Run: func(ctx context.Context) error {
			defer wg.Done()
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		}}))
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolSubmitBeforeStart(t *testing.T) {
	pool := NewPool("idle", PoolConfig{})
	err := pool.Submit(context.Background(), Job{Type: "noop", Run: func(context.Context) error { return nil }})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolStopped))
}

func TestPoolObservesFailuresAndPanics(t *testing.T) {
	var mu sync.Mutex
	outcomes := map[string]error{}
	done := make(chan struct{}, 2)
	pool := NewPool("observed", PoolConfig{Workers: 1, Observe: func(jobType string, err error, _ time.Duration) {
		mu.Lock()
		outcomes[jobType] = err
		mu.Unlock()
		done <- struct{}{}
	}})
	pool.Start(context.Background())
	defer pool.Stop()

	boom := errors.New("boom")
	require.NoError(t, pool.Submit(context.Background(), Job{Type: "fail", Run: func(context.Context) error { return boom }}))
	require.NoError(t, pool.Submit(context.Background(), Job{Type: "panic", Run: func(context.Context) error { panic("bad") }}))
	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, outcomes["fail"], boom)
	assert.Error(t, outcomes["panic"])
}

func TestPoolSkipsCancelledJobs(t *testing.T) {
	pool := NewPool("cancel", PoolConfig{Workers: 1})
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), Job{Type: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	require.NoError(t, pool.Submit(ctx, Job{Type: "skipped", Run: func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}}))
	cancel()
	close(release)

	marker := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), Job{Type: "marker", Run: func(context.Context) error {
		close(marker)
		return nil
	}}))
	<-marker
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}
