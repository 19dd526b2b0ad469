package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	cancel()
	<-d.Done()

	assert.False(t, d.Post(func() { t.Error("ran after stop") }))
}

func TestDispatcherDiscardsQueuedWorkOnCancel(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	release := make(chan struct{})
	started := make(chan struct{})
	d.Post(func() {
		close(started)
		<-release
	})
	<-started
	ran := false
	d.Post(func() { ran = true })

	cancel()
	close(release)
	<-d.Done()

	assert.False(t, ran)
}
