package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedQueueFIFO(t *testing.T) {
	q := newUnboundedQueue[int]()
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 1000, q.Len())

	for i := 0; i < 1000; i++ {
		v, ok := q.Pop(context.Background())
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestUnboundedQueuePopWaitsForPush(t *testing.T) {
	q := newUnboundedQueue[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := q.Pop(context.Background())
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push("round"))
	select {
	case v := <-got:
		assert.Equal(t, "round", v)
	case <-time.After(5 * time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestUnboundedQueuePopHonorsContext(t *testing.T) {
	q := newUnboundedQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestUnboundedQueueCloseDrainsThenFails(t *testing.T) {
	q := newUnboundedQueue[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push(3), errQueueClosed)
	v, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestUnboundedQueueCloseWakesAllConsumers(t *testing.T) {
	q := newUnboundedQueue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop(context.Background())
			assert.False(t, ok)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers still blocked after Close")
	}
}

func TestUnboundedQueueConcurrentProducers(t *testing.T) {
	q := newUnboundedQueue[int]()
	const producers, each = 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = q.Push(base*each + i)
			}
		}(p)
	}

	seen := make(map[int]bool, producers*each)
	for len(seen) < producers*each {
		v, ok := q.Pop(context.Background())
		require.True(t, ok)
		require.False(t, seen[v])
		seen[v] = true
	}
	wg.Wait()
	assert.Zero(t, q.Len())
}
