package main

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// unboundedQueue is a FIFO whose producers never block. It sits between the
// round detector and the hashing backend, and between the backend and the
// candidate collector, where a stalled consumer must not stall the producer.
type unboundedQueue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newUnboundedQueue[T any]() *unboundedQueue[T] {
	return &unboundedQueue[T]{signal: make(chan struct{}, 1)}
}

func (q *unboundedQueue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *unboundedQueue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop blocks until an item is available, the queue is closed and drained,
// or ctx is done. ok is false in the latter two cases.
func (q *unboundedQueue[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			// pass the wakeup on to any other blocked consumer
			q.wake()
			return zero, false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// TryPop returns the head without blocking.
func (q *unboundedQueue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Close stops further pushes. Items already queued can still be popped.
func (q *unboundedQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *unboundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
