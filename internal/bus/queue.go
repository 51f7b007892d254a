package bus

import (
	"context"
	"errors"
	"sync"

	"oms/internal/schema"
	"oms/pkg/exception"
)

var (
	ErrQueueFull   = exception.ErrBusQueueFull
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, non-blocking event queue.
type Queue struct {
	mu     sync.RWMutex
	ch     chan schema.Event
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e schema.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events. Buffered events are still drained by Run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(schema.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
