// Package queue provides an unbounded FIFO that decouples a producer from a
// consumer channel, so a slow consumer never stalls the producer.
package queue

import "sync"

// Queue is an unbounded FIFO feeding a channel through Pump.
type Queue[T any] struct {
	notify chan struct{}
	items  []T
	mu     sync.Mutex
	closed bool
}

// New creates an empty, open Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push appends v. It reports false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()
	return true
}

// Close stops accepting items. Already queued items are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain blocks until items are available and returns them all. It returns
// ok=false when the queue is closed and empty.
func (q *Queue[T]) drain() (batch []T, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch, q.items = q.items, nil
			q.mu.Unlock()
			return batch, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.notify
	}
}

// Pump delivers queued items to out in order and closes out when the queue
// is closed and drained. Run it on its own goroutine.
func (q *Queue[T]) Pump(out chan<- T) {
	defer close(out)
	for {
		batch, ok := q.drain()
		if !ok {
			return
		}
		for _, v := range batch {
			out <- v
		}
	}
}
