package queue

import "sync"

// Queue is an unbounded thread-safe FIFO. One Queue backs each connection's
// outbound and broadcast buffers as well as the stream adapters' chunk
// buffers, so every consumer drains the same abstraction no matter which
// goroutine it runs on.
//
// TryPop never blocks; consumers poll with a short sleep so stop flags are
// observed promptly.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v to the tail. It reports false if the queue has been closed,
// in which case v is discarded.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// PushFront puts v back at the head. Callers use it to return an element
// whose processing failed, so FIFO order holds across the retry. It reports
// false if the queue has been closed.
func (q *Queue[T]) PushFront(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append([]T{v}, q.items...)
	return true
}

// TryPop removes and returns the head element. The second return value is
// false when the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and drops any queued elements. Subsequent
// pushes are no-ops.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}
