// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free Push: producers append with atomic operations only
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Single Consumer: one goroutine receives values through the Recv() channel
//   - Per-Producer Order: values pushed by one goroutine are received in push
//     order; values of concurrent producers are ordered by who completes first
//   - Acknowledgement: a consumer that calls Ack() after handling a value lets
//     producers wait with WaitIdle() until everything pushed so far was handled
//
// The spine engine feeds its background flusher through this queue, and the
// store delivers write notifications through it in write order.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the linked list
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue built on a
// linked list with a sentinel head.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan T
	closed atomic.Bool

	pushed atomic.Uint64
	acked  atomic.Uint64

	// wakes the consumer when new data arrives
	mu   sync.Mutex
	cond *sync.Cond

	// wakes WaitIdle callers when values are acknowledged
	ackMu   sync.Mutex
	ackCond *sync.Cond
}

// NewLockFreeMPSC creates a queue and starts its delivery goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.ackCond = sync.NewCond(&q.ackMu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()

	return q
}

// Push adds a value to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	q.pushed.Add(1)

	var backoff uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin briefly under low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves values from the linked list to the output channel
func (q *LockFreeMPSC[T]) consume() {
	defer close(q.out)

	var zero T
	for {
		hasItems := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value

			// the new head is a sentinel now, drop its reference
			next.value = zero
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel values are delivered on. It is closed after Close
// once all queued values were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Ack marks one received value as handled
func (q *LockFreeMPSC[T]) Ack() {
	q.acked.Add(1)
	q.ackMu.Lock()
	q.ackCond.Broadcast()
	q.ackMu.Unlock()
}

// WaitIdle blocks until every value pushed before the call was acknowledged.
// It only returns if the consumer calls Ack for every value it receives.
func (q *LockFreeMPSC[T]) WaitIdle() {
	target := q.pushed.Load()

	q.ackMu.Lock()
	defer q.ackMu.Unlock()
	for q.acked.Load() < target {
		q.ackCond.Wait()
	}
}

// Close prevents further pushes. Values already queued are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of values not yet handed to the consumer.
// This is O(n) and should only be used for debugging and statistics.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
