// Package queue partitions tracking requests by visitor for ordered consumption.
//
// Every visitor id hashes to exactly one partition and each partition is
// drained by one consumer, so events of a visitor are tracked in the order
// they were enqueued.
package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultPartitions    = 4
)

// Event is the payload flowing through the queue.
type Event = model.TrackRequest

// InMemoryQueue is a set of bounded channels, one per partition.
type InMemoryQueue struct {
	capacity   int
	partitions int
	channels   []chan Event

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new partitioned queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		partitions: defaultPartitions,
	}
	for _, opt := range opts {
		opt(q)
	}

	per := max(q.capacity/q.partitions, 1)
	q.channels = make([]chan Event, q.partitions)
	for i := range q.channels {
		q.channels[i] = make(chan Event, per)
	}

	metrics.UpdateQueueCapacity(per * q.partitions)
	metrics.UpdateQueueSize(0)
	return q
}

// Partition returns the partition serving visitorID.
func (q *InMemoryQueue) Partition(visitorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitorID))
	return int(h.Sum32() % uint32(q.partitions)) //nolint:gosec // partitions is positive and small
}

// Partitions returns the number of partitions.
func (q *InMemoryQueue) Partitions() int { return q.partitions }

// Enqueue adds e to its visitor's partition without blocking. It returns
// ErrFull when that partition is at capacity and ErrClosed after Close.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.channels[q.Partition(e.VisitorID)] <- e:
		metrics.UpdateQueueSize(q.size())
		return nil
	default:
		metrics.RecordQueueRejected("queue_full")
		return ErrFull
	}
}

// Dequeue returns the channel of partition p. It is closed by Close.
func (q *InMemoryQueue) Dequeue(_ context.Context, p int) <-chan Event {
	return q.channels[p]
}

// Len returns the number of queued events across partitions.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := q.size()
	metrics.UpdateQueueSize(n)
	return n
}

func (q *InMemoryQueue) size() int {
	n := 0
	for _, ch := range q.channels {
		n += len(ch)
	}
	return n
}

// Close stops accepting events and closes every partition channel. Queued
// events remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, ch := range q.channels {
		close(ch)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
