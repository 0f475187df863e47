// Package worker drains queue partitions into the tracker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/leadpulse/internal/adapters/mq/queue"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/tracking"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Tracker records one event and logs the outcome of a Track call.
type Tracker interface {
	Track(ctx context.Context, req model.TrackRequest) (model.BehaviorEvent, error)
	Report(ctx context.Context, req model.TrackRequest, err error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context, partition int) <-chan queue.Event
	Partitions() int
}

// Counters are shared by the workers of a pool.
type Counters struct {
	Processed atomic.Int64
	Dropped   atomic.Int64
	Failed    atomic.Int64
}

// InMemoryWorker drains one queue partition.
type InMemoryWorker struct {
	queue     Queue
	tracker   Tracker
	partition int
	counters  *Counters
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker for partition.
func NewInMemoryWorker(q Queue, tracker Tracker, partition int, counters *Counters, opts ...Option) *InMemoryWorker {
	if counters == nil {
		counters = &Counters{}
	}
	w := &InMemoryWorker{
		queue:     q,
		tracker:   tracker,
		partition: partition,
		counters:  counters,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run consumes the partition until it is closed, ctx is done or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx, w.partition)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, e)
		}
	}
}

// Shutdown stops the worker and waits for the event in hand to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e queue.Event) { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	_, err := w.tracker.Track(ctx, e)
	w.tracker.Report(ctx, e, err)
	switch {
	case err == nil:
		w.counters.Processed.Add(1)
	case dropped(err):
		w.counters.Dropped.Add(1)
	default:
		w.counters.Failed.Add(1)
	}
}

// dropped reports whether err means the event was discarded on purpose
// rather than lost to a store failure.
func dropped(err error) bool {
	if errors.Is(err, tracking.ErrDebounced) {
		return true
	}
	switch errs.KindOf(err) {
	case errs.KindRateLimited, errs.KindPermissionDenied, errs.KindInvalid:
		return true
	case errs.KindNetwork, errs.KindDatabase, errs.KindNotFound, errs.KindUnknown:
		return false
	}
	return false
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	logger   logger.Logger
}

// NewPool creates a pool sized to the partitions of q. opts apply to every
// worker.
func NewPool(q Queue, tracker Tracker, opts ...Option) *Pool {
	p := &Pool{
		workers:  make([]*InMemoryWorker, q.Partitions()),
		queue:    q,
		counters: &Counters{},
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, tracker, i, p.counters, workerOpts...)
	}
	metrics.UpdateWorkerCount(len(p.workers))
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many events were persisted.
func (p *Pool) Processed() int64 { return p.counters.Processed.Load() }

// Dropped returns how many events were intentionally discarded.
func (p *Pool) Dropped() int64 { return p.counters.Dropped.Load() }

// Failed returns how many events failed with a store error.
func (p *Pool) Failed() int64 { return p.counters.Failed.Load() }

// Shutdown closes the queue and lets workers drain what is left.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
