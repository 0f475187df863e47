package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/leadpulse/internal/adapters/mq/queue"
	worker "github.com/okian/leadpulse/internal/adapters/mq/worker"
	"github.com/okian/leadpulse/internal/domain/errs"
	model "github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/tracking"
	logging "github.com/okian/leadpulse/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	eventChan chan queue.Event
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(context.Context, int) <-chan queue.Event { return mq.eventChan }

func (mq *mockQueue) Partitions() int { return 1 }

func (mq *mockQueue) Close() error {
	close(mq.eventChan)
	return nil
}

type mockTracker struct {
	mu       sync.Mutex
	seen     []model.TrackRequest
	reported []error
	errors   map[string]error
}

func newMockTracker() *mockTracker {
	return &mockTracker{errors: make(map[string]error)}
}

func (mt *mockTracker) Track(_ context.Context, req model.TrackRequest) (model.BehaviorEvent, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.seen = append(mt.seen, req)
	if err := mt.errors[req.VisitorID]; err != nil {
		return model.BehaviorEvent{}, err
	}
	return model.BehaviorEvent{VisitorID: req.VisitorID, EventType: req.EventType}, nil
}

func (mt *mockTracker) Report(_ context.Context, _ model.TrackRequest, err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.reported = append(mt.reported, err)
}

func (mt *mockTracker) reports() []error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]error(nil), mt.reported...)
}

func (mt *mockTracker) count() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker over a single partition", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		tr := newMockTracker()
		tr.errors["debounced"] = tracking.ErrDebounced
		tr.errors["limited"] = errs.RateLimited("track:limited")
		tr.errors["denied"] = errs.PermissionDenied("store.insert", "42501", nil)
		tr.errors["broken"] = errs.Database("store.insert", "XX000", errors.New("boom"), nil)
		counters := &worker.Counters{}
		w := worker.NewInMemoryWorker(q, tr, 0, counters, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When events with every outcome are processed", func() {
			for _, id := range []string{"ok-1", "debounced", "limited", "denied", "broken", "ok-2"} {
				q.eventChan <- queue.Event{VisitorID: id, EventType: model.EventPageView}
			}

			convey.Convey("Then each is counted by outcome", func() {
				convey.So(waitFor(func() bool { return tr.count() == 6 }), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool {
					return counters.Processed.Load()+counters.Dropped.Load()+counters.Failed.Load() == 6
				}), convey.ShouldBeTrue)
				convey.So(counters.Processed.Load(), convey.ShouldEqual, 2)
				convey.So(counters.Dropped.Load(), convey.ShouldEqual, 3)
				convey.So(counters.Failed.Load(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then every outcome is handed to the tracker for logging", func() {
				convey.So(waitFor(func() bool { return len(tr.reports()) == 6 }), convey.ShouldBeTrue)
				var failures int
				for _, err := range tr.reports() {
					if err != nil {
						failures++
					}
				}
				convey.So(failures, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops without error", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a partitioned queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithPartitions(3))
		tr := newMockTracker()
		pool := worker.NewPool(q, tr, worker.WithLogger(logging.Nop()))
		ctx := context.Background()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		convey.Convey("When events are enqueued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, queue.Event{VisitorID: "v-" + string(rune('a'+i)), EventType: model.EventDownload}), convey.ShouldBeNil)
			}
			convey.So(waitFor(func() bool { return pool.Processed() == 20 }), convey.ShouldBeTrue)
			err := pool.Shutdown(ctx)

			convey.Convey("Then every event was tracked and the queue is closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(tr.count(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(pool.Dropped(), convey.ShouldEqual, 0)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})
		})
	})
}
