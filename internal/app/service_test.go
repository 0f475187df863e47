package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/leadpulse/internal/adapters/kv"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/adapters/store/memstore"
	service "github.com/okian/leadpulse/internal/app"
	"github.com/okian/leadpulse/internal/config"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/identity"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// blockingStore holds event inserts until release is closed.
type blockingStore struct {
	*memstore.Store
	release chan struct{}
}

func (b *blockingStore) Insert(ctx context.Context, rel store.Relation, row store.Row) (store.Row, error) {
	if rel == store.RelEvents {
		<-b.release
	}
	return b.Store.Insert(ctx, rel, row)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report itself stopped", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 10_000)
		})
	})

	Convey("Given a service built from config", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 3
		cfg.QueueSize = 300
		svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))

		Convey("Then the config values are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueSize"], ShouldEqual, 300)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service on in-memory adapters", t, func() {
		mem := kv.NewMemory(time.Now)
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithKV(mem),
			service.WithRealtime(true, false),
			service.WithLogger(logger.Nop()),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["store"], ShouldEqual, "memory")
				So(stats["realtime"], ShouldEqual, "subscribed")
			})

			Convey("Then the visitor id is persisted in the KV", func() {
				b, err := mem.Get(ctx, identity.VisitorKey)
				So(err, ShouldBeNil)
				So(svc.GetStats()["visitorID"], ShouldEqual, string(b))
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then calls are rejected", func() {
				err := svc.Enqueue(ctx, model.TrackRequest{VisitorID: "v-1", EventType: model.EventPageView})
				So(err, ShouldEqual, service.ErrNotStarted)
				_, err = svc.ListHot(ctx)
				So(err, ShouldEqual, service.ErrNotStarted)
			})

			Convey("Then stopping twice is safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestService_Enqueue(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithRealtime(false, false),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the request is invalid", func() {
			err := svc.Enqueue(ctx, model.TrackRequest{VisitorID: "v-1"})

			Convey("Then it is rejected before queueing", func() {
				So(errs.KindOf(err), ShouldEqual, errs.KindInvalid)
			})
		})

		Convey("When the request carries no visitor or session", func() {
			So(svc.Enqueue(ctx, model.TrackRequest{EventType: model.EventCalculatorUse, PagePath: "/calculator"}), ShouldBeNil)

			Convey("Then it is tracked under the service identity", func() {
				So(waitFor(func() bool { return svc.GetStats()["processed"] == int64(1) }), ShouldBeTrue)
				visitorID, _ := svc.GetStats()["visitorID"].(string)
				So(visitorID, ShouldNotBeEmpty)
				lead, err := svc.Lead(ctx, visitorID)
				So(err, ShouldBeNil)
				So(lead.TotalScore, ShouldEqual, 15)
			})
		})

		Convey("When the same event id is submitted twice", func() {
			req := model.TrackRequest{
				EventID:   "0b7e8a52-6f43-4d8e-9a3c-1f2e3d4c5b6a",
				VisitorID: "v-dup",
				EventType: model.EventCalculatorUse,
			}
			So(svc.Enqueue(ctx, req), ShouldBeNil)
			So(svc.Enqueue(ctx, req), ShouldBeNil)

			Convey("Then only one event is tracked", func() {
				So(waitFor(func() bool { return svc.GetStats()["processed"] == int64(1) }), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(svc.GetStats()["processed"], ShouldEqual, int64(1))
				So(svc.GetStats()["dedupeEntries"], ShouldEqual, int64(1))
			})
		})
	})

	Convey("Given a service whose store stalls and a one-slot queue", t, func() {
		ctx := context.Background()
		blocked := &blockingStore{Store: memstore.New(), release: make(chan struct{})}
		svc := service.New(
			service.WithStore(blocked),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithDebounce(0),
			service.WithRealtime(false, false),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		defer close(blocked.release)

		Convey("When more events arrive than fit", func() {
			var rejected error
			for i := 0; i < 3; i++ {
				err := svc.Enqueue(ctx, model.TrackRequest{VisitorID: fmt.Sprintf("v-%d", i), EventType: model.EventPageView})
				if err != nil {
					rejected = err
				}
			}

			Convey("Then the overflow is reported as backpressure", func() {
				So(errs.KindOf(rejected), ShouldEqual, errs.KindRateLimited)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestService_LimiterPrune(t *testing.T) {
	Convey("Given a service with a short rate limit window and a frequent prune", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithDebounce(0),
			service.WithRateLimit(5, 10*time.Millisecond, 0),
			service.WithPruneSchedule("@every 1s"),
			service.WithRealtime(false, false),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When many distinct visitors are tracked once", func() {
			const visitors = 50
			for i := 0; i < visitors; i++ {
				req := model.TrackRequest{VisitorID: fmt.Sprintf("v-%d", i), EventType: model.EventPageView, PagePath: "/blog"}
				So(svc.Enqueue(ctx, req), ShouldBeNil)
			}
			So(waitFor(func() bool { return svc.GetStats()["processed"] == int64(visitors) }), ShouldBeTrue)

			Convey("Then their idle limiter windows are dropped", func() {
				So(waitFor(func() bool { return svc.GetStats()["limiterKeys"] == 0 }), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unparsable prune schedule", t, func() {
		svc := service.New(
			service.WithPruneSchedule("every now and then"),
			service.WithRealtime(false, false),
			service.WithLogger(logger.Nop()),
		)

		Convey("Then start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}
