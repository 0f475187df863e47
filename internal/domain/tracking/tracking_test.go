package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/adapters/store/memstore"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/internal/domain/scoring"
	"github.com/okian/leadpulse/internal/domain/tracking"
	"github.com/okian/leadpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type scheduler struct {
	mu     sync.Mutex
	writes []string
}

func (s *scheduler) Schedule(write string) {
	s.mu.Lock()
	s.writes = append(s.writes, write)
	s.mu.Unlock()
}

type hits struct{ keys []string }

func (h *hits) RecordRateLimitHit(key string) { h.keys = append(h.keys, key) }

type fixture struct {
	store   *memstore.Store
	clock   *clock
	sched   *scheduler
	hits    *hits
	tracker *tracking.Tracker
}

func newFixture(opts ...tracking.Option) fixture {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	s := memstore.New(memstore.WithClock(clk.Now))
	for _, r := range []model.ScoringRule{
		{ID: "calc", TriggerType: model.EventCalculatorUse, Points: 15, Active: true},
		{ID: "blog", TriggerType: model.EventPageView, PagePattern: "/blog%", Points: 5, Active: true},
		{ID: "demo", TriggerType: model.EventFormFill, Points: 30, Active: true, Industries: []string{"finance"}},
	} {
		_, err := s.Insert(ctx, store.RelRules, store.RuleRow(r))
		So(err, ShouldBeNil)
	}
	engine := scoring.New(s, cache.New(cache.WithLogger(logger.Nop())), scoring.WithLogger(logger.Nop()))
	f := fixture{store: s, clock: clk, sched: &scheduler{}, hits: &hits{}}
	base := []tracking.Option{
		tracking.WithClock(clk.Now),
		tracking.WithInvalidator(f.sched),
		tracking.WithRateLimitRecorder(f.hits),
		tracking.WithLogger(logger.Nop()),
	}
	f.tracker = tracking.New(s, engine, append(base, opts...)...)
	return f
}

func TestTrack(t *testing.T) {
	Convey("Given a tracker with scoring rules", t, func() {
		ctx := context.Background()
		f := newFixture()
		visit := tracking.Visit{
			VisitorID:     "v-1",
			SessionID:     "s-1",
			CompanyDomain: "Acme.COM",
			PageURL:       "https://example.com/calculadora-valoracion?utm_source=newsletter&utm_campaign=spring",
			Referrer:      "https://google.com",
			UserAgent:     "Mozilla/5.0",
		}

		Convey("When a calculator use is tracked", func() {
			ev, err := f.tracker.TrackCalculatorUse(ctx, visit, "/calculadora-valoracion", map[string]any{"revenue": "1M"})

			Convey("Then the event carries the rule's points and attribution", func() {
				So(err, ShouldBeNil)
				So(ev.ID, ShouldNotBeEmpty)
				So(ev.PointsAwarded, ShouldEqual, 15)
				So(ev.RuleID, ShouldEqual, "calc")
				So(ev.CompanyDomain, ShouldEqual, "acme.com")
				So(ev.UTMSource, ShouldEqual, "newsletter")
				So(ev.UTMCampaign, ShouldEqual, "spring")
				So(ev.Referrer, ShouldEqual, "https://google.com")
				So(ev.UserAgent, ShouldEqual, "Mozilla/5.0")
				So(ev.Payload["revenue"], ShouldEqual, "1M")
				So(ev.CreatedAt, ShouldEqual, f.clock.Now())
			})

			Convey("Then the event is persisted and aggregated by the store", func() {
				So(f.store.Len(store.RelEvents), ShouldEqual, 1)
				rows, err := f.store.Select(ctx, store.Query{
					Relation: store.RelScores,
					Filters:  []store.Filter{store.Eq("visitor_id", "v-1")},
				})
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Int("total_score"), ShouldEqual, 15)
			})

			Convey("Then event aggregates are scheduled for invalidation", func() {
				So(f.sched.writes, ShouldResemble, []string{cache.WriteEvents})
			})
		})

		Convey("When an event matches no rule", func() {
			ev, err := f.tracker.TrackDownload(ctx, visit, "/files/x.pdf", "x.pdf")
			So(err, ShouldBeNil)
			So(ev.PointsAwarded, ShouldEqual, 0)
			So(ev.RuleID, ShouldBeEmpty)
			So(ev.Payload["resource"], ShouldEqual, "x.pdf")
		})

		Convey("When a form fill carries a conflicting industry", func() {
			ev, err := f.tracker.TrackFormFill(ctx, visit, "/demo", "demo", map[string]any{"industry": "retail"})
			So(err, ShouldBeNil)
			So(ev.PointsAwarded, ShouldEqual, 0)
			So(ev.Payload["form"], ShouldEqual, "demo")
		})

		Convey("When two calls arrive inside the cooldown for one session", func() {
			_, err1 := f.tracker.TrackPageView(ctx, visit, "/blog/a")
			_, err2 := f.tracker.TrackPageView(ctx, visit, "/blog/b")

			Convey("Then the second is debounced", func() {
				So(err1, ShouldBeNil)
				So(errors.Is(err2, tracking.ErrDebounced), ShouldBeTrue)
				So(f.store.Len(store.RelEvents), ShouldEqual, 1)
			})

			Convey("Then another session is not affected", func() {
				other := visit
				other.SessionID = "s-2"
				_, err := f.tracker.TrackPageView(ctx, other, "/blog/c")
				So(err, ShouldBeNil)
			})

			Convey("Then the session may track again after the cooldown", func() {
				f.clock.Advance(6 * time.Second)
				_, err := f.tracker.TrackTimeOnSite(ctx, visit, "/blog/a", 90*time.Second)
				So(err, ShouldBeNil)
				So(f.store.Len(store.RelEvents), ShouldEqual, 2)
			})
		})

		Convey("When the request is missing required fields", func() {
			_, err := f.tracker.Track(ctx, model.TrackRequest{EventType: model.EventPageView})
			So(errs.KindOf(err), ShouldEqual, errs.KindInvalid)
			_, err = f.tracker.Track(ctx, model.TrackRequest{VisitorID: "v-1"})
			So(errs.KindOf(err), ShouldEqual, errs.KindInvalid)
			_, err = f.tracker.Track(ctx, model.TrackRequest{EventID: "not-a-uuid", VisitorID: "v-1", EventType: model.EventPageView})
			So(errs.KindOf(err), ShouldEqual, errs.KindInvalid)
		})

		Convey("When the client supplies an event id", func() {
			const id = "6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"
			ev, err := f.tracker.Track(ctx, model.TrackRequest{EventID: id, VisitorID: "v-2", EventType: model.EventPageView, PagePath: "/blog/x"})

			Convey("Then it becomes the row id", func() {
				So(err, ShouldBeNil)
				So(ev.ID, ShouldEqual, id)
			})
		})
	})

	Convey("Given a tracker with a tight visitor limit and no debounce", t, func() {
		ctx := context.Background()
		f := newFixture(
			tracking.WithCooldown(0),
			tracking.WithLimiter(ratelimit.New(ratelimit.WithMaxRequests(2), ratelimit.WithWindow(time.Minute))),
		)
		visit := tracking.Visit{VisitorID: "v-9", SessionID: "s-9"}

		Convey("When the visitor exceeds the limit", func() {
			_, err1 := f.tracker.TrackPageView(ctx, visit, "/")
			_, err2 := f.tracker.TrackPageView(ctx, visit, "/")
			_, err3 := f.tracker.TrackPageView(ctx, visit, "/")

			Convey("Then the call is rejected and reported", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(errs.KindOf(err3), ShouldEqual, errs.KindRateLimited)
				So(f.hits.keys, ShouldResemble, []string{"track:v-9"})
				So(f.store.Len(store.RelEvents), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a store denying event writes", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.store.Deny(store.RelEvents, true)

		Convey("When an event is tracked", func() {
			_, err := f.tracker.TrackPageView(ctx, tracking.Visit{VisitorID: "v-1"}, "/")

			Convey("Then the permission error is returned typed and nothing is scheduled", func() {
				So(errs.IsPermissionDenied(err), ShouldBeTrue)
				So(f.sched.writes, ShouldBeEmpty)
			})
		})
	})
}

func TestFire(t *testing.T) {
	Convey("Given a tracker", t, func() {
		f := newFixture()

		Convey("When an event is fired", func() {
			f.tracker.Fire(context.Background(), model.TrackRequest{
				VisitorID: "v-2", SessionID: "s-2", EventType: model.EventCalculatorUse,
			})

			Convey("Then it is persisted in the background", func() {
				deadline := time.Now().Add(2 * time.Second)
				for f.store.Len(store.RelEvents) == 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(f.store.Len(store.RelEvents), ShouldEqual, 1)
			})
		})

		Convey("When a failing event is fired", func() {
			f.store.Fail(store.RelEvents, errs.Network("store.insert", errors.New("reset")))
			So(func() {
				f.tracker.Fire(context.Background(), model.TrackRequest{VisitorID: "v-3", EventType: model.EventPageView})
			}, ShouldNotPanic)
		})
	})
}
