package scoring_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/adapters/store/memstore"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/internal/domain/scoring"
	"github.com/okian/leadpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type countingClient struct {
	store.Client
	selects atomic.Int32
}

func (c *countingClient) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	c.selects.Add(1)
	return c.Client.Select(ctx, q)
}

type hits struct{ keys []string }

func (h *hits) RecordRateLimitHit(key string) { h.keys = append(h.keys, key) }

func seed(ctx context.Context, s *memstore.Store, rules ...model.ScoringRule) {
	for _, r := range rules {
		_, err := s.Insert(ctx, store.RelRules, store.RuleRow(r))
		So(err, ShouldBeNil)
	}
}

func TestMatch(t *testing.T) {
	Convey("Given a rule for blog page views", t, func() {
		rules := []model.ScoringRule{
			{ID: "r-blog", TriggerType: model.EventPageView, PagePattern: "/blog%", Points: 5},
		}

		Convey("Then it matches paths under /blog regardless of case", func() {
			for _, path := range []string{"/blog", "/blog/post-1", "/BLOG/Archive"} {
				r, ok := scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: path})
				So(ok, ShouldBeTrue)
				So(r.ID, ShouldEqual, "r-blog")
			}
		})

		Convey("Then it does not match other paths or event types", func() {
			_, ok := scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: "/pricing"})
			So(ok, ShouldBeFalse)
			_, ok = scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: "/news/blog"})
			So(ok, ShouldBeFalse)
			_, ok = scoring.Match(rules, scoring.Input{EventType: model.EventDownload, PagePath: "/blog"})
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given patterns with single-character wildcards and regex metacharacters", t, func() {
		rules := []model.ScoringRule{
			{ID: "r-v", TriggerType: model.EventPageView, PagePattern: "/v_/docs", Points: 1},
			{ID: "r-dot", TriggerType: model.EventDownload, PagePattern: "/files/guide.pdf", Points: 1},
		}

		_, ok := scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: "/v2/docs"})
		So(ok, ShouldBeTrue)
		_, ok = scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: "/v10/docs"})
		So(ok, ShouldBeFalse)
		_, ok = scoring.Match(rules, scoring.Input{EventType: model.EventDownload, PagePath: "/files/guideXpdf"})
		So(ok, ShouldBeFalse)
	})

	Convey("Given rules in points order", t, func() {
		rules := []model.ScoringRule{
			{ID: "enterprise", TriggerType: model.EventFormFill, Points: 40, Industries: []string{"finance"}},
			{ID: "large", TriggerType: model.EventFormFill, Points: 30, CompanySizes: []string{"1000+"}},
			{ID: "any", TriggerType: model.EventFormFill, Points: 20},
		}

		Convey("Then the first applicable rule wins", func() {
			r, _ := scoring.Match(rules, scoring.Input{EventType: model.EventFormFill, Industry: "Finance"})
			So(r.ID, ShouldEqual, "enterprise")
		})

		Convey("Then a conflicting attribute skips a rule", func() {
			r, _ := scoring.Match(rules, scoring.Input{EventType: model.EventFormFill, Industry: "retail", CompanySize: "1000+"})
			So(r.ID, ShouldEqual, "large")
			r, _ = scoring.Match(rules, scoring.Input{EventType: model.EventFormFill, Industry: "retail", CompanySize: "10"})
			So(r.ID, ShouldEqual, "any")
		})

		Convey("Then a missing attribute does not exclude", func() {
			r, _ := scoring.Match(rules, scoring.Input{EventType: model.EventFormFill})
			So(r.ID, ShouldEqual, "enterprise")
		})
	})
}

func TestEngine(t *testing.T) {
	Convey("Given an engine over a store with rules", t, func() {
		ctx := context.Background()
		s := memstore.New()
		seed(ctx, s,
			model.ScoringRule{ID: "view", TriggerType: model.EventPageView, Points: 1, Active: true},
			model.ScoringRule{ID: "blog", TriggerType: model.EventPageView, PagePattern: "/blog%", Points: 5, Active: true},
			model.ScoringRule{ID: "calc", TriggerType: model.EventCalculatorUse, Points: 15, Active: true},
			model.ScoringRule{ID: "off", TriggerType: model.EventDownload, Points: 50, Active: false},
		)
		client := &countingClient{Client: s}
		c := cache.New(cache.WithLogger(logger.Nop()))
		e := scoring.New(client, c, scoring.WithLogger(logger.Nop()))

		Convey("When rules are loaded", func() {
			rules, err := e.Rules(ctx)

			Convey("Then active rules come back ordered by points", func() {
				So(err, ShouldBeNil)
				So(rules, ShouldHaveLength, 3)
				So(rules[0].ID, ShouldEqual, "calc")
				So(rules[1].ID, ShouldEqual, "blog")
				So(rules[2].ID, ShouldEqual, "view")
			})

			Convey("Then a second load is served from cache", func() {
				_, err := e.Rules(ctx)
				So(err, ShouldBeNil)
				So(client.selects.Load(), ShouldEqual, 1)
			})
		})

		Convey("When events are resolved", func() {
			So(e.Resolve(ctx, scoring.Input{EventType: model.EventCalculatorUse}), ShouldResemble, scoring.Result{RuleID: "calc", Points: 15})
			So(e.Resolve(ctx, scoring.Input{EventType: model.EventPageView, PagePath: "/blog/x"}).Points, ShouldEqual, 5)
			So(e.Resolve(ctx, scoring.Input{EventType: model.EventPageView, PagePath: "/home"}).Points, ShouldEqual, 1)
			So(e.Resolve(ctx, scoring.Input{EventType: model.EventDownload}), ShouldResemble, scoring.Result{})
		})
	})

	Convey("Given an engine whose loads are rate limited", t, func() {
		ctx := context.Background()
		s := memstore.New()
		seed(ctx, s, model.ScoringRule{ID: "calc", TriggerType: model.EventCalculatorUse, Points: 15, Active: true})
		client := &countingClient{Client: s}
		c := cache.New(cache.WithLogger(logger.Nop()))
		rec := &hits{}
		e := scoring.New(client, c,
			scoring.WithLogger(logger.Nop()),
			scoring.WithRateLimitRecorder(rec),
			scoring.WithLimiter(ratelimit.New(ratelimit.WithMaxRequests(1), ratelimit.WithWindow(time.Hour))),
		)
		first, err := e.Rules(ctx)
		So(err, ShouldBeNil)
		c.Invalidate(cache.KeyActiveRules)

		Convey("When the cache is cold and the limiter rejects", func() {
			rules, err := e.Rules(ctx)

			Convey("Then the last loaded rules are used", func() {
				So(err, ShouldBeNil)
				So(rules, ShouldResemble, first)
				So(client.selects.Load(), ShouldEqual, 1)
				So(rec.keys, ShouldResemble, []string{"rules:fetch"})
			})
		})
	})

	Convey("Given a store that denies reading rules", t, func() {
		ctx := context.Background()
		s := memstore.New(memstore.WithDeniedRelations(store.RelRules))
		e := scoring.New(s, cache.New(cache.WithLogger(logger.Nop())), scoring.WithLogger(logger.Nop()))

		Convey("Then no rules and no error are returned", func() {
			rules, err := e.Rules(ctx)
			So(err, ShouldBeNil)
			So(rules, ShouldBeEmpty)
			So(e.Resolve(ctx, scoring.Input{EventType: model.EventPageView}).Points, ShouldEqual, 0)
		})
	})
}
