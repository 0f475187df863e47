package scoring_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/adapters/store/memstore"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultRules(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		rules := scoring.DefaultRules()

		Convey("Then every rule is active with a unique uuid id", func() {
			ids := map[string]bool{}
			for _, r := range rules {
				So(uuid.Validate(r.ID), ShouldBeNil)
				So(r.Active, ShouldBeTrue)
				So(r.Points, ShouldBeGreaterThan, 0)
				So(ids[r.ID], ShouldBeFalse)
				ids[r.ID] = true
			}
		})

		Convey("Then a demo request wins over the generic contact form", func() {
			r, ok := scoring.Match(rules, scoring.Input{EventType: model.EventFormFill, PagePath: "/book-a-demo"})
			So(ok, ShouldBeTrue)
			So(r.ID, ShouldEqual, scoring.RuleDemoRequestID)
			So(r.Points, ShouldEqual, 40)

			r, ok = scoring.Match(rules, scoring.Input{EventType: model.EventFormFill, PagePath: "/contact"})
			So(ok, ShouldBeTrue)
			So(r.ID, ShouldEqual, scoring.RuleContactFormID)
		})

		Convey("Then an unmatched page view scores nothing", func() {
			_, ok := scoring.Match(rules, scoring.Input{EventType: model.EventPageView, PagePath: "/about"})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSeed(t *testing.T) {
	Convey("Given an empty rules relation", t, func() {
		ctx := context.Background()
		s := memstore.New()

		Convey("When the catalog is seeded", func() {
			n, err := scoring.Seed(ctx, s, scoring.DefaultRules())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, len(scoring.DefaultRules()))

			rows, err := s.Select(ctx, store.Query{Relation: store.RelRules})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, n)

			Convey("Then seeding again writes nothing", func() {
				n, err := scoring.Seed(ctx, s, scoring.DefaultRules())
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a relation that already holds a custom rule", t, func() {
		ctx := context.Background()
		s := memstore.New()
		seed(ctx, s, model.ScoringRule{ID: "custom", TriggerType: model.EventDownload, Points: 3, Active: true})

		Convey("Then the catalog is not installed", func() {
			n, err := scoring.Seed(ctx, s, scoring.DefaultRules())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}
