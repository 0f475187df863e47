package testevents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKindFor(t *testing.T) {
	Convey("Given a hot share of 0.2", t, func() {
		Convey("Then low draws are buyers", func() {
			So(kindFor(0, 0.2), ShouldEqual, KindBuyer)
			So(kindFor(0.19, 0.2), ShouldEqual, KindBuyer)
		})
		Convey("Then the remainder splits between research and browsing", func() {
			So(kindFor(0.5, 0.2), ShouldEqual, KindResearch)
			So(kindFor(0.61, 0.2), ShouldEqual, KindBrowser)
			So(kindFor(0.999, 0.2), ShouldEqual, KindBrowser)
		})
	})
}

func TestBuildJourney(t *testing.T) {
	Convey("Given the default scoring rules", t, func() {
		rules := scoring.DefaultRules()

		cases := []struct {
			kind     string
			expected int
			hot      bool
		}{
			{KindBrowser, 10, false},
			{KindResearch, 40, false},
			{KindBuyer, 80, true},
		}
		for _, c := range cases {
			j := buildJourney("visitor-1", "acme.com", c.kind, rules)

			Convey("Then a "+c.kind+" journey earns its expected score", func() {
				So(j.Expected, ShouldEqual, c.expected)
				So(j.Expected >= model.DefaultHotLeadThreshold, ShouldEqual, c.hot)
			})

			Convey("Then every "+c.kind+" event is valid for submission", func() {
				sessions := map[string]bool{}
				for _, ev := range j.Events {
					So(uuid.Validate(ev.EventID), ShouldBeNil)
					So(ev.VisitorID, ShouldEqual, "visitor-1")
					So(ev.CompanyDomain, ShouldEqual, "acme.com")
					So(model.EventType(ev.EventType).Known(), ShouldBeTrue)
					So(ev.PageURL, ShouldStartWith, siteOrigin+ev.PagePath)
					So(sessions[ev.SessionID], ShouldBeFalse)
					sessions[ev.SessionID] = true
				}
			})
		}
	})
}

func TestGenerateJourneys(t *testing.T) {
	Convey("Given a config where every visitor is a buyer", t, func() {
		config := &Config{Visitors: 25, HotShare: 1}
		stats := &Stats{}

		journeys, err := generateJourneys(context.Background(), config, stats)

		Convey("Then one journey per visitor is generated and all are expected hot", func() {
			So(err, ShouldBeNil)
			So(journeys, ShouldHaveLength, 25)
			So(stats.Visitors, ShouldEqual, 25)
			So(stats.ExpectedHot, ShouldEqual, 25)

			ids := map[string]bool{}
			for _, j := range journeys {
				So(j.Kind, ShouldEqual, KindBuyer)
				So(ids[j.VisitorID], ShouldBeFalse)
				ids[j.VisitorID] = true
			}
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := generateJourneys(ctx, &Config{Visitors: 3}, &Stats{})

		Convey("Then generation stops with an error", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
