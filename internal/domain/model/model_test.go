package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/leadpulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseAttribution(t *testing.T) {
	Convey("Given a landing URL with UTM parameters", t, func() {
		u := "https://example.com/calculadora-valoracion?utm_source=google&utm_medium=cpc&utm_campaign=spring&utm_term=valuation&utm_content=ad1"

		Convey("When parsing attribution", func() {
			a := model.ParseAttribution(u, "https://google.com", "Mozilla/5.0")

			Convey("Then every UTM field is captured", func() {
				So(a.UTMSource, ShouldEqual, "google")
				So(a.UTMMedium, ShouldEqual, "cpc")
				So(a.UTMCampaign, ShouldEqual, "spring")
				So(a.UTMTerm, ShouldEqual, "valuation")
				So(a.UTMContent, ShouldEqual, "ad1")
				So(a.Referrer, ShouldEqual, "https://google.com")
				So(a.UserAgent, ShouldEqual, "Mozilla/5.0")
			})
		})

		Convey("When the URL is unparsable", func() {
			a := model.ParseAttribution("://bad url", "", "ua")
			So(a.UTMSource, ShouldBeEmpty)
			So(a.UserAgent, ShouldEqual, "ua")
		})
	})
}

func TestTrackRequestNormalize(t *testing.T) {
	Convey("Given a raw track request", t, func() {
		r := model.TrackRequest{
			VisitorID:     "  v-1 ",
			CompanyDomain: " Acme.COM ",
			EventType:     " page_view ",
			PageURL:       "https://acme.com/blog/post-1?utm_source=x",
		}

		Convey("When normalizing", func() {
			r.Normalize()

			Convey("Then identifiers are trimmed and the path is derived", func() {
				So(r.VisitorID, ShouldEqual, "v-1")
				So(r.CompanyDomain, ShouldEqual, "acme.com")
				So(r.EventType, ShouldEqual, model.EventPageView)
				So(r.PagePath, ShouldEqual, "/blog/post-1")
			})
		})
	})
}

func TestPriority(t *testing.T) {
	Convey("Given alert priorities", t, func() {
		Convey("Then only high and critical are urgent", func() {
			So(model.PriorityLow.IsUrgent(), ShouldBeFalse)
			So(model.PriorityMedium.IsUrgent(), ShouldBeFalse)
			So(model.PriorityHigh.IsUrgent(), ShouldBeTrue)
			So(model.PriorityCritical.IsUrgent(), ShouldBeTrue)
		})

		Convey("Then parsing is case-insensitive and rejects unknown values", func() {
			p, err := model.ParsePriority("CRITICAL")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, model.PriorityCritical)
			_, err = model.ParsePriority("urgent")
			So(err, ShouldNotBeNil)
		})

		Convey("Then priorities encode as strings in JSON", func() {
			b, err := json.Marshal(model.Alert{ID: "a", Priority: model.PriorityHigh})
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, `"priority":"high"`)

			var a model.Alert
			So(json.Unmarshal([]byte(`{"priority":"critical"}`), &a), ShouldBeNil)
			So(a.Priority, ShouldEqual, model.PriorityCritical)
		})
	})
}

func TestLeadScoreHelpers(t *testing.T) {
	Convey("Given lead scores with varying contact data", t, func() {
		So(model.LeadScore{VisitorID: "v"}.DisplayName(), ShouldEqual, "v")
		So(model.LeadScore{VisitorID: "v", CompanyDomain: "acme.com"}.DisplayName(), ShouldEqual, "acme.com")
		So(model.LeadScore{VisitorID: "v", Email: "a@b.c"}.DisplayName(), ShouldEqual, "a@b.c")
		So(model.LeadScore{VisitorID: "v", Email: "a@b.c", Name: "Ana"}.DisplayName(), ShouldEqual, "Ana")
		So(model.LeadScore{Email: "a@b.c"}.Identified(), ShouldBeTrue)
		So(model.LeadScore{}.Identified(), ShouldBeFalse)
		So(model.LeadUpdate{}.Empty(), ShouldBeTrue)
	})
}
