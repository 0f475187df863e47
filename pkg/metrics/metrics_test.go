package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithLatencyBuckets([]float64{1, 10}),
				WithPointsBuckets([]float64{5}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered on that registry", func() {
				So(m, ShouldNotBeNil)
				m.eventsTracked.WithLabelValues("page_view").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_events_tracked_total"], ShouldBeTrue)
			})
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording tracked events", func() {
			before := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("calculator_use"))
			RecordEventTracked("calculator_use", 15)
			after := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("calculator_use"))
			So(after-before, ShouldEqual, 1)
		})

		Convey("When recording drops and rate-limit hits", func() {
			before := testutil.ToFloat64(globalManager.eventsDropped.WithLabelValues("debounced"))
			RecordEventDropped("debounced")
			So(testutil.ToFloat64(globalManager.eventsDropped.WithLabelValues("debounced"))-before, ShouldEqual, 1)

			hits := testutil.ToFloat64(globalManager.rateLimitHits.WithLabelValues("track"))
			RecordRateLimitHit("track")
			So(testutil.ToFloat64(globalManager.rateLimitHits.WithLabelValues("track"))-hits, ShouldEqual, 1)
		})

		Convey("When updating gauges", func() {
			UpdateHotLeads(4)
			So(testutil.ToFloat64(globalManager.hotLeads), ShouldEqual, 4)
			UpdateQueueSize(12)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
		})

		Convey("When the realtime status is out of range", func() {
			So(UpdateRealtimeStatus(RealtimeSubscribed), ShouldBeNil)
			So(testutil.ToFloat64(globalManager.realtimeStatus), ShouldEqual, RealtimeSubscribed)
			So(UpdateRealtimeStatus(9), ShouldEqual, ErrUnknownStatus)
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordRuleMatch(true)
				RecordRuleMatch(false)
				UpdateRulesLoaded(3)
				RecordCacheHit("critical")
				RecordCacheMiss("critical")
				RecordCacheRetry("important")
				RecordCacheInvalidation("leads")
				UpdateCacheEntries(7)
				RecordStoreCall("lead_scores", "select", 3.5)
				RecordStoreError("lead_scores", "permission_denied")
				RecordMonitorAlert("slow_query")
				RecordRealtimeUpdate("hot_lead")
				RecordNotification("hot_lead", true)
				RecordNotification("hot_lead", false)
				UpdateQueueCapacity(100)
				RecordQueueRejected("full")
				UpdateWorkerCount(4)
				RecordHTTPRequest("events", "POST", "202")
				RecordHTTPRequestDuration("events", "POST", "202", 1.2)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
