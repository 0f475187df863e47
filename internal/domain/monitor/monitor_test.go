package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/leadpulse/internal/domain/monitor"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
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

func newMonitor(clk *clock, opts ...monitor.Option) *monitor.Monitor {
	base := []monitor.Option{monitor.WithClock(clk.Now), monitor.WithLogger(logger.Nop())}
	return monitor.New(append(base, opts...)...)
}

func TestRecordQuery(t *testing.T) {
	Convey("Given a monitor", t, func() {
		clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		m := newMonitor(clk)

		Convey("When 11 queries are recorded and 2 of them failed", func() {
			for i := 0; i < 9; i++ {
				m.RecordQuery("leads:all", 10, i%3 == 0, false)
			}
			m.RecordQuery("leads:all", 20, false, true)
			m.RecordQuery("leads:all", 20, false, true)

			Convey("Then the error rate is 2/11", func() {
				s := m.Metrics()
				So(s.TotalQueries, ShouldEqual, 11)
				So(s.Errors, ShouldEqual, 2)
				So(s.ErrorRate, ShouldAlmostEqual, 18.18, 0.01)
				So(s.CacheHits, ShouldEqual, 3)
				So(s.AverageMs, ShouldAlmostEqual, 130.0/11, 0.001)
			})

			Convey("Then error_spike alerts were raised", func() {
				alerts := m.Alerts()
				So(alerts, ShouldNotBeEmpty)
				for _, a := range alerts {
					So(a.Type, ShouldEqual, monitor.AlertErrorSpike)
				}
			})
		})

		Convey("When one 2500ms query is recorded", func() {
			m.RecordQuery("leads:hot", 2500, false, false)

			Convey("Then exactly one slow_query alert exists", func() {
				alerts := m.Alerts()
				So(alerts, ShouldHaveLength, 1)
				So(alerts[0].Type, ShouldEqual, monitor.AlertSlowQuery)
				So(alerts[0].Key, ShouldEqual, "leads:hot")
				So(alerts[0].Value, ShouldEqual, 2500)
				So(alerts[0].At, ShouldEqual, clk.Now())
				So(m.Metrics().SlowQueries, ShouldEqual, 1)
			})
		})

		Convey("When a query takes exactly the threshold", func() {
			m.RecordQuery("leads:hot", 2000, false, false)
			So(m.Alerts(), ShouldBeEmpty)
		})

		Convey("When more than 100 samples are recorded", func() {
			for i := 0; i < 100; i++ {
				m.RecordQuery("k", 1000, false, false)
			}
			for i := 0; i < 100; i++ {
				m.RecordQuery("k", 10, false, false)
			}

			Convey("Then the average covers only the last 100", func() {
				s := m.Metrics()
				So(s.Samples, ShouldEqual, 100)
				So(s.AverageMs, ShouldEqual, 10)
				So(s.TotalQueries, ShouldEqual, 200)
			})
		})

		Convey("When rate limit hits are recorded", func() {
			m.RecordRateLimitHit("track:v-1")
			m.RecordRateLimitHit("rules:active")
			So(m.Metrics().RateLimitHits, ShouldEqual, 2)
		})
	})
}

func TestAlertBounds(t *testing.T) {
	Convey("Given a monitor with an unlimited alert gate", t, func() {
		clk := &clock{t: time.Now()}
		m := newMonitor(clk, monitor.WithLimiter(ratelimit.New(ratelimit.WithMaxRequests(1000))))

		Convey("When 30 slow queries are recorded", func() {
			for i := 0; i < 30; i++ {
				m.RecordQuery("slow", 3000+float64(i), false, false)
			}

			Convey("Then only the last 20 alerts are kept", func() {
				alerts := m.Alerts()
				So(alerts, ShouldHaveLength, 20)
				So(alerts[0].Value, ShouldEqual, 3010)
				So(alerts[19].Value, ShouldEqual, 3029)
			})
		})
	})

	Convey("Given a monitor with the default alert gate", t, func() {
		clk := &clock{t: time.Now()}
		m := newMonitor(clk, monitor.WithLimiter(ratelimit.New(
			ratelimit.WithMaxRequests(2),
			ratelimit.WithWindow(time.Minute),
			ratelimit.WithClock(clk.Now),
		)))

		Convey("When more slow queries arrive than the gate allows", func() {
			for i := 0; i < 5; i++ {
				m.RecordQuery("slow", 5000, false, false)
			}

			Convey("Then evaluation is skipped but counters still move", func() {
				So(m.Alerts(), ShouldHaveLength, 2)
				So(m.Metrics().SlowQueries, ShouldEqual, 5)
			})
		})
	})
}

func TestSweepAndClear(t *testing.T) {
	Convey("Given alerts of different ages", t, func() {
		clk := &clock{t: time.Now()}
		m := newMonitor(clk)
		m.RecordQuery("old", 2500, false, false)
		clk.Advance(50 * time.Minute)
		m.RecordQuery("new", 2500, false, false)
		clk.Advance(20 * time.Minute)

		Convey("When the sweep runs", func() {
			dropped := m.Sweep(context.Background())

			Convey("Then only alerts older than an hour are gone", func() {
				So(dropped, ShouldEqual, 1)
				alerts := m.Alerts()
				So(alerts, ShouldHaveLength, 1)
				So(alerts[0].Key, ShouldEqual, "new")
			})
		})

		Convey("When the monitor is cleared", func() {
			m.Clear()

			Convey("Then everything is reset", func() {
				So(m.Alerts(), ShouldBeEmpty)
				So(m.Metrics(), ShouldResemble, monitor.Snapshot{})
			})
		})
	})

	Convey("Given a started monitor", t, func() {
		m := newMonitor(&clock{t: time.Now()})
		So(m.Start(context.Background()), ShouldBeNil)
		So(m.Start(context.Background()), ShouldBeNil)

		Convey("Then it stops cleanly", func() {
			So(func() { m.Stop() }, ShouldNotPanic)
			So(func() { m.Stop() }, ShouldNotPanic)
		})
	})

	Convey("Given an invalid sweep schedule", t, func() {
		m := newMonitor(&clock{t: time.Now()}, monitor.WithSweep("not a schedule", 0))
		So(m.Start(context.Background()), ShouldNotBeNil)
	})
}
