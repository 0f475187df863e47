package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/leadpulse/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording events", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the event is new", func() {
				seen := d.SeenAndRecord(ctx, "event-1")

				Convey("Then it should return false and record the event", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the event was already seen", func() {
				d.SeenAndRecord(ctx, "event-1")
				seen := d.SeenAndRecord(ctx, "event-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the event is unrecorded", func() {
				d.SeenAndRecord(ctx, "event-1")
				d.Unrecord(ctx, "event-1")

				Convey("Then it can be recorded again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "event-1"), ShouldBeFalse)
				})
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3), dedupe.WithTTL(0))
			for i := 1; i <= 4; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("event-%d", i)), ShouldBeFalse)
			}

			Convey("Then the oldest id is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "event-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "event-1"), ShouldBeFalse)
			})
		})

		Convey("When ids expire", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(time.Minute), dedupe.WithClock(func() time.Time { return now }))
			d.SeenAndRecord(ctx, "event-1")
			now = now.Add(30 * time.Second)
			d.SeenAndRecord(ctx, "event-2")
			now = now.Add(45 * time.Second)

			Convey("Then only ids inside the ttl are remembered", func() {
				So(d.SeenAndRecord(ctx, "event-1"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "event-2"), ShouldBeTrue)
			})
		})

		Convey("When an unrecorded id is recorded again before the old record is evicted", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(time.Minute), dedupe.WithClock(func() time.Time { return now }))
			d.SeenAndRecord(ctx, "event-1")
			d.Unrecord(ctx, "event-1")
			now = now.Add(50 * time.Second)
			d.SeenAndRecord(ctx, "event-1")
			now = now.Add(20 * time.Second)

			Convey("Then the stale record does not evict the new one", func() {
				So(d.SeenAndRecord(ctx, "event-1"), ShouldBeTrue)
			})
		})

		Convey("When recording concurrently", func() {
			d := dedupe.NewInMemoryDeduper()
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for g := 0; g < 10; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("event-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then every id is fresh exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
