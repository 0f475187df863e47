package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/leadpulse/internal/domain/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given pipeline errors", t, func() {
		cause := errors.New("boom")

		Convey("When wrapping a permission denial", func() {
			err := errs.PermissionDenied("store.select", "42501", cause)

			Convey("Then it should match its sentinel and kind", func() {
				So(errors.Is(err, errs.ErrPermissionDenied), ShouldBeTrue)
				So(errors.Is(err, errs.ErrDatabase), ShouldBeFalse)
				So(errs.KindOf(err), ShouldEqual, errs.KindPermissionDenied)
				So(errs.IsPermissionDenied(err), ShouldBeTrue)
				So(errs.CodeOf(err), ShouldEqual, "42501")
				So(errors.Is(err, cause), ShouldBeTrue)
			})
		})

		Convey("When the error is wrapped again", func() {
			err := fmt.Errorf("outer: %w", errs.Network("store.insert", cause))

			Convey("Then the kind survives wrapping", func() {
				So(errs.KindOf(err), ShouldEqual, errs.KindNetwork)
				So(errors.Is(err, errs.ErrNetwork), ShouldBeTrue)
			})
		})

		Convey("When classifying retryability", func() {
			So(errs.Retryable(errs.Database("op", "23505", cause, nil)), ShouldBeTrue)
			So(errs.Retryable(errs.Network("op", cause)), ShouldBeTrue)
			So(errs.Retryable(errs.PermissionDenied("op", "42501", cause)), ShouldBeFalse)
			So(errs.Retryable(errs.RateLimited("k")), ShouldBeFalse)
		})

		Convey("When formatting a database error", func() {
			err := errs.Database("store.update", "23505", cause, map[string]any{"relation": "lead_scores"})

			Convey("Then the message carries op, kind and code", func() {
				So(err.Error(), ShouldContainSubstring, "store.update")
				So(err.Error(), ShouldContainSubstring, "database")
				So(err.Error(), ShouldContainSubstring, "23505")
				So(err.Error(), ShouldContainSubstring, "boom")
			})
		})

		Convey("When the error is not a pipeline error", func() {
			So(errs.KindOf(cause), ShouldEqual, errs.KindUnknown)
			So(errs.KindOf(nil), ShouldEqual, errs.KindUnknown)
		})
	})
}
