package simkernel

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistrationBreaker(t *testing.T) {
	Convey("Given a breaker that opens after 2 failures", t, func() {
		b := NewRegistrationBreaker(2, 20*time.Millisecond)

		Convey("It allows requests while closed", func() {
			So(b.Allow(), ShouldBeTrue)
		})

		Convey("It opens after the failure threshold and rejects further attempts", func() {
			b.RecordFailure()
			b.RecordFailure()
			So(b.Allow(), ShouldBeFalse)
		})

		Convey("It half-opens and allows a probe once resetTimeout elapses", func() {
			b.RecordFailure()
			b.RecordFailure()
			time.Sleep(25 * time.Millisecond)
			So(b.Allow(), ShouldBeTrue)
		})

		Convey("A success closes the breaker and resets the failure count", func() {
			b.RecordFailure()
			b.RecordFailure()
			time.Sleep(25 * time.Millisecond)
			So(b.Allow(), ShouldBeTrue)
			b.RecordSuccess()

			b.RecordFailure()
			So(b.Allow(), ShouldBeTrue)
		})
	})
}
