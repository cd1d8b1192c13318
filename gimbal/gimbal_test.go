package gimbal

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skyline-rigging/flyer-controller/config"
)

func TestEndstopSpring(t *testing.T) {
	Convey("Given yaw limits (-100,100) and limiter_gain 0.5", t, func() {
		limits := config.GimbalAngleLimits{Lower: -100, Upper: 100}

		Convey("A tracking rate of +10 at angle 120 springs back to -10 before clamp/dither", func() {
			rate := endstopLimiter(10, 120, limits, 0.5, 2000, 200)
			So(rate, ShouldEqual, -10.0)
		})
	})
}

func TestEncoderSub(t *testing.T) {
	Convey("Modular subtraction on a 4096-count circle", t, func() {
		So(EncoderSub(10, 5), ShouldEqual, int32(5))
		So(EncoderSub(5, 10), ShouldEqual, int32(-5))
		So(EncoderSub(0, 4000), ShouldEqual, int32(96))
		So(EncoderSub(4000, 0), ShouldEqual, int32(-96))
		So(EncoderSub(2048, 0), ShouldEqual, int32(2048))
	})
}

func TestValueCacheStaleness(t *testing.T) {
	Convey("Given a fresh ValueCache", t, func() {
		c := NewValueCache()
		now := time.Now()

		Convey("An address with no update is always stale", func() {
			_, stale := c.Read(1, 0, now)
			So(stale, ShouldBeTrue)
		})

		Convey("An address updated just now under Continuous scope is fresh", func() {
			c.Request(1, 0, ScopeContinuous, now)
			c.Update(1, 0, 42, now)
			value, stale := c.Read(1, 0, now)
			So(stale, ShouldBeFalse)
			So(value, ShouldEqual, int16(42))
		})

		Convey("An address updated 1s ago under Continuous scope is stale", func() {
			past := now.Add(-1 * time.Second)
			c.Request(1, 0, ScopeContinuous, past)
			c.Update(1, 0, 42, past)
			_, stale := c.Read(1, 0, now)
			So(stale, ShouldBeTrue)
		})
	})
}
