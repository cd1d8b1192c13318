package winch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

func TestHaltedIdempotence(t *testing.T) {
	Convey("Given a winch in Halted mode", t, func() {
		c := New(0)
		w := config.WinchParams{DeadbandPosition: 5, DeadbandVelocity: 0.1}
		status := bus.WinchStatus{
			Sensors: bus.SensorStatus{Position: 1000},
			Motor:   bus.MotorStatus{PWMEnabled: true},
		}

		Convey("When a status with position=1000 is processed", func() {
			cmd := c.Update(status, bus.Mode{Kind: bus.ModeHalted}, w, 0)

			Convey("The command echoes the sensor position with all gains zeroed", func() {
				So(cmd.Position, ShouldEqual, int32(1000))
				So(cmd.PIDGainP, ShouldEqual, 0.0)
				So(cmd.PIDGainI, ShouldEqual, 0.0)
				So(cmd.PIDGainD, ShouldEqual, 0.0)
				So(cmd.DeadbandPosition, ShouldEqual, w.DeadbandPosition)
			})
		})
	})
}

func TestVelocityIntegrationIsDriftFree(t *testing.T) {
	Convey("Given a winch with m_per_count=0.01", t, func() {
		c := New(0)
		calib := config.WinchCalibration{MPerCount: 0.01}
		w := config.WinchParams{
			Calibration: calib,
			PWMLowMotion:  config.PWMCarrier{Hz: 200},
			PWMHighMotion: config.PWMCarrier{Hz: 2000},
			PWMFilterParam: 1,
		}

		Convey("When a constant +2.0 m/s velocity is integrated for 250 ticks", func() {
			status := bus.WinchStatus{Sensors: bus.SensorStatus{Position: 0}}
			var lastCmd Command
			for i := 0; i < TickHz; i++ {
				status.TickCounter = uint16(i)
				lastCmd = c.Update(status, bus.Mode{Kind: bus.ModeNormal}, w, 2.0)
			}

			Convey("The quantized position target advances exactly 200 counts", func() {
				So(lastCmd.Position, ShouldEqual, int32(200))
			})
		})
	})
}

func TestForceLockout(t *testing.T) {
	Convey("Given a winch whose filtered force exceeds lockout_above", t, func() {
		c := New(0)
		w := config.WinchParams{
			// Identity calibration (kg_per_count=1, zero=0) so the kg-
			// valued force limits below read directly as counts against
			// ForceFiltered, which is itself raw counts.
			Calibration: config.WinchCalibration{KgPerCount: 1},
			Force:       config.ForceLimits{LockoutAbove: 10, PosMotionMax: 5},
		}
		status := bus.WinchStatus{
			Sensors: bus.SensorStatus{ForceFiltered: 20},
			Motor:   bus.MotorStatus{PWMEnabled: true},
		}

		Convey("When updated regardless of commanded velocity", func() {
			c.Update(status, bus.Mode{Kind: bus.ModeManualWinch, WinchID: 0}, w, 5.0)

			Convey("mech_status is Stuck", func() {
				So(c.MechStatus().Kind, ShouldEqual, MechStuck)
			})

			Convey("The force-limit guard zeroes velocity outright on Stuck", func() {
				So(c.ForceLimitGuard(5.0, 0.1), ShouldEqual, 0.0)
			})
		})
	})

	Convey("Given a winch that is ForceLimited(+0.5)", t, func() {
		c := New(0)
		c.mechStatus = MechStatus{Kind: MechForceLimited, Fraction: 0.5}

		Convey("No positive velocity is ever permitted through the guard", func() {
			So(c.ForceLimitGuard(3.0, 0.0), ShouldBeLessThanOrEqualTo, 0.0)
		})

		Convey("Negative (force-reducing) velocity passes through", func() {
			So(c.ForceLimitGuard(-3.0, 0.0), ShouldEqual, -3.0)
		})
	})

	Convey("Given a winch that is ForceLimited(-0.5)", t, func() {
		c := New(0)
		c.mechStatus = MechStatus{Kind: MechForceLimited, Fraction: -0.5}

		Convey("No negative velocity is ever permitted through the guard", func() {
			So(c.ForceLimitGuard(-3.0, 0.0), ShouldBeGreaterThanOrEqualTo, 0.0)
		})
	})
}
