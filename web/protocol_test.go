package web

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skyline-rigging/flyer-controller/bus"
)

func TestToCommand(t *testing.T) {
	Convey("Given a SetMode(ManualWinch) payload", t, func() {
		p := commandPayload{SetMode: &setModePayload{Kind: "ManualWinch", WinchID: 2}}

		Convey("it converts to the matching bus.SetMode command", func() {
			cmd, ok := toCommand(p)
			So(ok, ShouldBeTrue)
			So(cmd, ShouldResemble, bus.SetMode{Mode: bus.Mode{Kind: bus.ModeManualWinch, WinchID: 2}})
		})
	})

	Convey("Given a ManualControlValue(Yaw, 0.5) payload", t, func() {
		p := commandPayload{ManualControlValue: &manualControlValuePayload{Axis: "Yaw", Value: 0.5}}

		Convey("it converts to the matching bus.ManualControlValue command", func() {
			cmd, ok := toCommand(p)
			So(ok, ShouldBeTrue)
			So(cmd, ShouldResemble, bus.ManualControlValue{Axis: bus.AxisYaw, Value: 0.5})
		})
	})

	Convey("Given an unrecognized axis name", t, func() {
		p := commandPayload{ManualControlValue: &manualControlValuePayload{Axis: "Sideways", Value: 1}}

		Convey("conversion fails", func() {
			_, ok := toCommand(p)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an empty payload", t, func() {
		Convey("conversion fails", func() {
			_, ok := toCommand(commandPayload{})
			So(ok, ShouldBeFalse)
		})
	})
}
