package controller

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/internal/vecmath"
	"github.com/skyline-rigging/flyer-controller/manual"
	"github.com/skyline-rigging/flyer-controller/winch"
)

func TestFindBestSnapObject(t *testing.T) {
	Convey("Given detections of varying area, probability, and label", t, func() {
		v := config.VisionParams{
			MinTrackingArea: 0.01,
			MaxTrackingArea: 0.5,
			SnapMinProb:     0.4,
			SnapLabels:      []string{"person"},
		}

		detections := []detection{
			{rect: bus.Rect{W: 0.05, H: 0.05}, label: "person", prob: 0.6},
			{rect: bus.Rect{W: 0.05, H: 0.05}, label: "person", prob: 0.9},
			{rect: bus.Rect{W: 0.9, H: 0.9}, label: "person", prob: 0.99}, // too large
			{rect: bus.Rect{W: 0.05, H: 0.05}, label: "car", prob: 0.99},  // wrong label
			{rect: bus.Rect{W: 0.05, H: 0.05}, label: "person", prob: 0.1}, // too low prob
		}

		Convey("the highest-probability survivor among eligible candidates wins", func() {
			best, ok := findBestSnapObject(detections, v)
			So(ok, ShouldBeTrue)
			So(best.prob, ShouldEqual, float32(0.9))
		})

		Convey("no eligible candidate yields ok=false", func() {
			_, ok := findBestSnapObject(nil, v)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestManualControllerConventions(t *testing.T) {
	Convey("Given a manual velocity vector", t, func() {
		v := manual.Velocity{X: 1, Y: 2, Z: 3}

		Convey("the single-winch controller passes Y through unchanged", func() {
			So(manualSingleWinchController(v), ShouldEqual, 2.0)
		})

		Convey("the multi-winch controller negates Y only", func() {
			result := manualMultiWinchController(v)
			So(result[0], ShouldEqual, 1.0)
			So(result[1], ShouldEqual, -2.0)
			So(result[2], ShouldEqual, 3.0)
		})
	})
}

func TestWinchRopeDirectionVector(t *testing.T) {
	Convey("A winch located purely along +x normalizes to a unit +x vector", t, func() {
		d := winchRopeDirectionVector([3]float64{5, 0, 0})
		So(d[0], ShouldEqual, 1.0)
		So(d[1], ShouldEqual, 0.0)
		So(d[2], ShouldEqual, 0.0)
	})

	Convey("A winch at the origin falls back to a straight-down direction", t, func() {
		d := winchRopeDirectionVector([3]float64{0, 0, 0})
		So(d, ShouldResemble, vecmath.Vec3{0, 0, -1})
	})
}

func TestMultiWinchControllerProjectsOntoRopeDirection(t *testing.T) {
	Convey("Given a winch with no force limitation", t, func() {
		wc := winch.New(0)
		commanded := vecmath.Vec3{1, 0, 0}
		ropeDir := vecmath.Vec3{1, 0, 0}

		Convey("the commanded vector projects fully onto a parallel rope direction", func() {
			v := multiWinchController(wc, commanded, ropeDir, 0.05)
			So(v, ShouldEqual, 1.0)
		})

		Convey("a perpendicular rope direction yields zero projection", func() {
			v := multiWinchController(wc, commanded, vecmath.Vec3{0, 1, 0}, 0.05)
			So(v, ShouldEqual, 0.0)
		})
	})
}
