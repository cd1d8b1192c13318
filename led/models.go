package led

import (
	"math"

	"github.com/skyline-rigging/flyer-controller/internal/vecmath"
)

// shapeTemplate builds a line or circle of evenly spaced pixel positions
// (original_source/src/led/models.rs's LEDShapeTemplate, backed by the
// LEDShapeTemplate's own line/circle generators; the original's generic
// "shape file" export is out of scope here — these exist only to produce
// PixelMapping values for the animator, not to serialize a point cloud).
type shapeTemplate struct {
	usage   PixelUsage
	winchID int
	spacing float64
	count   int
}

func (t shapeTemplate) line(center, direction vecmath.Vec3) []PixelMapping {
	out := make([]PixelMapping, 0, t.count)
	dirLen := math.Sqrt(direction[0]*direction[0] + direction[1]*direction[1] + direction[2]*direction[2])
	if dirLen == 0 {
		dirLen = 1
	}
	unit := vecmath.Scale3(direction, 1/dirLen)
	start := -float64(t.count-1) / 2 * t.spacing
	for i := 0; i < t.count; i++ {
		offset := start + float64(i)*t.spacing
		pos := vecmath.Add3(center, vecmath.Scale3(unit, offset))
		out = append(out, PixelMapping{Position: [3]float64(pos), Usage: t.usage, WinchID: t.winchID})
	}
	return out
}

func (t shapeTemplate) circle(center, normal, start vecmath.Vec3) []PixelMapping {
	out := make([]PixelMapping, 0, t.count)
	for i := 0; i < t.count; i++ {
		theta := float64(i) / float64(t.count) * 2 * math.Pi
		_ = normal // normal is Z-axis aligned for every shape in use here
		p := vecmath.RotateZ(start, theta)
		pos := vecmath.Add3(center, p)
		out = append(out, PixelMapping{Position: [3]float64(pos), Usage: t.usage})
	}
	return out
}

// WinchModel returns the side-strip pixel layout for winch id (spec's
// supplemented LED models feature; original_source/src/led/models.rs's
// winch()).
func WinchModel(id int) []PixelMapping {
	strip := shapeTemplate{usage: UsageWinch, winchID: id, spacing: 1.0 / 60.0, count: 7}

	leftCenter := vecmath.Vec3{-0.06, 0, 0}
	rightCenter := vecmath.Vec3{0.06, 0, 0}
	vertical := vecmath.Vec3{0, 0, 1}

	model := append([]PixelMapping{}, strip.line(leftCenter, vertical)...)
	model = append(model, strip.line(rightCenter, vertical)...)
	return model
}

// FlyerModel returns the flyer body's pixel layout: four top strips plus
// three rings (original_source/src/led/models.rs's flyer()).
func FlyerModel() []PixelMapping {
	topStrip := shapeTemplate{usage: UsageFlyerTop, spacing: 1.0 / 144.0, count: 7}
	ringStrip := shapeTemplate{usage: UsageFlyerRing, spacing: 1.0 / 144.0, count: 36}

	topCenter := vecmath.Vec3{0, 0, 0.45}
	topRadius := vecmath.Vec3{0.07, 0, 0}

	upperRing := vecmath.Vec3{0, 0, 0.015}
	middleRing := vecmath.Vec3{0, 0, 0}
	lowerRing := vecmath.Vec3{0, 0, -0.015}
	ringNormal := vecmath.Vec3{0, 0, 1}

	var model []PixelMapping

	const numStrips = 4
	for i := 0; i < numStrips; i++ {
		theta := float64(i) / float64(numStrips) * 2 * math.Pi
		radius := vecmath.RotateZ(topRadius, theta)
		model = append(model, topStrip.line(vecmath.Add3(topCenter, radius), radius)...)
	}

	model = append(model, ringStrip.circle(upperRing, ringNormal, vecmath.Vec3{1, 0, 0})...)
	model = append(model, ringStrip.circle(middleRing, ringNormal, vecmath.Vec3{-1, 0, 0})...)
	model = append(model, ringStrip.circle(lowerRing, ringNormal, vecmath.Vec3{1, 0, 0})...)

	return model
}
