// Package vecmath collects the small 2-D/3-D vector and rectangle
// helpers shared by the LED pixel-position models and the overlay
// particle system — both of which, in the original controller, drew on
// the same vecmath crate (original_source/src/overlay.rs,
// original_source/src/led/models.rs).
package vecmath

import "math"

type Vec2 [2]float64
type Vec3 [3]float64
type Vec4 [4]float64

func Add2(a, b Vec2) Vec2 { return Vec2{a[0] + b[0], a[1] + b[1]} }
func Sub2(a, b Vec2) Vec2 { return Vec2{a[0] - b[0], a[1] - b[1]} }
func Scale2(a Vec2, s float64) Vec2 { return Vec2{a[0] * s, a[1] * s} }
func Len2(a Vec2) float64 { return math.Sqrt(a[0]*a[0] + a[1]*a[1]) }

func Add3(a, b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func Sub3(a, b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func Scale3(a Vec3, s float64) Vec3 { return Vec3{a[0] * s, a[1] * s, a[2] * s} }

// RotateZ rotates v by theta radians about the Z axis, used to place the
// flyer model's four evenly spaced top strips (original_source/src/led/
// models.rs's rotation_matrix usage).
func RotateZ(v Vec3, theta float64) Vec3 {
	c, s := math.Cos(theta), math.Sin(theta)
	return Vec3{
		v[0]*c - v[1]*s,
		v[0]*s + v[1]*c,
		v[2],
	}
}

// RectCenter returns a rect's center point, in (x, y, w, h) form.
func RectCenter(rect Vec4) Vec2 {
	return Vec2{rect[0] + rect[2]/2, rect[1] + rect[3]/2}
}

// RectNearestPerimeterPoint returns the point on rect's perimeter
// nearest to p, used by the overlay particle system's edge-attraction
// force.
func RectNearestPerimeterPoint(rect Vec4, p Vec2) Vec2 {
	x0, y0, w, h := rect[0], rect[1], rect[2], rect[3]
	x1, y1 := x0+w, y0+h

	cx := clamp(p[0], x0, x1)
	cy := clamp(p[1], y0, y1)

	distLeft := math.Abs(cx - x0)
	distRight := math.Abs(x1 - cx)
	distTop := math.Abs(cy - y0)
	distBottom := math.Abs(y1 - cy)

	min := distLeft
	result := Vec2{x0, cy}
	if distRight < min {
		min, result = distRight, Vec2{x1, cy}
	}
	if distTop < min {
		min, result = distTop, Vec2{cx, y0}
	}
	if distBottom < min {
		result = Vec2{cx, y1}
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RectCenteredOnOrigin returns an (x,y,w,h) rect of the given size,
// centered at (0,0).
func RectCenteredOnOrigin(w, h float64) Vec4 {
	return Vec4{-w / 2, -h / 2, w, h}
}

// RectTranslate shifts rect by delta.
func RectTranslate(rect Vec4, delta Vec2) Vec4 {
	return Vec4{rect[0] + delta[0], rect[1] + delta[1], rect[2], rect[3]}
}
