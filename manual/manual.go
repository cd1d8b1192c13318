// Package manual implements manual input fusion (spec §4.3): the
// clamp-on-read axis map, the rate-limited velocity vector, and camera
// nudge/deadzone/active-until-deadline logic. Grounded on
// original_source/src/controller/{manual,velocity}.rs.
package manual

import (
	"math"
	"time"

	"github.com/skyline-rigging/flyer-controller/bus"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Velocity is a 3-D rate-limited velocity vector (original_source/src/
// controller/velocity.rs's RateLimitedVelocity). Tick clamps the change
// from current toward target to accelLimit*dt in Euclidean norm, per
// spec §4.3.
type Velocity struct {
	X, Y, Z float64
}

func (v Velocity) sub(o Velocity) Velocity {
	return Velocity{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Velocity) add(o Velocity) Velocity {
	return Velocity{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Velocity) scale(s float64) Velocity {
	return Velocity{v.X * s, v.Y * s, v.Z * s}
}

func (v Velocity) norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Tick moves v one step toward target, clamped to accelLimit*dt.
func (v Velocity) Tick(target Velocity, accelLimit, dt float64) Velocity {
	diff := target.sub(v)
	maxStep := accelLimit * dt
	n := diff.norm()
	if n > maxStep && n > 0 {
		diff = diff.scale(maxStep / n)
	}
	return v.add(diff)
}

// cameraControlTimeout is how long the camera vector's "active" deadline
// extends past the last nonzero input (grounded on manual.rs's own
// constant-shaped deadline field; the original does not fix a literal
// value here, so a conservative default is used; it is a fixed constant,
// not configurable).
const cameraControlTimeout = 500 * time.Millisecond

// Controls is the manual-input owned state (spec §3 "Tracking/manual
// state").
type Controls struct {
	axes map[bus.Axis]float64

	velocity Velocity

	cameraActiveUntil time.Time
	haveActiveUntil   bool
}

func New() *Controls {
	return &Controls{axes: map[bus.Axis]float64{}}
}

// SetAxis stores a raw axis value; clamping happens at read, not write
// (spec §4.3, §9 design note: "clamp at read site, not write site").
func (c *Controls) SetAxis(axis bus.Axis, value float64) {
	c.axes[axis] = value
}

func (c *Controls) axis(axis bus.Axis) float64 {
	return clamp(c.axes[axis], -1, 1)
}

// Reset clears every axis and the rate-limited velocity (spec §4.3 "Full
// reset on Halted").
func (c *Controls) Reset() {
	c.axes = map[bus.Axis]float64{}
	c.velocity = Velocity{}
	c.haveActiveUntil = false
}

// TargetVelocity computes the raw (pre-rate-limit) commanded velocity
// from the axis map and the configured scale (spec §4.3: "Velocity
// target = (x, y, z) · manual_control_velocity_m_per_sec").
func (c *Controls) TargetVelocity(scale float64) Velocity {
	return Velocity{
		X: c.axis(bus.AxisRelativeX) * scale,
		Y: c.axis(bus.AxisRelativeY) * scale,
		Z: c.axis(bus.AxisRelativeZ) * scale,
	}.init()
}

// init is a no-op hook kept for symmetry with the original's named
// constructor; present so TargetVelocity reads as building a value, not
// mutating one.
func (v Velocity) init() Velocity { return v }

// Tick advances the rate-limited velocity toward TargetVelocity(scale)
// by one controller tick.
func (c *Controls) Tick(scale, accelLimit, dt float64) Velocity {
	c.velocity = c.velocity.Tick(c.TargetVelocity(scale), accelLimit, dt)
	return c.velocity
}

func (c *Controls) Velocity() Velocity { return c.velocity }

// CameraVector returns the (yaw, pitch) nudge from the yaw/pitch axes,
// zeroed when within the configured deadzone radius (spec §4.3: "A
// deadzone (configured radius) zeros the camera vector").
func (c *Controls) CameraVector(deadzone float64, now time.Time) (yaw, pitch float64) {
	y := c.axis(bus.AxisYaw)
	p := c.axis(bus.AxisPitch)
	if y*y+p*p < deadzone*deadzone {
		return 0, 0
	}
	c.cameraActiveUntil = now.Add(cameraControlTimeout)
	c.haveActiveUntil = true
	return y, p
}

// CameraControlActive reports whether a nonzero camera vector has been
// observed recently enough that manual camera input should still
// override tracking (spec §4.4's "manual-override > snap-to-detected-
// object" priority, owned by the controller state that consumes this).
func (c *Controls) CameraControlActive(now time.Time) bool {
	return c.haveActiveUntil && now.Before(c.cameraActiveUntil)
}
