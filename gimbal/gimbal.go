// Package gimbal implements the 3-stage-per-tick gimbal controller (spec
// §4.4): data acquisition through the staleness-gated value cache,
// per-gain-list tracking with integrators, hold-on-idle, and the 4-branch
// endstop rate limiter with spring-back. Grounded primarily on spec §4.4
// itself (richer than original_source/src/controller/gimbal.rs, which
// lacks the hold stage and per-gain tracking list — the older revision is
// used only for general code shape, not formulas).
package gimbal

import (
	"math"
	"math/rand"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

type Axis int

const (
	AxisYaw Axis = iota
	AxisPitch
)

// edgeDistances returns how far the tracked rectangle's near/far edges
// are from the corresponding border edges, in normalized frame units,
// for the given axis (spec §4.4 stage 2: "using the tracked rectangle's
// distance to the corresponding border edges").
func edgeDistances(axis Axis, rect, border bus.Rect) (lowerDist, upperDist float64) {
	switch axis {
	case AxisYaw:
		lowerDist = float64(rect.X - border.X)
		upperDist = float64((border.X + border.W) - (rect.X + rect.W))
	default: // AxisPitch
		lowerDist = float64(rect.Y - border.Y)
		upperDist = float64((border.Y + border.H) - (rect.Y + rect.H))
	}
	return
}

// gainActivation computes one tracking-gain entry's per-edge error (spec
// §4.4 stage 2): err = max(0, width-lower_dist) - max(0, width-upper_dist).
func gainActivation(gain config.GimbalTrackingGain, lowerDist, upperDist float64) float64 {
	return math.Max(0, gain.Width-lowerDist) - math.Max(0, gain.Width-upperDist)
}

// axisState holds one axis's per-tick-persistent state: tracking
// integrators (one per configured gain entry), hold angle/active/
// integrator.
type axisState struct {
	trackingI []float64

	holdActive    bool
	holdAngle     float64
	holdIntegral  float64

	lastActivations []float64
}

// Controller is the gimbal's full owned state across ticks.
type Controller struct {
	cache *ValueCache

	yaw, pitch axisState
}

func New() *Controller {
	return &Controller{cache: NewValueCache()}
}

func (c *Controller) Cache() *ValueCache { return c.cache }

// trackingRate runs stage 2 for one axis: iterate the configured gain
// list in order, updating each entry's integrator, summing into total
// P/I rates.
func trackingRate(st *axisState, gains []config.GimbalTrackingGain, lowerDist, upperDist float64, iDecayRate float64) (pRate, iRate float64) {
	if len(st.trackingI) != len(gains) {
		st.trackingI = make([]float64, len(gains))
	}
	st.lastActivations = make([]float64, len(gains))

	for i, g := range gains {
		err := gainActivation(g, lowerDist, upperDist)
		st.lastActivations[i] = err

		if st.trackingI[i]*err <= 0 {
			st.trackingI[i] *= (1 - iDecayRate)
		}
		st.trackingI[i] += err

		pRate += g.PGain * err
		iRate += g.IGain * st.trackingI[i]
	}
	return
}

// holdRate runs stage 3 for one axis. The hold-active flag's rising edge
// latches the current angle; I persists across the on/off transition
// (spec §4.4: "next hold_active flag per axis = Halted-mode-true OR
// tracking P rate is zero (not I rate)").
func holdRate(st *axisState, halted bool, trackingPRate float64, angle float64, holdP, holdI, holdIDecayRate float64) (pRate, iRate float64) {
	nextActive := halted || trackingPRate == 0

	if nextActive && !st.holdActive {
		st.holdAngle = angle
	}
	st.holdActive = nextActive

	holdErr := st.holdAngle - angle
	if st.holdActive {
		st.holdIntegral += holdErr
		return holdP * holdErr, holdI * st.holdIntegral
	}
	st.holdIntegral *= (1 - holdIDecayRate)
	return 0, 0
}

// endstopLimiter implements spec §4.4's 4-branch per-axis rate limiter.
func endstopLimiter(rate, angle float64, limits config.GimbalAngleLimits, limiterGain, maxRate, slowdownExtent float64) float64 {
	switch {
	case angle < limits.Lower:
		return math.Max(rate, 0) + limiterGain*(limits.Lower-angle)
	case angle > limits.Upper:
		return math.Min(rate, 0) + limiterGain*(limits.Upper-angle)
	case angle < limits.Lower+slowdownExtent:
		return math.Max(rate, -maxRate*(angle-limits.Lower)/slowdownExtent)
	case angle > limits.Upper-slowdownExtent:
		return math.Min(rate, maxRate*(limits.Upper-angle)/slowdownExtent)
	default:
		return rate
	}
}

// Result is one tick's output: the two-axis rate to send as a
// CONTROL_RATE write, plus per-gain activations for overlay display
// (spec §4.4's GimbalControlStatus).
type Result struct {
	YawRate, PitchRate int16
	YawActivations, PitchActivations []float64
	Stale bool
}

// Tick runs the full 3-stage pipeline for one controller tick. yawAngle/
// pitchAngle are already encoder_sub'd against center calibration;
// staleness comes from the caller's ValueCache.Read calls for those
// angle addresses.
func (c *Controller) Tick(
	halted bool,
	yawAngle, pitchAngle float64,
	trackedRect, border bus.Rect,
	hasTrackedRect bool,
	g config.GimbalParams,
	stale bool,
	rng *rand.Rand,
) Result {
	if stale {
		return Result{Stale: true}
	}

	var yawLowerDist, yawUpperDist, pitchLowerDist, pitchUpperDist float64
	if hasTrackedRect {
		yawLowerDist, yawUpperDist = edgeDistances(AxisYaw, trackedRect, border)
		pitchLowerDist, pitchUpperDist = edgeDistances(AxisPitch, trackedRect, border)
	}

	yawTrackP, yawTrackI := trackingRate(&c.yaw, g.YawGains, yawLowerDist, yawUpperDist, g.TrackingIDecayRate)
	pitchTrackP, pitchTrackI := trackingRate(&c.pitch, g.PitchGains, pitchLowerDist, pitchUpperDist, g.TrackingIDecayRate)

	yawHoldP, yawHoldI := holdRate(&c.yaw, halted, yawTrackP, yawAngle, g.HoldP, g.HoldI, g.HoldIDecayRate)
	pitchHoldP, pitchHoldI := holdRate(&c.pitch, halted, pitchTrackP, pitchAngle, g.HoldP, g.HoldI, g.HoldIDecayRate)

	var yawRate, pitchRate float64
	if !halted {
		yawRate = yawTrackP + yawTrackI
		pitchRate = pitchTrackP + pitchTrackI
	}
	yawRate += yawHoldP + yawHoldI
	pitchRate += pitchHoldP + pitchHoldI

	yawRate = endstopLimiter(yawRate, yawAngle, g.YawLimits, g.LimiterGain, g.MaxRate, g.SlowdownExtent)
	pitchRate = endstopLimiter(pitchRate, pitchAngle, g.PitchLimits, g.LimiterGain, g.MaxRate, g.SlowdownExtent)

	yawRate = clampAbs(yawRate, g.MaxRate)
	pitchRate = clampAbs(pitchRate, g.MaxRate)

	dither := rng.Float64() - 0.5

	return Result{
		YawRate:          int16(math.Round(yawRate + dither)),
		PitchRate:        int16(math.Round(pitchRate + (rng.Float64() - 0.5))),
		YawActivations:   c.yaw.lastActivations,
		PitchActivations: c.pitch.lastActivations,
	}
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
