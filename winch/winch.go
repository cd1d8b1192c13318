// Package winch implements the per-winch motion planner and safety model
// (spec §4.2): reset-on-discontinuity, the drift-free fractional position
// accumulator, the mech-status classifier, the force-limit guard, PWM
// carrier frequency control, and the WinchCommand builder. Grounded on
// original_source/src/controller/winch.rs.
package winch

import (
	"math"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

// TickHz is the controller's fixed tick rate (spec §2, §4.1).
const TickHz = 250.0

// MechStatusKind classifies a winch's physical state (spec §3, §4.2).
type MechStatusKind int

const (
	MechNormal MechStatusKind = iota
	MechForceLimited
	MechStuck
)

// MechStatus pairs the classification with its fraction, meaningful only
// when Kind == MechForceLimited (in [-1, 1], spec §3).
type MechStatus struct {
	Kind     MechStatusKind
	Fraction float64
}

// classify implements spec §4.2's 5-branch mech-status classifier, in
// the exact order given there (and confirmed against winch.rs's
// MechStatus::new(), which resolves spec's open question (a) the same
// way: motor-off + outside deadband => Stuck, else Normal). limits is
// kg-valued config (spec §4.2: "force limits... unit-converted through
// the calibration, force kg→counts"); status.Sensors.ForceFiltered is
// raw, uncalibrated counts, so limits is converted to the same counts
// unit via calib.CountsFromKg before any comparison.
func classify(status bus.WinchStatus, calib config.WinchCalibration, limits config.ForceLimits, deadbandPosition int32) MechStatus {
	f := float64(status.Sensors.ForceFiltered)
	negMotionMin := calib.CountsFromKg(limits.NegMotionMin)
	posMotionMax := calib.CountsFromKg(limits.PosMotionMax)
	lockoutBelow := calib.CountsFromKg(limits.LockoutBelow)
	lockoutAbove := calib.CountsFromKg(limits.LockoutAbove)

	switch {
	case f > lockoutAbove || f < lockoutBelow:
		return MechStatus{Kind: MechStuck}
	case f > posMotionMax:
		denom := math.Max(1, lockoutAbove-posMotionMax)
		return MechStatus{Kind: MechForceLimited, Fraction: (f - posMotionMax) / denom}
	case f < negMotionMin:
		denom := math.Max(1, negMotionMin-lockoutBelow)
		return MechStatus{Kind: MechForceLimited, Fraction: -((negMotionMin - f) / denom)}
	case !status.Motor.PWMEnabled && math.Abs(float64(status.Motor.PositionErr)) > float64(deadbandPosition):
		return MechStatus{Kind: MechStuck}
	default:
		return MechStatus{Kind: MechNormal}
	}
}

// Controller is one winch's owned state, held by the flight controller's
// per-winch slice. Zero value is not usable; construct with New.
type Controller struct {
	id int

	lastStatus    *bus.WinchStatus
	lastTickCount uint16
	havePrevTick  bool

	quantizedPositionTarget int32
	fractPositionTarget     float64

	pwmPeriod float64

	lightingCommandPhase  float64
	lightingMotionPhase   float64
	lightingFilteredVel   float64
	hasNonzeroVelCommand  bool

	mechStatus MechStatus

	wasReset       bool
	wasMotorShutoff bool
	wasTickDiscontinuity bool
}

func New(id int) *Controller {
	return &Controller{id: id}
}

func (c *Controller) ID() int { return c.id }

func (c *Controller) MechStatus() MechStatus { return c.mechStatus }

// needsReset implements spec §4.2's three reset conditions.
func (c *Controller) needsReset(mode bus.Mode, status bus.WinchStatus) bool {
	if mode.Kind == bus.ModeHalted {
		return true
	}
	if c.lastStatus != nil && c.lastStatus.Motor.PWMEnabled && !status.Motor.PWMEnabled {
		return true
	}
	if c.havePrevTick {
		delta := status.TickCounter - c.lastTickCount // wrapping subtraction
		if delta > 2 {
			return true
		}
	}
	return false
}

// reset reinitializes the assumed position from the sensor, per spec
// §4.2: "quantized_position_target := status.sensors.position,
// fract_position_target := 0".
func (c *Controller) reset(status bus.WinchStatus) {
	c.quantizedPositionTarget = status.Sensors.Position
	c.fractPositionTarget = 0
}

// MoveTarget integrates a commanded velocity (m/s) for one tick into the
// fractional position accumulator, extracting the integer count delta so
// the running total never drifts from the true distance traveled (spec
// §8 property 1 — drift-free position integration).
func (c *Controller) MoveTarget(velocityMPerSec float64, calib config.WinchCalibration) {
	deltaCounts := calib.CountsFromM(velocityMPerSec) / TickHz
	c.fractPositionTarget += deltaCounts
	whole := math.Trunc(c.fractPositionTarget)
	c.fractPositionTarget -= whole
	c.quantizedPositionTarget += int32(whole)
}

// ForceLimitGuard implements spec §4.2's force-limit guard and mech-
// status velocity gating (spec §8 S3, original_source/src/controller/
// state.rs's manual_single_winch_controller/multi_winch_controller,
// both of which match Stuck => 0.0 before ever considering v): Stuck
// always zeroes the commanded velocity outright; ForceLimited(f)
// permits motion only toward reducing the force, plus a small
// superimposed return velocity; Normal passes v through unchanged. A
// returnVelocityMax of 0 reduces the ForceLimited branch to a plain
// clamp, matching the single-winch caller's no-return-term form.
func (c *Controller) ForceLimitGuard(v float64, returnVelocityMax float64) float64 {
	switch c.mechStatus.Kind {
	case MechStuck:
		return 0
	case MechForceLimited:
		f := c.mechStatus.Fraction
		sign := 1.0
		if f < 0 {
			sign = -1.0
		}
		allowed := 0.0
		if v*sign < 0 {
			allowed = v
		}
		return allowed - f*returnVelocityMax
	default:
		return v
	}
}

// pwmFrequency low-pass filters the PWM period toward whichever carrier
// (low/high motion) the current velocity selects, then returns it as Hz
// (spec §4.2's PWM frequency control).
func (c *Controller) pwmFrequency(velocity float64, w config.WinchParams) float64 {
	targetHz := w.PWMLowMotion.Hz
	if math.Abs(velocity) >= w.PWMVelocityThreshold {
		targetHz = w.PWMHighMotion.Hz
	}
	targetPeriod := 1.0 / targetHz
	if c.pwmPeriod == 0 {
		c.pwmPeriod = targetPeriod
	}
	alpha := w.PWMFilterParam
	c.pwmPeriod += alpha * (targetPeriod - c.pwmPeriod)

	lo := math.Min(1.0/w.PWMLowMotion.Hz, 1.0/w.PWMHighMotion.Hz)
	hi := math.Max(1.0/w.PWMLowMotion.Hz, 1.0/w.PWMHighMotion.Hz)
	if c.pwmPeriod < lo {
		c.pwmPeriod = lo
	}
	if c.pwmPeriod > hi {
		c.pwmPeriod = hi
	}
	return 1.0 / c.pwmPeriod
}

// Command is the WinchCommand the controller sends every cycle (spec
// §3, §4.2), mirroring original_source/src/message.rs's WinchCommand
// (position + ForceCommand + PIDGains + WinchDeadband) field for field,
// plus the PWM carrier fields winch.rs's make_command adds on top.
type Command struct {
	WinchID              int
	Position             int32
	ForceFilterParam     float64
	ForceLimitNeg        float64
	ForceLimitPos        float64
	ForceLockoutBelow    float64
	ForceLockoutAbove    float64
	PIDGainP, PIDGainI, PIDGainD float64
	PIDFilterP           float64
	PIDDecayI            float64
	PIDFilterD           float64
	DeadbandPosition     int32
	DeadbandVelocity     float64
	PWMHz                float64
	PWMBias              float64
	PWMMinimum           float64
}

// makeForceCommand builds the ForceCommand half of the WinchCommand.
// Unlike PID gains, the force command is identical whether the mode is
// Halted or not — original_source/src/controller/winch.rs's
// make_command calls make_force_command unconditionally in both match
// arms, since force limiting must still apply while halted.
func makeForceCommand(w config.WinchParams) (filterParam, limitNeg, limitPos, lockoutBelow, lockoutAbove float64) {
	return w.Force.FilterParam,
		w.Calibration.CountsFromKg(w.Force.NegMotionMin),
		w.Calibration.CountsFromKg(w.Force.PosMotionMax),
		w.Calibration.CountsFromKg(w.Force.LockoutBelow),
		w.Calibration.CountsFromKg(w.Force.LockoutAbove)
}

// Update is the entry point for each received WinchStatus: classify mech
// status, apply reset conditions, and return the WinchCommand to
// transmit. velocityMPerSec is
// the already-selected, already-guarded commanded velocity for this
// winch this tick (selection per spec §4.2's "velocity source selection"
// lives in the controller package, which knows the global mode).
func (c *Controller) Update(status bus.WinchStatus, mode bus.Mode, w config.WinchParams, velocityMPerSec float64) Command {
	c.mechStatus = classify(status, w.Calibration, w.Force, w.DeadbandPosition)

	c.wasMotorShutoff = c.lastStatus != nil && c.lastStatus.Motor.PWMEnabled && !status.Motor.PWMEnabled
	c.wasTickDiscontinuity = c.havePrevTick && status.TickCounter-c.lastTickCount > 2
	c.wasReset = c.needsReset(mode, status)
	if c.wasReset {
		c.reset(status)
	}

	c.hasNonzeroVelCommand = velocityMPerSec != 0
	if mode.Kind != bus.ModeHalted {
		c.MoveTarget(velocityMPerSec, w.Calibration)
	}

	c.lastStatus = &status
	c.lastTickCount = status.TickCounter
	c.havePrevTick = true

	return c.makeCommand(status, mode, w, velocityMPerSec)
}

// makeCommand implements spec §4.2's command builder, including the
// Halted-vs-normal branch (spec §8 property 2, S1 scenario): Halted
// always echoes the sensor position with the PID gains zeroed and the PID
// filter/decay fields set to 1.0, per S1's literal expectation.
func (c *Controller) makeCommand(status bus.WinchStatus, mode bus.Mode, w config.WinchParams, velocityMPerSec float64) Command {
	filterParam, limitNeg, limitPos, lockoutBelow, lockoutAbove := makeForceCommand(w)

	if mode.Kind == bus.ModeHalted {
		return Command{
			WinchID:           c.id,
			Position:          status.Sensors.Position,
			ForceFilterParam:  filterParam,
			ForceLimitNeg:     limitNeg,
			ForceLimitPos:     limitPos,
			ForceLockoutBelow: lockoutBelow,
			ForceLockoutAbove: lockoutAbove,
			PIDGainP:          0,
			PIDGainI:          0,
			PIDGainD:          0,
			PIDFilterP:        1.0,
			PIDDecayI:         1.0,
			PIDFilterD:        1.0,
			DeadbandPosition:  w.DeadbandPosition,
			DeadbandVelocity:  w.DeadbandVelocity,
			PWMHz:             w.PWMLowMotion.Hz,
			PWMBias:           w.PWMBias,
			PWMMinimum:        w.PWMMinimum,
		}
	}

	deadbandPosition := w.DeadbandPosition
	if c.hasNonzeroVelCommand {
		// Prevent stop-start dead-zone bias while actively commanding
		// motion (spec §4.2).
		deadbandPosition = 0
	}

	return Command{
		WinchID:           c.id,
		Position:           c.quantizedPositionTarget,
		ForceFilterParam:  filterParam,
		ForceLimitNeg:     limitNeg,
		ForceLimitPos:     limitPos,
		ForceLockoutBelow: lockoutBelow,
		ForceLockoutAbove: lockoutAbove,
		PIDGainP:          w.PIDGainsP,
		PIDGainI:          w.PIDGainsI,
		PIDGainD:          w.PIDGainsD,
		PIDFilterP:        w.PIDFilterP,
		PIDDecayI:         w.PIDDecayI,
		PIDFilterD:        w.PIDFilterD,
		DeadbandPosition:  deadbandPosition,
		DeadbandVelocity:  w.DeadbandVelocity,
		PWMHz:             c.pwmFrequency(velocityMPerSec, w),
		PWMBias:           w.PWMBias,
		PWMMinimum:        w.PWMMinimum,
	}
}

// WasMotorShutoff reports whether the most recent Update observed the
// firmware PWM-enable bit transition from on to off.
func (c *Controller) WasMotorShutoff() bool { return c.wasMotorShutoff }

// WasTickDiscontinuity reports whether the most recent Update detected a
// tick-counter gap large enough to force a reset.
func (c *Controller) WasTickDiscontinuity() bool { return c.wasTickDiscontinuity }

// LightingBaseColor picks the base color for this winch's LED pixels
// given the current mode and mech status, feeding led.WinchLighting.
func (c *Controller) LightingBaseColor(mode bus.Mode, selected bool) (r, g, b float64) {
	switch {
	case c.mechStatus.Kind == MechStuck:
		return 1, 0, 0
	case mode.Kind == bus.ModeHalted:
		return 0.2, 0.2, 0.2
	case selected:
		return 0, 0.6, 1
	default:
		return 0, 1, 0.4
	}
}

// WaveAmplitude derives the LED wave train amplitude from the filtered
// commanded velocity, low-passing it the same way pwmFrequency low-
// passes the carrier period.
func (c *Controller) WaveAmplitude(velocityMPerSec float64, filterParam float64) float64 {
	c.lightingFilteredVel += filterParam * (velocityMPerSec - c.lightingFilteredVel)
	return math.Abs(c.lightingFilteredVel)
}

// AdvancePhases advances the two decoupled lighting wave-train phases
// (commanded vs observed motion) by one tick, wrapping mod 2π.
func (c *Controller) AdvancePhases(commandHz, motionHz, dt float64) {
	const twoPi = 2 * math.Pi
	c.lightingCommandPhase = math.Mod(c.lightingCommandPhase+commandHz*twoPi*dt, twoPi)
	c.lightingMotionPhase = math.Mod(c.lightingMotionPhase+motionHz*twoPi*dt, twoPi)
}

func (c *Controller) CommandPhase() float64 { return c.lightingCommandPhase }
func (c *Controller) MotionPhase() float64  { return c.lightingMotionPhase }
