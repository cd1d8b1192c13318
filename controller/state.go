package controller

import (
	"math"
	"time"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/gimbal"
	"github.com/skyline-rigging/flyer-controller/internal/vecmath"
	"github.com/skyline-rigging/flyer-controller/led"
	"github.com/skyline-rigging/flyer-controller/manual"
	"github.com/skyline-rigging/flyer-controller/overlay"
	"github.com/skyline-rigging/flyer-controller/winch"
)

// detection is one pending candidate from the vision source, consumed by
// findBestSnapObject (original_source/src/controller/state.rs).
type detection struct {
	rect  bus.Rect
	label string
	prob  float32
}

// state is the controller's owned mutable world beyond raw bus dispatch:
// per-winch planners, the gimbal pipeline, manual input fusion, the
// tracked-rectangle priority chain, and the lighting/overlay builders.
// Grounded on original_source/src/controller/state.rs.
type state struct {
	mode bus.Mode

	winches    []*winch.Controller
	winchByID  map[int]int
	lastStatusAt map[int]time.Time

	gimbalCtrl *gimbal.Controller
	manualCtrl *manual.Controls

	lastFlyerSensors *bus.FlyerSensors

	trackedRect    *bus.Rect
	lastDetections []detection

	particles *overlay.ParticleDrawing
	drawing   *overlay.DrawingContext
}

func newState(winchIDs []int, rngSeedSource *overlay.ParticleDrawing) *state {
	s := &state{
		winchByID:    map[int]int{},
		lastStatusAt: map[int]time.Time{},
		gimbalCtrl:   gimbal.New(),
		manualCtrl:   manual.New(),
		particles:    rngSeedSource,
		drawing:      overlay.NewDrawingContext(),
		mode:         bus.Mode{Kind: bus.ModeHalted},
	}
	for i, id := range winchIDs {
		s.winchByID[id] = i
		s.winches = append(s.winches, winch.New(id))
	}
	return s
}

func (s *state) winchFor(id int) *winch.Controller {
	idx, ok := s.winchByID[id]
	if !ok {
		return nil
	}
	return s.winches[idx]
}

// modeChanged applies a new top-level mode, resetting manual controls on
// transition to Halted (spec §4.3 "Full reset on Halted").
func (s *state) modeChanged(mode bus.Mode) {
	s.mode = mode
	if mode.Kind == bus.ModeHalted {
		s.manualCtrl.Reset()
	}
}

// flyerSensorUpdate stores the latest flyer sensor snapshot.
func (s *state) flyerSensorUpdate(sensors bus.FlyerSensors) {
	s.lastFlyerSensors = &sensors
}

// cameraObjectDetectionUpdate records one detection candidate for the
// next snap-to-object evaluation.
func (s *state) cameraObjectDetectionUpdate(rect bus.Rect, label string, prob float32) {
	s.lastDetections = append(s.lastDetections, detection{rect: rect, label: label, prob: prob})
	if len(s.lastDetections) > 32 {
		s.lastDetections = s.lastDetections[len(s.lastDetections)-32:]
	}
}

// cameraRegionTrackingUpdate directly sets the tracked rectangle, as
// reported by an upstream tracker already locked onto a region (as
// opposed to a fresh detection that still needs snap-selection).
func (s *state) cameraRegionTrackingUpdate(rect bus.Rect) {
	s.trackedRect = &rect
}

// findBestSnapObject filters the pending detections by minimum area and
// allowed label/probability, and returns the highest-probability survivor
// (original_source/src/controller/state.rs's find_best_snap_object).
func findBestSnapObject(detections []detection, v config.VisionParams) (detection, bool) {
	var best detection
	haveBest := false
	for _, d := range detections {
		area := float64(d.rect.W) * float64(d.rect.H)
		if area < v.MinTrackingArea || area > v.MaxTrackingArea {
			continue
		}
		if float64(d.prob) < v.SnapMinProb {
			continue
		}
		if len(v.SnapLabels) > 0 && !containsLabel(v.SnapLabels, d.label) {
			continue
		}
		if !haveBest || d.prob > best.prob {
			best, haveBest = d, true
		}
	}
	return best, haveBest
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// trackingUpdate resolves the tracked rectangle for this tick (spec
// §4.4's data acquisition depends on a tracked rect). While manual camera
// control is active the rectangle is left as it is; otherwise a freshly
// snapped detection replaces it, and with none the last known rectangle
// is held. Manual yaw/pitch input does not move the tracked rectangle,
// and the gimbal tick does not read manual input.
func (s *state) trackingUpdate(v config.VisionParams, now time.Time) {
	if s.manualCtrl.CameraControlActive(now) {
		// Leave trackedRect as whatever region tracking last reported,
		// and drop pending detections so a stale snap doesn't fire the
		// instant manual control releases.
		s.lastDetections = nil
		return
	}

	if best, ok := findBestSnapObject(s.lastDetections, v); ok {
		s.trackedRect = &best.rect
	}
	s.lastDetections = nil
}

// haltMotion clears all manual input; called when a watchdog across all
// winches fails, in the tick where the control loop also leaves every
// winch velocity at 0 (spec §4.2's velocity-source-selection
// "all others → 0"). It does not change the mode.
func (s *state) haltMotion() {
	s.manualCtrl.Reset()
}

// isStatusWatchdogOkay reports whether every winch has reported status
// within its configured watchdog deadline — multi-winch motion requires
// every winch to be current, since a stale one can't safely receive a
// coordinated command (spec §3's per-winch watchdog deadline).
func (s *state) isStatusWatchdogOkay(winches []config.WinchParams, now time.Time) bool {
	for i, w := range winches {
		id := s.winches[i].ID()
		last, ok := s.lastStatusAt[id]
		if !ok {
			return false
		}
		if now.Sub(last) > time.Duration(w.WatchdogDeadlineMillis)*time.Millisecond {
			return false
		}
	}
	return true
}

// winchRopeDirectionVector is the normalized 3-vector from the flyer
// (assumed at the origin) to the winch's configured location. Marked
// "fix me" in the original (original_source/src/controller/state.rs): a
// full model would derive this from tether geometry rather than raw
// winch placement, but that refinement was never implemented upstream
// either.
func winchRopeDirectionVector(location [3]float64) vecmath.Vec3 {
	v := vecmath.Vec3{location[0], location[1], location[2]}
	len := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if len == 0 {
		return vecmath.Vec3{0, 0, -1}
	}
	return vecmath.Scale3(v, 1/len)
}

// manualSingleWinchController returns the Y-axis-only velocity for a
// single selected winch in ManualWinch mode — no return-velocity term,
// unlike the multi-winch path (original_source/src/controller/state.rs's
// manual_single_winch_controller).
func manualSingleWinchController(v manual.Velocity) float64 {
	return v.Y
}

// manualMultiWinchController negates Y relative to the single-winch
// convention. Per spec §9 open question (b), this negated form is
// authoritative: it is the richer, later variant in the original source,
// confirmed against manual_multi_winch_controller negating Y while
// manual_single_winch_controller does not.
func manualMultiWinchController(v manual.Velocity) vecmath.Vec3 {
	return vecmath.Vec3{v.X, -v.Y, v.Z}
}

// multiWinchController projects the commanded 3-vector onto winch i's
// rope direction, then passes the scalar through that winch's
// force-limit guard (which both clamps direction and superimposes the
// small return velocity) — spec §4.2's velocity-source-selection for
// Normal/ManualFlyer mode.
func multiWinchController(wc *winch.Controller, commanded vecmath.Vec3, ropeDir vecmath.Vec3, returnVelocityMax float64) float64 {
	projected := commanded[0]*ropeDir[0] + commanded[1]*ropeDir[1] + commanded[2]*ropeDir[2]
	return wc.ForceLimitGuard(projected, returnVelocityMax)
}

// winchControlLoop implements spec §4.2's velocity-source-selection
// table across every winch for the current tick, dispatching on mode
// (original_source/src/controller/state.rs's winch_control_loop).
func (s *state) winchControlLoop(winches []config.WinchParams, bot config.BotParams, now time.Time) []float64 {
	out := make([]float64, len(s.winches))

	switch s.mode.Kind {
	case bus.ModeHalted:
		// all zero

	case bus.ModeManualWinch:
		idx, ok := s.winchByID[s.mode.WinchID]
		if ok {
			v := s.manualCtrl.Velocity()
			selected := manualSingleWinchController(v)
			// ForceLimitGuard with no return-velocity term reduces to
			// manual_single_winch_controller's plain Stuck=>0/ForceLimited-
			// clamp/Normal=>passthrough match (original_source/src/
			// controller/state.rs:164-171).
			out[idx] = s.winches[idx].ForceLimitGuard(selected, 0)
		}

	case bus.ModeManualFlyer, bus.ModeNormal:
		if !s.isStatusWatchdogOkay(winches, now) {
			s.haltMotion()
			break
		}
		commanded := manualMultiWinchController(s.manualCtrl.Velocity())
		for i, wc := range s.winches {
			ropeDir := winchRopeDirectionVector(winches[i].Location)
			out[i] = multiWinchController(wc, commanded, ropeDir, winches[i].ForceReturnVelocityMax)
		}
	}

	return out
}

// lightingTick advances each winch's lighting phases for this tick and
// assembles the LightEnvironment to publish to the LED animator (spec
// §4.7, original_source/src/controller/state.rs's light_environment).
func (s *state) lightingTick(scheme config.LightingScheme, filterParam float64, dt float64) *led.LightEnvironment {
	env := &led.LightEnvironment{
		Brightness:     scheme.Brightness,
		Wavelength:     scheme.Wavelength,
		FlashExponent:  scheme.FlashExponent,
		FlyerTopColor:  led.Pixel{R: scheme.Color[0], G: scheme.Color[1], B: scheme.Color[2]},
		FlyerRingColor: led.Pixel{R: scheme.Color[0], G: scheme.Color[1], B: scheme.Color[2]},
	}

	for _, wc := range s.winches {
		selected := s.mode.Kind == bus.ModeManualWinch && s.mode.WinchID == wc.ID()
		r, g, b := wc.LightingBaseColor(s.mode, selected)
		wc.AdvancePhases(1.0, 1.0, dt)
		env.Winches = append(env.Winches, led.WinchLighting{
			WinchID:       wc.ID(),
			BaseColor:     led.Pixel{R: r, G: g, B: b},
			FlashColor:    led.Pixel{R: scheme.FlashColor[0], G: scheme.FlashColor[1], B: scheme.FlashColor[2]},
			CommandPhase:  wc.CommandPhase(),
			MotionPhase:   wc.MotionPhase(),
			WaveAmplitude: wc.WaveAmplitude(0, filterParam),
		})
	}

	return env
}

// overlaySceneTick rebuilds the overlay scene for one video frame,
// advancing the particle system toward the tracked rectangle (spec
// §4.1's video-frame handler; SPEC_FULL.md's particle-system
// supplement).
func (s *state) overlaySceneTick(ov config.OverlayParams) []bus.OverlayRect {
	s.drawing.Clear()

	if s.trackedRect != nil {
		rect := vecmath.Vec4{float64(s.trackedRect.X), float64(s.trackedRect.Y), float64(s.trackedRect.W), float64(s.trackedRect.H)}
		s.particles.FollowRect(ov, rect)
		s.particles.Render(ov, s.drawing)
		s.drawing.OutlineRect([4]float32{s.trackedRect.X, s.trackedRect.Y, s.trackedRect.W, s.trackedRect.H})
	}

	return s.drawing.Scene
}
