// Package controller implements the single-owner cooperative flight
// controller (spec §4.1): the tick/video-frame/scheduler timers, the
// per-winch motion planners, the gimbal pipeline, manual input fusion,
// the LED animator publisher, and the node UDP transport — all driven
// from one goroutine that owns every piece of mutable state. Grounded
// on original_source/src/controller/mod.rs for the dispatch shape and
// on the teacher's main.go for the channerics-driven event loop idiom.
package controller

import (
	"log"
	"math/rand"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/fygimbal"
	"github.com/skyline-rigging/flyer-controller/gamepad"
	"github.com/skyline-rigging/flyer-controller/gimbal"
	"github.com/skyline-rigging/flyer-controller/led"
	"github.com/skyline-rigging/flyer-controller/metrics"
	"github.com/skyline-rigging/flyer-controller/node"
	"github.com/skyline-rigging/flyer-controller/overlay"
	"github.com/skyline-rigging/flyer-controller/vision"
)

// gimbalValueIndexYaw/PitchAngle are the value-table slots the gimbal's
// raw angle encoders are read from. Like ValueIndexControlRate, the core
// spec doesn't enumerate the full value table; these are this
// implementation's own stable placement.
const (
	gimbalValueIndexYawAngle   = 1
	gimbalValueIndexPitchAngle = 2
)

// Controller is the top-level wiring: every package this process owns,
// reachable from the one goroutine Run executes on.
type Controller struct {
	bus      *bus.Bus
	registry *bus.Registry
	cfg      *config.SharedFile
	logger   *log.Logger

	transport   *node.Transport
	ledAnimator *led.Animator

	gamepadSrc gamepad.Source
	visionSrc  vision.Source
	metricsExp metrics.Exporter

	gimbalTracker  *fygimbal.ValueTracker
	gimbalReceiver *fygimbal.Receiver

	state *state
	rng   *rand.Rand

	scheduleEntries []scheduleEntry

	// winchVelocities is the per-winch commanded velocity computed once
	// per tick by winchControlLoop, consumed whenever a WinchStatus
	// arrives for that winch (spec §4.2's velocity-source selection runs
	// at tick rate; the winch command itself is sent in response to the
	// firmware's own status cadence).
	winchVelocities []float64
}

// New builds the controller with every collaborator already constructed
// (spec §5's fixed, long-lived threads are started by Run, not New).
func New(
	cfg *config.SharedFile,
	transport *node.Transport,
	ledAnimator *led.Animator,
	gamepadSrc gamepad.Source,
	visionSrc vision.Source,
	metricsExp metrics.Exporter,
	logger *log.Logger,
) *Controller {
	snapshot := cfg.Snapshot()

	winchIDs := make([]int, len(snapshot.Winches))
	for i := range snapshot.Winches {
		winchIDs[i] = i
	}

	rng := rand.New(rand.NewSource(1))

	c := &Controller{
		bus:            bus.New(logger),
		registry:       bus.NewRegistry(logger),
		cfg:            cfg,
		logger:         logger,
		transport:      transport,
		ledAnimator:    ledAnimator,
		gamepadSrc:     gamepadSrc,
		visionSrc:      visionSrc,
		metricsExp:     metricsExp,
		gimbalTracker:  fygimbal.NewValueTracker(),
		gimbalReceiver: &fygimbal.Receiver{},
		rng:            rng,
		state:          newState(winchIDs, overlay.NewParticleDrawing(rng)),
	}
	c.rebuildSchedule(snapshot.Lighting.Schedule)
	c.gimbalTracker.RequestContinuous(gimbalValueIndexYawAngle, fygimbal.TargetYaw, time.Now())
	c.gimbalTracker.RequestContinuous(gimbalValueIndexPitchAngle, fygimbal.TargetPitch, time.Now())
	return c
}

func (c *Controller) rebuildSchedule(entries []config.ScheduleEntry) {
	c.scheduleEntries = make([]scheduleEntry, len(entries))
	for i, e := range entries {
		c.scheduleEntries[i] = scheduleEntry{hour: e.HourUTC, minute: e.MinuteUTC, scheme: e.Scheme}
	}
}

// Bus exposes the inbound queue input sources (gamepad, web, CV plugin,
// scheduler) send Command/Message values onto.
func (c *Controller) Bus() *bus.Bus { return c.bus }

// Registry exposes the telemetry fan-out web sessions subscribe to.
func (c *Controller) Registry() *bus.Registry { return c.registry }

// Run is the controller goroutine's entry point; it returns when done is
// closed. It is the only goroutine that touches state, winches, the
// gimbal controller, or manual controls.
func (c *Controller) Run(done <-chan struct{}) {
	now := time.Now()
	t := newTimers(now)
	sched := newConfigScheduler(now)

	tickCh := channerics.NewTicker(done, time.Second/TickHz)
	videoCh := channerics.NewTicker(done, time.Second/VideoHz)
	schedPollCh := channerics.NewTicker(done, time.Second)

	datagramCh := make(chan *node.Datagram, 64)
	go c.recvLoop(done, datagramCh)

	for {
		select {
		case <-done:
			return

		case env := <-c.bus.In:
			c.registry.Publish(env)
			c.dispatchMessage(env)

		case req := <-c.bus.Requests():
			c.registry.Service(req)

		case dg := <-datagramCh:
			c.dispatchDatagram(dg)

		case now := <-tickCh:
			if t.tick.poll(now) {
				c.runTick(now)
			}

		case now := <-videoCh:
			if t.videoFrame.poll(now) {
				c.runVideoFrame(now)
			}

		case now := <-schedPollCh:
			for _, due := range sched.due(now, c.scheduleEntries) {
				c.applyLightingScheme(due.scheme)
			}
			c.pollAuxiliarySources(now)
		}
	}
}

// recvLoop owns the blocking UDP read and forwards decoded datagrams to
// the controller goroutine; it performs no state mutation itself (spec
// §5 thread 2: "UDP receiver ... forwards typed messages to Controller").
func (c *Controller) recvLoop(done <-chan struct{}, out chan<- *node.Datagram) {
	for {
		select {
		case <-done:
			return
		default:
		}

		dg, err := c.transport.Recv()
		if err != nil {
			// Fatal per spec §7: anything other than a recv timeout.
			c.logger.Fatalf("node: fatal transport error: %v", err)
		}
		if dg == nil {
			continue
		}
		select {
		case out <- dg:
		case <-done:
			return
		}
	}
}

// pollAuxiliarySources drains the gamepad and vision sources once per
// scheduler poll (1 Hz is more than adequate for human input and keeps
// Run's select statement from growing another timer).
func (c *Controller) pollAuxiliarySources(now time.Time) {
	for {
		cmd, ok := c.gamepadSrc.Poll()
		if !ok {
			break
		}
		c.bus.Send(cmd)
	}
	for {
		msg, ok := c.visionSrc.Poll()
		if !ok {
			break
		}
		c.bus.Send(msg)
	}
}

// dispatchMessage implements spec §4.1 step 2's variant switch for
// bus-originated messages (commands from gamepad/web/scheduler/CV, plus
// the controller's own republished telemetry types, which fall through
// to the default no-op — only input sources author Commands).
func (c *Controller) dispatchMessage(env bus.Envelope) {
	switch m := env.Message.(type) {
	case bus.UpdateConfig:
		c.handleUpdateConfig(m)

	case bus.SetMode:
		c.handleSetMode(m)

	case bus.ManualControlReset:
		c.state.manualCtrl.Reset()

	case bus.ManualControlValue:
		c.state.manualCtrl.SetAxis(m.Axis, float64(m.Value))

	case bus.CameraObjectDetection:
		c.state.cameraObjectDetectionUpdate(m.Rect, m.Label, m.Prob)

	case bus.CameraRegionTracking:
		c.state.cameraRegionTrackingUpdate(m.Rect)
		c.registry.Publish(bus.Envelope{At: time.Now(), Message: bus.CameraInitTrackedRegion{Rect: m.Rect}})

	case bus.GimbalMotorEnable:
		value := int16(0)
		if m.Enable {
			value = 1
		}
		c.gimbalTracker.WriteValue(0, fygimbal.TargetHost, value)

	case bus.GimbalPacket:
		c.feedGimbalBytes(m.Raw)

	case bus.GimbalValueWrite:
		c.gimbalTracker.WriteValue(m.Index, fygimbal.Target(m.Target), m.Value)

	case bus.GimbalValueRequests:
		now := time.Now()
		for _, r := range m.Requests {
			if r.Continuous {
				c.gimbalTracker.RequestContinuous(r.Index, fygimbal.Target(r.Target), now)
			} else {
				c.gimbalTracker.RequestOnce(r.Index, fygimbal.Target(r.Target), now)
			}
		}
	}
}

func (c *Controller) handleUpdateConfig(m bus.UpdateConfig) {
	next, err := c.cfg.MergeUpdate(m.Value)
	if err != nil {
		c.registry.Publish(bus.Envelope{At: time.Now(), Message: bus.Error{
			Code:   bus.ErrorUpdateConfigFailed,
			Reason: err.Error(),
		}})
		return
	}
	c.configChanged(next)

	// A plain (non-SetMode) config update can only name a mode with no
	// associated winch id; ManualWinch(id) transitions must go through
	// SetMode, which carries the id explicitly.
	if mode, ok := parseSimpleMode(next.Mode); ok && mode != c.state.mode {
		c.state.modeChanged(mode)
	}
}

func parseSimpleMode(name string) (bus.Mode, bool) {
	switch name {
	case "Halted":
		return bus.Mode{Kind: bus.ModeHalted}, true
	case "Normal":
		return bus.Mode{Kind: bus.ModeNormal}, true
	case "ManualFlyer":
		return bus.Mode{Kind: bus.ModeManualFlyer}, true
	default:
		return bus.Mode{}, false
	}
}

// configChanged replaces the shared snapshot, broadcasts ConfigIsCurrent,
// queues an async save, and refreshes any sub-state derived from config
// (spec §4.1: "config_changed()... notifies sub-states").
func (c *Controller) configChanged(next *config.Config) {
	c.cfg.Replace(next)
	c.rebuildSchedule(next.Lighting.Schedule)
	c.registry.Publish(bus.Envelope{At: time.Now(), Message: bus.ConfigIsCurrent{Config: next}})
}

func (c *Controller) handleSetMode(m bus.SetMode) {
	if c.state.mode == m.Mode {
		return
	}
	c.state.modeChanged(m.Mode)

	next := c.cfg.Snapshot().Clone()
	next.Mode = m.Mode.String()
	c.configChanged(next)
}

// applyLightingScheme sets the active scheme by name and publishes the
// resulting config (spec §4.1's scheduler branch).
func (c *Controller) applyLightingScheme(name string) {
	next := c.cfg.Snapshot().Clone()
	if _, ok := next.Lighting.Schemes[name]; !ok {
		return
	}
	next.Lighting.ActiveScheme = name
	c.configChanged(next)
}

// dispatchDatagram handles node-originated traffic, which arrives
// outside the bus entirely (it is wire-decoded, not message-passed from
// another in-process source) but is still republished to telemetry
// subscribers once decoded (spec §4.1 step 2's WinchStatus/FlyerSensors
// branches).
func (c *Controller) dispatchDatagram(dg *node.Datagram) {
	now := time.Now()

	switch dg.Type {
	case node.MessageWinchStatus:
		status, err := node.DecodeWinchStatus(dg.WinchID, dg.Payload)
		if err != nil {
			c.logger.Printf("node: dropping malformed winch status: %v", err)
			return
		}
		c.registry.Publish(bus.Envelope{At: now, Message: status})
		c.handleWinchStatus(status, now)

	case node.MessageFlyerSensors:
		sensors, err := node.DecodeFlyerSensors(dg.Payload)
		if err != nil {
			c.logger.Printf("node: dropping malformed flyer sensors: %v", err)
			return
		}
		c.registry.Publish(bus.Envelope{At: now, Message: sensors})
		c.state.flyerSensorUpdate(sensors)

	case node.MessageGimbal:
		c.feedGimbalBytes(dg.Payload)

	case node.MessageLoopback:
		// Ignored (spec §4.5 table).
	}
}

func (c *Controller) handleWinchStatus(status bus.WinchStatus, now time.Time) {
	wc := c.state.winchFor(status.WinchID)
	if wc == nil {
		return
	}
	c.state.lastStatusAt[status.WinchID] = now

	cfg := c.cfg.Snapshot()
	idx, ok := c.state.winchByID[status.WinchID]
	if !ok || idx >= len(cfg.Winches) {
		return
	}
	winchCfg := cfg.Winches[idx]

	velocity := 0.0
	if idx < len(c.winchVelocities) {
		velocity = c.winchVelocities[idx]
	}

	cmd := wc.Update(status, c.state.mode, winchCfg, velocity)
	payload, err := node.EncodeWinchCommand(cmd)
	if err != nil {
		c.logger.Printf("node: encode winch command: %v", err)
		return
	}
	if err := c.transport.SendWinchCommand(status.WinchID, payload); err != nil {
		c.logger.Printf("node: send winch command: %v", err)
	}
}

// feedGimbalBytes routes raw gimbal sub-protocol bytes through the
// framing receiver, updating the value cache/tracker on GET_VALUE
// responses from HOST and publishing UnhandledGimbalPacket for anything
// else (spec §4.6's "emit well-formed packets in order").
func (c *Controller) feedGimbalBytes(raw []byte) {
	now := time.Now()
	for _, p := range c.gimbalReceiver.Feed(raw) {
		if p.Target == fygimbal.TargetHost && p.Command == fygimbal.CommandGetValue {
			if index, value, ok := c.gimbalTracker.HandleResponse(p.Payload, now); ok {
				c.applyGimbalValue(index, value, now)
			}
			continue
		}
		c.registry.Publish(bus.Envelope{At: now, Message: bus.UnhandledGimbalPacket{Raw: fygimbal.Encode(p)}})
	}
}

func (c *Controller) applyGimbalValue(index int, value int16, now time.Time) {
	target := int(fygimbal.TargetHost)
	switch index {
	case gimbalValueIndexYawAngle:
		target = int(fygimbal.TargetYaw)
		c.state.gimbalCtrl.Cache().Update(index, target, value, now)
	case gimbalValueIndexPitchAngle:
		target = int(fygimbal.TargetPitch)
		c.state.gimbalCtrl.Cache().Update(index, target, value, now)
	}
	c.registry.Publish(bus.Envelope{At: now, Message: bus.GimbalValue{Index: index, Target: target, Value: value}})
}

func (c *Controller) runTick(now time.Time) {
	cfg := c.cfg.Snapshot()
	dt := 1.0 / TickHz

	c.state.manualCtrl.Tick(cfg.Bot.ManualControlVelocityMPerSec, cfg.Bot.AccelerationCap, dt)

	c.winchVelocities = c.state.winchControlLoop(cfg.Winches, cfg.Bot, now)

	c.state.trackingUpdate(cfg.Vision, now)
	c.runGimbalTick(cfg, now, dt)

	env := c.state.lightingTick(cfg.Lighting.Schemes[cfg.Lighting.ActiveScheme], cfg.Lighting.Animator.FilterParam, dt)
	c.ledAnimator.Update(env)

	for _, p := range c.gimbalTracker.BuildBatch(now) {
		if err := c.transport.SendGimbalPacket(0, fygimbal.Encode(p)); err != nil {
			c.logger.Printf("node: send gimbal packet: %v", err)
		}
	}

	c.metricsExp.Observe("bus_inbound_depth", float64(len(c.bus.In)))
	c.metricsExp.Observe("telemetry_subscribers", float64(c.registry.Count()))
}

func (c *Controller) runGimbalTick(cfg *config.Config, now time.Time, dt float64) {
	// Re-mark the angle slots every tick; a continuous request expires
	// once it is no longer refreshed.
	c.gimbalTracker.RequestContinuous(gimbalValueIndexYawAngle, fygimbal.TargetYaw, now)
	c.gimbalTracker.RequestContinuous(gimbalValueIndexPitchAngle, fygimbal.TargetPitch, now)

	yawRaw, yawStale := c.state.gimbalCtrl.Cache().Read(gimbalValueIndexYawAngle, int(fygimbal.TargetYaw), now)
	pitchRaw, pitchStale := c.state.gimbalCtrl.Cache().Read(gimbalValueIndexPitchAngle, int(fygimbal.TargetPitch), now)

	yawAngle := float64(gimbal.EncoderSub(int32(yawRaw), cfg.Gimbal.YawCenterCal))
	pitchAngle := float64(gimbal.EncoderSub(int32(pitchRaw), cfg.Gimbal.PitchCenterCal))

	border := bus.Rect{
		X: float32(cfg.Vision.BorderRect[0]), Y: float32(cfg.Vision.BorderRect[1]),
		W: float32(cfg.Vision.BorderRect[2]), H: float32(cfg.Vision.BorderRect[3]),
	}
	var tracked bus.Rect
	hasTracked := c.state.trackedRect != nil
	if hasTracked {
		tracked = *c.state.trackedRect
	}

	result := c.state.gimbalCtrl.Tick(
		c.state.mode.Kind == bus.ModeHalted,
		yawAngle, pitchAngle,
		tracked, border, hasTracked,
		cfg.Gimbal,
		yawStale || pitchStale,
		c.rng,
	)

	c.gimbalTracker.WriteValue(fygimbal.ValueIndexControlRate, fygimbal.TargetYaw, result.YawRate)
	c.gimbalTracker.WriteValue(fygimbal.ValueIndexControlRate, fygimbal.TargetPitch, result.PitchRate)

	yawActivations := make([]float32, len(result.YawActivations))
	for i, v := range result.YawActivations {
		yawActivations[i] = float32(v)
	}
	pitchActivations := make([]float32, len(result.PitchActivations))
	for i, v := range result.PitchActivations {
		pitchActivations[i] = float32(v)
	}

	c.registry.Publish(bus.Envelope{At: now, Message: bus.GimbalControlStatus{
		YawRate:          float32(result.YawRate),
		PitchRate:        float32(result.PitchRate),
		YawActivations:   yawActivations,
		PitchActivations: pitchActivations,
		Stale:            result.Stale,
	}})
}

func (c *Controller) runVideoFrame(now time.Time) {
	cfg := c.cfg.Snapshot()
	scene := c.state.overlaySceneTick(cfg.Overlay)
	c.registry.Publish(bus.Envelope{At: now, Message: bus.CameraOverlayScene{Scene: scene}})
}
