package led

import (
	"log"
	"time"
)

// Writer sends one model's pre-serialized pixel bytes over the node UDP
// transport (spec §4.5 message type 0x05). Kept as a narrow interface so
// this package doesn't need to import node directly — main.go wires
// node.Transport.SendFlyerLEDs/SendWinchLEDs as the concrete
// implementations (original_source/src/botcomm.rs's LEDWriter trait
// played the same decoupling role).
type Writer interface {
	Write(data []byte) error
}

// WriterMapping pairs one model's pixel-position layout with the wire
// writer that model's colors get sent through.
type WriterMapping struct {
	Writer Writer
	Pixels []PixelMapping
}

// Animator is the controller-facing handle: Update publishes a new
// environment snapshot to the animator goroutine, deduplicating
// identical updates so an unchanged environment never wakes the
// goroutine (spec §4.7: "publishes only when the environment differs
// from the last-sent value").
type Animator struct {
	envCh chan *LightEnvironment

	lastSent *LightEnvironment
}

// envChanCapacity bounds the animator's inbound environment queue.
const envChanCapacity = 128

// Start launches the animator goroutine and returns the controller-side
// handle. frameRate is frames/sec (spec default ≈ 60 Hz); filterParam
// controls the rolling-interpolation blend factor per frame.
func Start(models []WriterMapping, frameRate, filterParam float64, logger *log.Logger) *Animator {
	a := &Animator{envCh: make(chan *LightEnvironment, envChanCapacity)}
	go runAnimatorThread(models, frameRate, filterParam, a.envCh, logger)
	return a
}

// Update publishes env if it differs from the last environment sent.
func (a *Animator) Update(env *LightEnvironment) {
	if a.lastSent != nil && environmentsEqual(a.lastSent, env) {
		return
	}
	select {
	case a.envCh <- env:
		a.lastSent = env
	default:
		// Queue is full; the animator thread will catch up to a more
		// recent value soon enough that this one isn't worth blocking
		// the controller tick for.
	}
}

func environmentsEqual(a, b *LightEnvironment) bool {
	if a.Brightness != b.Brightness || a.Wavelength != b.Wavelength || a.FlashExponent != b.FlashExponent {
		return false
	}
	if a.FlyerTopColor != b.FlyerTopColor || a.FlyerRingColor != b.FlyerRingColor {
		return false
	}
	if len(a.Winches) != len(b.Winches) {
		return false
	}
	for i := range a.Winches {
		if a.Winches[i] != b.Winches[i] {
			return false
		}
	}
	return true
}

// animatorThread owns the shader, the rolling interpolated environment,
// and the absolute-frame-time reference (spec §4.7, grounded on
// original_source/src/led/animator.rs's AnimatorThread.frame()).
type animatorThread struct {
	models      []WriterMapping
	frameRate   float64
	filterParam float64
	recv        <-chan *LightEnvironment
	logger      *log.Logger

	shader              *Shader
	env                 *LightEnvironment
	interpolationTarget *LightEnvironment

	lastFrame time.Time
}

func runAnimatorThread(models []WriterMapping, frameRate, filterParam float64, recv <-chan *LightEnvironment, logger *log.Logger) {
	at := &animatorThread{
		models:      models,
		frameRate:   frameRate,
		filterParam: filterParam,
		recv:        recv,
		logger:      logger,
		shader:      NewShader(),
	}
	for {
		at.frame()
	}
}

func (at *animatorThread) frameDuration() time.Duration {
	return time.Duration(float64(time.Second) / at.frameRate)
}

// frame implements the original's absolute-frame-time reference with
// catch-up reset: if the process fell behind, it resets the reference
// instead of bursting through a backlog of frames.
func (at *animatorThread) frame() {
	now := time.Now()
	if at.lastFrame.IsZero() {
		at.lastFrame = now
	} else {
		nextAt := at.lastFrame.Add(at.frameDuration())
		if !nextAt.After(now) {
			at.lastFrame = now
		} else {
			time.Sleep(nextAt.Sub(now))
			at.lastFrame = nextAt
		}
	}

	// Drain all pending updates, keeping only the latest (spec §4.7;
	// grounded on animator.rs's try_iter().last()).
drain:
	for {
		select {
		case env := <-at.recv:
			at.interpolationTarget = env
		default:
			break drain
		}
	}

	if at.interpolationTarget == nil {
		return
	}

	if at.env == nil {
		at.env = at.interpolationTarget
	} else {
		blended, err := Interpolate(at.env, at.interpolationTarget, at.filterParam)
		if err != nil {
			at.logger.Printf("led: interpolate: %v", err)
			blended = at.interpolationTarget
		}
		// The flash phase free-runs (see Shader.Step); keep it out of the
		// smoothing toward the target snapshot.
		blended.FlashPhase = at.env.FlashPhase
		at.env = blended
	}

	at.shader.Step(at.env, 1.0/at.frameRate)

	for _, wm := range at.models {
		buf := at.render(wm.Pixels, at.env)
		if err := wm.Writer.Write(buf); err != nil {
			at.logger.Printf("led: write: %v", err)
		}
	}
}

func (at *animatorThread) render(mapping []PixelMapping, env *LightEnvironment) []byte {
	buf := make([]byte, 0, len(mapping)*4)
	for _, pm := range mapping {
		px := at.shader.Pixel(env, pm)
		wire := EncodeAPA102(px)
		buf = append(buf, wire[:]...)
	}
	return buf
}
