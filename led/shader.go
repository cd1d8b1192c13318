package led

import "math"

// PixelUsage tags what a physical pixel position belongs to, selecting
// which shader branch renders it (spec §4.7).
type PixelUsage int

const (
	UsageWinch PixelUsage = iota
	UsageFlyerTop
	UsageFlyerRing
)

// PixelMapping is one physical LED's 3-D position and role, built by the
// flyer/winch model builders (original_source/src/led/models.rs).
type PixelMapping struct {
	Position [3]float64
	Usage    PixelUsage
	WinchID  int // meaningful only when Usage == UsageWinch
}

// WinchLighting is one winch's shader inputs for the current frame (spec
// §3's per-winch "lighting_*" state, surfaced into LightEnvironment so
// the LED animator thread — which does not own winch state — can render
// from a pure value).
type WinchLighting struct {
	WinchID       int
	BaseColor     Pixel
	FlashColor    Pixel
	CommandPhase  float64
	MotionPhase   float64
	WaveAmplitude float64
}

// LightEnvironment is the pure-value snapshot the controller publishes
// to the LED animator once per tick, only when it differs from the last
// one sent (spec §4.7).
type LightEnvironment struct {
	Brightness     float64
	Wavelength     float64
	FlashExponent  float64
	FlashPhase     float64
	FlyerTopColor  Pixel
	FlyerRingColor Pixel
	Winches        []WinchLighting
}

// Shader renders LightEnvironment snapshots into per-pixel colors. It
// holds no state of its own across frames beyond what's already carried
// in LightEnvironment/PixelMapping. The winch wave-train phases advance
// in the owning winch/controller state; the flash phase is advanced per
// frame by Step, inside the LightEnvironment it is given.
type Shader struct{}

func NewShader() *Shader { return &Shader{} }

// spatialWindow is a cosine bell in z/wavelength, giving the wave train
// an envelope that fades at the strip ends rather than cutting off
// sharply.
func spatialWindow(z, wavelength float64) float64 {
	if wavelength == 0 {
		return 0
	}
	x := z / wavelength
	if x < -0.5 || x > 0.5 {
		return 0
	}
	return 0.5 + 0.5*math.Cos(2*math.Pi*x)
}

// winchWave sums the two additive wave trains (commanded vs observed
// motion), each modulated by the spatial window and the configured
// amplitude.
func winchWave(position [3]float64, w WinchLighting, wavelength float64) float64 {
	window := spatialWindow(position[2], wavelength)
	command := math.Sin(w.CommandPhase + position[2]/max(wavelength, 1e-6))
	motion := math.Sin(w.MotionPhase + position[2]/max(wavelength, 1e-6))
	return window * w.WaveAmplitude * (command + motion)
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// flashEnvelope is the pulsing weight blended between a winch's base and
// flash colors (spec §4.7): (0.5+0.5*sin(phase))^exponent.
func flashEnvelope(phase, exponent float64) float64 {
	return math.Pow(0.5+0.5*math.Sin(phase), exponent)
}

func mix(a, b Pixel, t float64) Pixel {
	return Pixel{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
	}
}

func scalePixel(p Pixel, s float64) Pixel {
	return Pixel{R: p.R * s, G: p.G * s, B: p.B * s}
}

// Pixel renders one physical LED's color for the current environment.
func (s *Shader) Pixel(env *LightEnvironment, pm PixelMapping) Pixel {
	var out Pixel

	switch pm.Usage {
	case UsageWinch:
		var wl *WinchLighting
		for i := range env.Winches {
			if env.Winches[i].WinchID == pm.WinchID {
				wl = &env.Winches[i]
				break
			}
		}
		if wl == nil {
			return Pixel{}
		}
		envelope := flashEnvelope(env.FlashPhase, env.FlashExponent)
		base := mix(wl.BaseColor, wl.FlashColor, envelope)
		wave := winchWave(pm.Position, *wl, env.Wavelength)
		out = Pixel{R: base.R + wave, G: base.G + wave, B: base.B + wave}
	case UsageFlyerTop:
		out = env.FlyerTopColor
	case UsageFlyerRing:
		out = env.FlyerRingColor
	}

	return scalePixel(out, env.Brightness)
}

// Step advances the environment's global flash phase by one frame (spec
// §4.7: the flash envelope is driven by a phase that free-runs
// independent of any particular winch).
func (s *Shader) Step(env *LightEnvironment, dt float64) {
	const flashHz = 1.5
	env.FlashPhase = math.Mod(env.FlashPhase+flashHz*2*math.Pi*dt, 2*math.Pi)
}
