// Package overlay builds the vector rectangle/text scene broadcast as
// bus.CameraOverlayScene (spec §4.1's video-frame handler), plus the
// particle system that visually follows the tracked-object rectangle.
// Grounded on original_source/src/overlay.rs.
package overlay

import (
	"math/rand"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/internal/vecmath"
)

// glyphWidths is a minimal baked-in advance-width table standing in for
// the original's bitmap-font asset (din-alternate.fnt) — no bitmap-font
// library or font asset is present anywhere in the retrieved example
// pack, so text layout here only needs enough metrics to lay out simple
// status strings, not to render an arbitrary font.
var glyphWidths = map[rune]float64{
	' ': 0.25,
}

func glyphWidth(r rune) float64 {
	if w, ok := glyphWidths[r]; ok {
		return w
	}
	return 0.55 // reasonable average advance for a condensed sans digit/letter
}

// DrawingState is the current pen: fill/background/outline colors, plus
// text layout metrics, all expressed in the same normalized units as
// bus.OverlayRect.
type DrawingState struct {
	Color           [4]float32
	BackgroundColor [4]float32
	OutlineColor    [4]float32
	OutlineThickness float32
	TextHeight       float32
	TextMargin       float32
}

func defaultState() DrawingState {
	return DrawingState{
		Color:            [4]float32{1, 1, 1, 1},
		BackgroundColor:  [4]float32{0, 0, 0, 0.25},
		OutlineColor:     [4]float32{1, 1, 1, 0.33},
		OutlineThickness: 2.0 / 1920.0 * 2.0,
		TextHeight:       2.0 / 1920.0 * 24.0,
		TextMargin:       2.0 / 1920.0 * 6.0,
	}
}

// DrawingContext accumulates a scene of bus.OverlayRect shapes (spec
// §4.1's CameraOverlayScene body), one video frame at a time.
type DrawingContext struct {
	Scene   []bus.OverlayRect
	Current DrawingState
}

func NewDrawingContext() *DrawingContext {
	return &DrawingContext{Current: defaultState()}
}

// Clear empties the scene and resets the pen, ready for the next video
// frame's rebuild (spec §4.1: "Video frame: rebuild overlay scene").
func (d *DrawingContext) Clear() {
	d.Scene = nil
	d.Current = defaultState()
}

// SolidRect draws a filled rectangle using a known-blank sprite-sheet
// region, per the original's sprite_rect(rect, [511,511,1,1]) idiom.
func (d *DrawingContext) SolidRect(rect [4]float32) {
	d.SpriteRect(rect, [4]int32{511, 511, 1, 1})
}

func (d *DrawingContext) SpriteRect(rect [4]float32, src [4]int32) {
	if d.Current.Color[3] > 0 && rect[2] > 0 && rect[3] > 0 {
		d.Scene = append(d.Scene, bus.OverlayRect{Src: src, Dest: rect, RGBA: d.Current.Color})
	}
}

func (d *DrawingContext) BackgroundRect(rect [4]float32) {
	d.Current.Color, d.Current.BackgroundColor = d.Current.BackgroundColor, d.Current.Color
	d.SolidRect(rect)
	d.Current.Color, d.Current.BackgroundColor = d.Current.BackgroundColor, d.Current.Color
}

// OutlineRect draws a thin rectangular outline just outside rect.
func (d *DrawingContext) OutlineRect(rect [4]float32) {
	if d.Current.OutlineColor[3] <= 0 || rect[2] <= 0 || rect[3] <= 0 {
		return
	}
	x, y, w, h := rect[0], rect[1], rect[2], rect[3]
	t := d.Current.OutlineThickness
	if t <= 0 {
		return
	}
	t2 := t * 2

	d.Current.Color, d.Current.OutlineColor = d.Current.OutlineColor, d.Current.Color
	d.SolidRect([4]float32{x - t, y - t, w + t2, t})
	d.SolidRect([4]float32{x - t, y + h, w + t2, t})
	d.SolidRect([4]float32{x - t, y, t, h})
	d.SolidRect([4]float32{x + w, y, t, h})
	d.Current.Color, d.Current.OutlineColor = d.Current.OutlineColor, d.Current.Color
}

// textSize sums glyph advance widths at the configured text height.
func textSize(s string, height float32) (w, h float32) {
	var width float64
	for _, r := range s {
		width += glyphWidth(r)
	}
	return float32(width) * height, height
}

// Text lays out s as a background-filled, outlined label anchored at pos
// by the given (x,y) anchor fractions, and returns the box rect it
// occupies.
func (d *DrawingContext) Text(pos [2]float32, anchor [2]float32, s string) [4]float32 {
	tw, th := textSize(s, d.Current.TextHeight)
	m := d.Current.TextMargin
	boxW, boxH := tw+m*2, th+m*2
	boxX := pos[0] - boxW*anchor[0]
	boxY := pos[1] - boxH*anchor[1]
	boxRect := [4]float32{boxX, boxY, boxW, boxH}

	d.BackgroundRect(boxRect)
	if d.Current.Color[3] > 0 {
		d.drawGlyphs(s, [2]float32{boxX + m, boxY + m})
	}
	d.OutlineRect(boxRect)

	return boxRect
}

func (d *DrawingContext) drawGlyphs(s string, topLeft [2]float32) {
	x := topLeft[0]
	for _, r := range s {
		w := float32(glyphWidth(r)) * d.Current.TextHeight
		d.Scene = append(d.Scene, bus.OverlayRect{
			Src:  [4]int32{0, 0, 1, 1},
			Dest: [4]float32{x, topLeft[1], w, d.Current.TextHeight},
			RGBA: d.Current.Color,
		})
		x += w
	}
}

// --- Particle system -------------------------------------------------------

// TickHz matches the controller's fixed tick rate (spec §2, §5); each
// FollowRect call integrates one step of 1/TickHz seconds. The controller
// calls FollowRect once per video frame, not once per tick.
const TickHz = 250.0

type particle struct {
	position vecmath.Vec2
	velocity vecmath.Vec2
}

// ParticleDrawing is a small stepped physics simulation of particles
// following the tracked-object overlay rectangle (SPEC_FULL.md's
// supplemented overlay-particle-system feature; grounded on
// original_source/src/overlay.rs's ParticleDrawing).
type ParticleDrawing struct {
	particles []particle
	rng       *rand.Rand
}

func NewParticleDrawing(rng *rand.Rand) *ParticleDrawing {
	return &ParticleDrawing{rng: rng}
}

// FollowRect advances the particle simulation by one 1/TickHz step
// toward rect (the tracked object's current screen rectangle).
func (p *ParticleDrawing) FollowRect(cfg config.OverlayParams, rect vecmath.Vec4) {
	if len(p.particles) > cfg.ParticleCount {
		p.particles = p.particles[:cfg.ParticleCount]
	}
	for len(p.particles) < cfg.ParticleCount {
		p.particles = append(p.particles, particle{
			position: vecmath.Vec2{p.rng.Float64() - 0.5, p.rng.Float64() - 0.5},
		})
	}

	next := make([]particle, len(p.particles))
	for i := range p.particles {
		pos := p.particles[i].position

		var repel vecmath.Vec2
		for j := range p.particles {
			if i == j {
				continue
			}
			diff := vecmath.Sub2(pos, p.particles[j].position)
			l := vecmath.Len2(diff)
			if l > 0 {
				if l < cfg.ParticleMinDistance {
					scalar := (cfg.ParticleMinDistance - l) * cfg.ParticleMinDistanceGain
					repel = vecmath.Add2(repel, vecmath.Scale2(diff, scalar/l))
				}
			} else {
				push := vecmath.Vec2{p.rng.Float64() - 0.5, p.rng.Float64() - 0.5}
				repel = vecmath.Add2(repel, vecmath.Scale2(push, cfg.ParticleMinDistanceGain))
			}
		}

		edgeDiff := vecmath.Sub2(vecmath.RectNearestPerimeterPoint(rect, pos), pos)
		centerDiff := vecmath.Sub2(vecmath.RectCenter(rect), pos)
		perpendicular := vecmath.Vec2{centerDiff[1], -centerDiff[0]}

		vEdge := vecmath.Scale2(edgeDiff, cfg.ParticleEdgeGain)
		vPerp := vecmath.Scale2(perpendicular, cfg.ParticlePerpendicularGain)

		dampedV := vecmath.Scale2(p.particles[i].velocity, 1-cfg.ParticleDamping)
		velocity := vecmath.Add2(dampedV, vecmath.Add2(vEdge, vecmath.Add2(vPerp, repel)))
		position := vecmath.Add2(pos, vecmath.Scale2(velocity, 1.0/TickHz))

		next[i] = particle{position: position, velocity: velocity}
	}
	p.particles = next
}

// Render draws each particle as a small sprite into d.
func (p *ParticleDrawing) Render(cfg config.OverlayParams, d *DrawingContext) {
	size := vecmath.RectCenteredOnOrigin(cfg.ParticleSize, cfg.ParticleSize)
	color := [4]float32{
		float32(cfg.ParticleColor[0]), float32(cfg.ParticleColor[1]),
		float32(cfg.ParticleColor[2]), float32(cfg.ParticleColor[3]),
	}
	d.Current.Color = color
	for _, part := range p.particles {
		rect := vecmath.RectTranslate(size, part.position)
		d.SpriteRect(
			[4]float32{float32(rect[0]), float32(rect[1]), float32(rect[2]), float32(rect[3])},
			cfg.ParticleSprite,
		)
	}
}
