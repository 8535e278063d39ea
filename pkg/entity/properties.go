// Package entity implements the per-sprite/stage collectable state
// described in spec §3 and §4.6: Entity (identity, costumes, fields)
// and Properties (position, heading, visibility, pen, audio, graphical
// effects), with their clamping and wrapping rules.
package entity

import "math"

// Pen holds the pen-trail state: whether the pen is currently down, its
// stroke size, and its color as HSVA components.
type Pen struct {
	Down  bool
	Size  float64
	Hue   float64 // [0,360)
	Sat   float64 // [0,100]
	Val   float64 // [0,100]
	Alpha float64 // [0,100]
}

// Audio holds the per-entity sound-production knobs.
type Audio struct {
	Tempo   float64
	Volume  float64
	Balance float64
}

// Effects holds the nine graphical effect sliders, each clamped to
// [0,100] except ColorH, which wraps to [0,360) like a hue, and Whirl,
// which is unbounded (a full rotation is 360 but
// repeated whirl is cumulative and meaningful past that range).
type Effects struct {
	ColorH   float64
	ColorS   float64
	ColorV   float64
	ColorT   float64 // transparency
	Fisheye  float64
	Whirl    float64
	Pixelate float64
	Mosaic   float64
	Negative float64
}

// Properties is the scalar graphical/physical state of one Entity
// (spec §4.6). Set/Change operations route through this type's methods
// so every caller gets the same clamping and wrapping behavior.
type Properties struct {
	X, Y    float64
	Heading float64 // degrees, [0,360)
	Visible bool
	Size    float64 // percent, >=0
	Pen     Pen
	Audio   Audio
	Effects Effects
}

// DefaultProperties is the state a freshly created sprite starts with:
// centered, facing up (0 degrees, the engine's "north"), visible, at
// 100% size, pen up, full audio, no effects.
func DefaultProperties() Properties {
	return Properties{
		X: 0, Y: 0,
		Heading: 0,
		Visible: true,
		Size:    100,
		Pen:     Pen{Down: false, Size: 1, Hue: 0, Sat: 0, Val: 100, Alpha: 100},
		Audio:   Audio{Tempo: 60, Volume: 100, Balance: 0},
	}
}

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
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

// SetHeading sets heading, wrapping to [0,360).
func (p *Properties) SetHeading(deg float64) { p.Heading = wrapDegrees(deg) }

// ChangeHeading adds delta to heading, wrapping to [0,360).
func (p *Properties) ChangeHeading(delta float64) { p.SetHeading(p.Heading + delta) }

// SetSize sets size, clamped to >=0.
func (p *Properties) SetSize(v float64) { p.Size = clamp(v, 0, math.Inf(1)) }

// ChangeSize adds delta to size, clamped to >=0.
func (p *Properties) ChangeSize(delta float64) { p.SetSize(p.Size + delta) }

// SetPenSize sets the pen's stroke size, clamped to >=0.
func (p *Properties) SetPenSize(v float64) { p.Pen.Size = clamp(v, 0, math.Inf(1)) }

// ChangePenSize adds delta to the pen's stroke size, clamped to >=0.
func (p *Properties) ChangePenSize(delta float64) { p.SetPenSize(p.Pen.Size + delta) }

// SetPenHue sets the pen's hue, wrapping to [0,360).
func (p *Properties) SetPenHue(v float64) { p.Pen.Hue = wrapDegrees(v) }

// ChangePenHue adds delta to the pen's hue, wrapping to [0,360).
func (p *Properties) ChangePenHue(delta float64) { p.SetPenHue(p.Pen.Hue + delta) }

// SetPenSaturation sets the pen's saturation, clamped to [0,100].
func (p *Properties) SetPenSaturation(v float64) { p.Pen.Sat = clamp(v, 0, 100) }

// ChangePenSaturation adds delta to the pen's saturation, clamped to [0,100].
func (p *Properties) ChangePenSaturation(delta float64) { p.SetPenSaturation(p.Pen.Sat + delta) }

// SetPenValue sets the pen's HSV value, clamped to [0,100].
func (p *Properties) SetPenValue(v float64) { p.Pen.Val = clamp(v, 0, 100) }

// ChangePenValue adds delta to the pen's HSV value, clamped to [0,100].
func (p *Properties) ChangePenValue(delta float64) { p.SetPenValue(p.Pen.Val + delta) }

// SetPenAlpha sets the pen's transparency, clamped to [0,100].
func (p *Properties) SetPenAlpha(v float64) { p.Pen.Alpha = clamp(v, 0, 100) }

// ChangePenAlpha adds delta to the pen's transparency, clamped to [0,100].
func (p *Properties) ChangePenAlpha(delta float64) { p.SetPenAlpha(p.Pen.Alpha + delta) }

// PenColorARGB packs the pen's HSVA into a big-endian ARGB integer, the
// representation get_pen_color exposes to scripts (spec §4.6).
func (p *Properties) PenColorARGB() uint32 {
	r, g, b := hsvToRGB(p.Pen.Hue, p.Pen.Sat/100, p.Pen.Val/100)
	a := uint8(clamp(p.Pen.Alpha, 0, 100) / 100 * 255)
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// SetPenColorARGB decomposes a packed ARGB integer into the pen's HSVA
// components (the inverse of PenColorARGB).
func (p *Properties) SetPenColorARGB(argb uint32) {
	a := uint8(argb >> 24)
	r := uint8(argb >> 16)
	g := uint8(argb >> 8)
	b := uint8(argb)
	h, s, v := rgbToHSV(r, g, b)
	p.Pen.Hue = h
	p.Pen.Sat = s * 100
	p.Pen.Val = v * 100
	p.Pen.Alpha = float64(a) / 255 * 100
}

func hsvToRGB(h, s, v float64) (r, g, b uint8) {
	if s <= 0 {
		c := uint8(clamp(v*255, 0, 255))
		return c, c, c
	}
	h = wrapDegrees(h) / 60
	i := int(h)
	f := h - float64(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var rf, gf, bf float64
	switch i % 6 {
	case 0:
		rf, gf, bf = v, t, p
	case 1:
		rf, gf, bf = q, v, p
	case 2:
		rf, gf, bf = p, v, t
	case 3:
		rf, gf, bf = p, q, v
	case 4:
		rf, gf, bf = t, p, v
	default:
		rf, gf, bf = v, p, q
	}
	return uint8(clamp(rf*255, 0, 255)), uint8(clamp(gf*255, 0, 255)), uint8(clamp(bf*255, 0, 255))
}

func rgbToHSV(r, g, b uint8) (h, s, v float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	v = max
	delta := max - min
	if max == 0 {
		return 0, 0, v
	}
	s = delta / max
	if delta == 0 {
		return 0, s, v
	}
	switch max {
	case rf:
		h = math.Mod((gf-bf)/delta, 6)
	case gf:
		h = (bf-rf)/delta + 2
	default:
		h = (rf-gf)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// SetEffect sets one of the nine graphical effect sliders by name,
// clamped to [0,100] except "color", which wraps to [0,360), and
// Whirl, which is unbounded. Unknown names
// are a no-op (callers validate the name against bytecode operands
// before reaching here).
func (p *Properties) SetEffect(name string, v float64) {
	switch name {
	case "color":
		p.Effects.ColorH = wrapDegrees(v)
	case "saturation":
		p.Effects.ColorS = clamp(v, 0, 100)
	case "brightness":
		p.Effects.ColorV = clamp(v, 0, 100)
	case "ghost":
		p.Effects.ColorT = clamp(v, 0, 100)
	case "fisheye":
		p.Effects.Fisheye = clamp(v, 0, 100)
	case "whirl":
		p.Effects.Whirl = v
	case "pixelate":
		p.Effects.Pixelate = clamp(v, 0, 100)
	case "mosaic":
		p.Effects.Mosaic = clamp(v, 0, 100)
	case "negative":
		p.Effects.Negative = clamp(v, 0, 100)
	}
}

// ChangeEffect adds delta to the named effect, applying the same
// clamping as SetEffect.
func (p *Properties) ChangeEffect(name string, delta float64) {
	p.SetEffect(name, p.GetEffect(name)+delta)
}

// GetEffect reads the named effect's current value; unknown names read
// as 0.
func (p *Properties) GetEffect(name string) float64 {
	switch name {
	case "color":
		return p.Effects.ColorH
	case "saturation":
		return p.Effects.ColorS
	case "brightness":
		return p.Effects.ColorV
	case "ghost":
		return p.Effects.ColorT
	case "fisheye":
		return p.Effects.Fisheye
	case "whirl":
		return p.Effects.Whirl
	case "pixelate":
		return p.Effects.Pixelate
	case "mosaic":
		return p.Effects.Mosaic
	case "negative":
		return p.Effects.Negative
	default:
		return 0
	}
}

// ClearEffects resets all nine graphical effects to their defaults
// (spec §4.6).
func (p *Properties) ClearEffects() { p.Effects = Effects{} }

// GotoXY sets both coordinates (spec §4.6).
func (p *Properties) GotoXY(x, y float64) { p.X, p.Y = x, y }

// PointTowardsXY sets heading to face (x,y) from the entity's current
// position, using compass convention: atan2(dx, dy), not atan2(dy, dx)
// (spec §4.6).
func (p *Properties) PointTowardsXY(x, y float64) {
	dx, dy := x-p.X, y-p.Y
	p.SetHeading(math.Atan2(dx, dy) * 180 / math.Pi)
}

// Forward moves the entity d units along its current heading (spec
// §4.6): x += sin(h)*d, y += cos(h)*d, with h in degrees.
func (p *Properties) Forward(d float64) {
	rad := p.Heading * math.Pi / 180
	p.X += math.Sin(rad) * d
	p.Y += math.Cos(rad) * d
}
