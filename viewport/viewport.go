// Package viewport maps between screen-space pointer coordinates and
// world-space drawing coordinates.
package viewport

import (
	"math"

	"drawing-board/shape"
)

// Zoom limits.
const (
	MinScale = 0.1
	MaxScale = 5.0

	// Wheel zoom steps.
	ZoomOutFactor = 0.9
	ZoomInFactor  = 1.1
)

// Viewport is a uniform scale followed by a translation:
// screen = world*Scale + Offset.
type Viewport struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Identity returns the viewport with scale 1 and no offset.
func Identity() Viewport {
	return Viewport{Scale: 1}
}

// Offset returns the translation as a point.
func (v Viewport) Offset() shape.Point {
	return shape.Point{X: v.OffsetX, Y: v.OffsetY}
}

// WorldToScreen maps a world point onto the surface.
func (v Viewport) WorldToScreen(p shape.Point) shape.Point {
	return p.Scale(v.scale()).Add(v.Offset())
}

// ScreenToWorld is the inverse of WorldToScreen.
func (v Viewport) ScreenToWorld(p shape.Point) shape.Point {
	return p.Sub(v.Offset()).Scale(1 / v.scale())
}

// scale guards against a zero-value Viewport being used before Identity.
func (v Viewport) scale() float64 {
	return Clamp(v.Scale)
}

// Zoom scales by factor about the screen point m, keeping the world point
// under m fixed. The resulting scale is clamped to [MinScale, MaxScale].
func (v Viewport) Zoom(m shape.Point, factor float64) Viewport {
	s := v.scale()
	next := Clamp(s * factor)
	if next == s {
		return Viewport{Scale: s, OffsetX: v.OffsetX, OffsetY: v.OffsetY}
	}
	ratio := next / s
	return Viewport{
		Scale:   next,
		OffsetX: m.X - (m.X-v.OffsetX)*ratio,
		OffsetY: m.Y - (m.Y-v.OffsetY)*ratio,
	}
}

// Wheel applies one wheel notch at m: positive deltaY zooms out.
func (v Viewport) Wheel(m shape.Point, deltaY float64) Viewport {
	return v.Zoom(m, WheelFactor(deltaY))
}

// WheelFactor is the zoom factor for one wheel notch.
func WheelFactor(deltaY float64) float64 {
	if deltaY > 0 {
		return ZoomOutFactor
	}
	return ZoomInFactor
}

// Pan translates the offset by a screen-space delta.
func (v Viewport) Pan(d shape.Point) Viewport {
	v.OffsetX += d.X
	v.OffsetY += d.Y
	return v
}

// Clamp bounds a scale to [MinScale, MaxScale]. NaN and non-positive
// values map to MinScale.
func Clamp(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return MinScale
	}
	return math.Max(MinScale, math.Min(MaxScale, s))
}
