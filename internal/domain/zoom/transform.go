// Package zoom holds the interaction model of the diagram zoom widget:
// wheel zoom, drag-to-pan, reset, a single shared fullscreen modal and the
// bounded rescanning that discovers diagrams rendered after page load.
//
// The package owns state and rules only. A host (browser bridge, test
// double) implements Element, Overlay and Body and forwards input events.
// The gateway binary does not drive it; the expected host is a js/wasm
// bridge loaded by the built documentation pages.
package zoom

import "math"

// Scale limits and wheel factors.
const (
	MinScale = 0.5
	MaxScale = 5.0

	// ZoomOutFactor applies to a wheel event scrolling down (deltaY > 0).
	ZoomOutFactor = 0.9
	// ZoomInFactor applies to a wheel event scrolling up (deltaY < 0).
	ZoomInFactor = 1.1
)

// Transform is the scale and translation applied to a diagram.
type Transform struct {
	Scale float64
	X     float64
	Y     float64
}

// Identity is the untransformed state.
var Identity = Transform{Scale: 1}

// IsIdentity reports whether the transform leaves the diagram untouched.
func (t Transform) IsIdentity() bool {
	return t.Scale == 1 && t.X == 0 && t.Y == 0
}

// Wheel returns the transform after one wheel event. A zero delta is a no-op.
func (t Transform) Wheel(deltaY float64) Transform {
	switch {
	case deltaY > 0:
		t.Scale = clampScale(t.Scale * ZoomOutFactor)
	case deltaY < 0:
		t.Scale = clampScale(t.Scale * ZoomInFactor)
	}
	return t
}

// Translate returns the transform moved by (dx, dy).
func (t Transform) Translate(dx, dy float64) Transform {
	t.X += dx
	t.Y += dy
	return t
}

func clampScale(s float64) float64 {
	// Rounding keeps repeated multiplications from drifting off the limits.
	s = math.Round(s*1e9) / 1e9
	return math.Max(MinScale, math.Min(MaxScale, s))
}
