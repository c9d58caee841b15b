package sim

import "math"

// Vec2 is a plain 2D vector. All simulation math goes through value
// receivers so intermediate results never alias entity state.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v multiplied by s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Length returns the Euclidean magnitude of v.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// ClampLength rescales v so its magnitude never exceeds max. The zero
// vector is returned unchanged.
func (v Vec2) ClampLength(max float64) Vec2 {
	length := v.Length()
	if length <= max || length == 0 {
		return v
	}
	return v.Scale(max / length)
}

// HeadingVec converts an orientation in radians into a unit direction.
func HeadingVec(heading float64) Vec2 {
	return Vec2{X: math.Cos(heading), Y: math.Sin(heading)}
}

// WrapCoord folds a single coordinate back into [0, extent) and reports
// whether a fold happened. extent must be positive.
func WrapCoord(value, extent float64) (float64, bool) {
	wrapped := false
	for value < 0 {
		value += extent
		wrapped = true
	}
	for value >= extent {
		value -= extent
		wrapped = true
	}
	return value, wrapped
}

// ToroidalDelta returns the shortest signed difference from a to b on a
// wrapping axis of the given extent.
func ToroidalDelta(a, b, extent float64) float64 {
	d := b - a
	half := extent / 2
	if d > half {
		d -= extent
	} else if d < -half {
		d += extent
	}
	return d
}

// ToroidalDistanceSq returns the squared shortest distance between two
// points on the wrapping world plane.
func ToroidalDistanceSq(a, b Vec2, width, height float64) float64 {
	dx := ToroidalDelta(a.X, b.X, width)
	dy := ToroidalDelta(a.Y, b.Y, height)
	return dx*dx + dy*dy
}
