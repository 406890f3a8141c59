// Package geom provides 2D positions, distances, and world bounds shared by
// every simulation component.
package geom

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Vec is a position in world coordinates.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v multiplied by s.
func (v Vec) Scale(s float64) Vec {
	return Vec{X: v.X * s, Y: v.Y * s}
}

// Len returns the Euclidean length of v.
func (v Vec) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Polar returns the point at the given angle (radians) and distance from v.
func (v Vec) Polar(angle, dist float64) Vec {
	return Vec{X: v.X + math.Cos(angle)*dist, Y: v.Y + math.Sin(angle)*dist}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Within reports whether b lies within radius r of a (inclusive).
func Within(a, b Vec, r float64) bool {
	return Distance(a, b) <= r
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Bounds describes the world canvas and the margin movement keeps from its edges.
type Bounds struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Margin float64 `json:"margin" yaml:"margin"`
}

// DefaultBounds is the 1200×800 canvas with a 50-unit margin.
func DefaultBounds() Bounds {
	return Bounds{Width: 1200, Height: 800, Margin: 50}
}

// Clamp moves v inside the margin-inset rectangle.
func (b Bounds) Clamp(v Vec) Vec {
	return Vec{
		X: Clamp(v.X, b.Margin, b.Width-b.Margin),
		Y: Clamp(v.Y, b.Margin, b.Height-b.Margin),
	}
}

// ClampInset moves v inside the rectangle inset by the given amount instead of
// the configured margin.
func (b Bounds) ClampInset(v Vec, inset float64) Vec {
	return Vec{
		X: Clamp(v.X, inset, b.Width-inset),
		Y: Clamp(v.Y, inset, b.Height-inset),
	}
}

// Contains reports whether v lies inside the margin-inset rectangle.
func (b Bounds) Contains(v Vec) bool {
	return v.X >= b.Margin && v.X <= b.Width-b.Margin &&
		v.Y >= b.Margin && v.Y <= b.Height-b.Margin
}
