package geom

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b Vec
		want float64
	}{
		{Vec{0, 0}, Vec{3, 4}, 5},
		{Vec{10, 10}, Vec{10, 10}, 0},
		{Vec{-1, 0}, Vec{1, 0}, 2},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Distance(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWithinIsInclusive(t *testing.T) {
	if !Within(Vec{0, 0}, Vec{150, 0}, 150) {
		t.Error("expected point exactly on the radius to be within")
	}
	if Within(Vec{0, 0}, Vec{150.01, 0}, 150) {
		t.Error("expected point beyond the radius to be outside")
	}
}

func TestBoundsClamp(t *testing.T) {
	b := DefaultBounds()
	tests := []struct {
		in, want Vec
	}{
		{Vec{0, 0}, Vec{50, 50}},
		{Vec{2000, 2000}, Vec{1150, 750}},
		{Vec{600, 400}, Vec{600, 400}},
		{Vec{-300, 760}, Vec{50, 750}},
	}
	for _, tt := range tests {
		got := b.Clamp(tt.in)
		if got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if !b.Contains(got) {
			t.Errorf("clamped %v not contained in bounds", got)
		}
	}
}

func TestPolar(t *testing.T) {
	p := Vec{100, 100}.Polar(math.Pi/2, 50)
	if math.Abs(p.X-100) > 1e-9 || math.Abs(p.Y-150) > 1e-9 {
		t.Errorf("Polar = %v, want (100,150)", p)
	}
}

func TestGenericClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 {
		t.Error("int clamp high")
	}
	if Clamp(-2.5, -1.0, 1.0) != -1.0 {
		t.Error("float clamp low")
	}
}
