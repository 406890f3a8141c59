// Package traces records the transient marks entities leave on the world:
// footprints, worn paths, nests, territories, and scent. Every trace decays
// with age and is dropped once it expires or fades out.
package traces

import (
	"maps"
	"time"

	"github.com/talgya/mini-ecosystem/internal/geom"
)

// Type is the kind of mark.
type Type string

const (
	Footprint Type = "footprint"
	Path      Type = "path"
	Nest      Type = "nest"
	Burrow    Type = "burrow"
	Territory Type = "territory"
	Scent     Type = "scent"
)

// Types lists every trace type.
var Types = []Type{Footprint, Path, Nest, Burrow, Territory, Scent}

// profile holds the fixed per-type parameters.
type profile struct {
	Radius    float64
	Intensity float64
	Lifespan  time.Duration
	FadeRate  float64 // intensity lost per minute of age
}

var profiles = map[Type]profile{
	Footprint: {Radius: 8, Intensity: 30, Lifespan: 30 * time.Minute, FadeRate: 1.0},
	Path:      {Radius: 12, Intensity: 50, Lifespan: 120 * time.Minute, FadeRate: 0.3},
	Nest:      {Radius: 25, Intensity: 80, Lifespan: 1440 * time.Minute, FadeRate: 0.1},
	Burrow:    {Radius: 20, Intensity: 85, Lifespan: 2880 * time.Minute, FadeRate: 0.1},
	Territory: {Radius: 40, Intensity: 60, Lifespan: 720 * time.Minute, FadeRate: 0.5},
	Scent:     {Radius: 30, Intensity: 40, Lifespan: 60 * time.Minute, FadeRate: 0.8},
}

// Trace is one mark left by an entity. Intensity drops on every update pass;
// BaseIntensity records the strength it was laid down with plus any
// reinforcement.
type Trace struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Position      geom.Vec       `json:"position"`
	Radius        float64        `json:"radius"`
	Intensity     float64        `json:"intensity"`
	BaseIntensity float64        `json:"base_intensity"`
	EntityID      string         `json:"entity_id"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Properties    map[string]any `json:"properties"`
}

// Clone returns a copy with its own property map. Property values are shared;
// they are treated as immutable once set.
func (t Trace) Clone() Trace {
	t.Properties = maps.Clone(t.Properties)
	return t
}
