// Package agents provides the entity data model, the trait vocabulary, schema
// validation of generated attributes, and the spawner that turns a donation
// into a creature.
package agents

import (
	"slices"
	"time"

	"github.com/talgya/mini-ecosystem/internal/geom"
)

// Status is an entity's current behavior state.
type Status string

const (
	StatusExploring   Status = "exploring"
	StatusBuilding    Status = "building"
	StatusSocializing Status = "socializing"
	StatusResting     Status = "resting"
)

// Statuses lists every behavior state in the fixed enumeration order used by
// weighted selection.
var Statuses = [...]Status{StatusExploring, StatusBuilding, StatusSocializing, StatusResting}

// Valid reports whether s is a known behavior state.
func (s Status) Valid() bool {
	return slices.Contains(Statuses[:], s)
}

// Shape is the cosmetic body outline of an entity.
type Shape string

const (
	ShapeCircle   Shape = "circle"
	ShapeTriangle Shape = "triangle"
	ShapeHexagon  Shape = "hexagon"
	ShapeDiamond  Shape = "diamond"
	ShapeStar     Shape = "star"
)

// Shapes lists every valid shape.
var Shapes = []Shape{ShapeCircle, ShapeTriangle, ShapeHexagon, ShapeDiamond, ShapeStar}

// Personality drives behavior weighting and scheduling cadence.
type Personality struct {
	Traits []string `json:"traits"`
	Energy float64  `json:"energy"` // 0–100
}

// Appearance is cosmetic only.
type Appearance struct {
	Color    string   `json:"color"` // #RRGGBB
	Size     float64  `json:"size"`  // 0.5–2.0
	Shape    Shape    `json:"shape"`
	Features []string `json:"features"`
}

// Entity is an autonomous creature in the ecosystem.
type Entity struct {
	ID            string      `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	DonorEmail    string      `json:"donor_email" db:"donor_email"`
	Species       string      `json:"species" db:"species"`
	Personality   Personality `json:"personality"`
	Appearance    Appearance  `json:"appearance"`
	Position      geom.Vec    `json:"position"`
	Status        Status      `json:"status" db:"status"`
	Relationships []string    `json:"relationships"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	LastActive    time.Time   `json:"last_active" db:"last_active"`
}

// HasTrait reports whether the entity's personality carries trait.
func (e *Entity) HasTrait(trait string) bool {
	return e.Personality.HasTrait(trait)
}

// HasTrait reports whether the personality carries trait.
func (p Personality) HasTrait(trait string) bool {
	return slices.Contains(p.Traits, trait)
}

// Clone returns a deep copy so callers never share slices with the owner.
func (e Entity) Clone() Entity {
	e.Personality.Traits = slices.Clone(e.Personality.Traits)
	e.Appearance.Features = slices.Clone(e.Appearance.Features)
	e.Relationships = slices.Clone(e.Relationships)
	return e
}

// IsRelatedTo reports whether id is in the entity's relationship set.
func (e *Entity) IsRelatedTo(id string) bool {
	return slices.Contains(e.Relationships, id)
}
