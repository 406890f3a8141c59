// Package world provides the biome zones, flora, and resource deposits that make
// up the ecosystem's terrain, plus the procedural generator that seeds them.
package world

import (
	"slices"
	"time"

	"github.com/talgya/mini-ecosystem/internal/geom"
)

// BiomeType is the terrain type of a zone.
type BiomeType string

const (
	BiomeForest  BiomeType = "forest"
	BiomeMeadow  BiomeType = "meadow"
	BiomeRocky   BiomeType = "rocky"
	BiomeWetland BiomeType = "wetland"
	BiomeDesert  BiomeType = "desert"
)

// BiomeTypes lists the zone types the generator draws from. Desert zones keep
// their fertility and flora tables but only appear when built by hand.
var BiomeTypes = []BiomeType{BiomeForest, BiomeMeadow, BiomeRocky, BiomeWetland}

// ElementType is the kind of flora or terrain object.
type ElementType string

const (
	ElementTree   ElementType = "tree"
	ElementRock   ElementType = "rock"
	ElementWater  ElementType = "water"
	ElementFlower ElementType = "flower"
	ElementGrass  ElementType = "grass"
)

// ResourceType is the kind of harvestable deposit.
type ResourceType string

const (
	ResourceMineral ResourceType = "mineral"
	ResourceFood    ResourceType = "food"
	ResourceWater   ResourceType = "water"
	ResourceEnergy  ResourceType = "energy"
)

// ResourceTypes lists every resource type.
var ResourceTypes = []ResourceType{ResourceMineral, ResourceFood, ResourceWater, ResourceEnergy}

// BiomeZone is a circular region of one terrain type. Fertility and density
// never change after generation.
type BiomeZone struct {
	ID        string    `json:"id"`
	Type      BiomeType `json:"type"`
	Center    geom.Vec  `json:"center"`
	Radius    float64   `json:"radius"`
	Density   float64   `json:"density"`   // 0–1, controls element count
	Fertility float64   `json:"fertility"` // 0–100, controls growth rate
	Elements  []string  `json:"elements"`
}

// Contains reports whether p lies inside the zone.
func (z *BiomeZone) Contains(p geom.Vec) bool {
	return geom.Within(z.Center, p, z.Radius)
}

// BiomeElement is a tree, rock, pool, flower, or tuft of grass.
type BiomeElement struct {
	ID           string      `json:"id"`
	Type         ElementType `json:"type"`
	Position     geom.Vec    `json:"position"`
	Size         float64     `json:"size"`
	Health       float64     `json:"health"`  // 0–100
	Variant      int         `json:"variant"` // 0–2, cosmetic sub-type
	CreatedAt    time.Time   `json:"created_at"`
	LastModified time.Time   `json:"last_modified"`
	ModifiedBy   string      `json:"modified_by,omitempty"`
}

// ElementChange is a partial update produced by an entity interacting with an
// element. Nil Health leaves health untouched.
type ElementChange struct {
	Health     *float64
	ModifiedBy string
}

// Empty reports whether the change would modify nothing.
func (c ElementChange) Empty() bool {
	return c.Health == nil
}

// Resource is a harvestable deposit. Amount always stays within [0, MaxAmount].
type Resource struct {
	ID               string       `json:"id"`
	Type             ResourceType `json:"type"`
	Position         geom.Vec     `json:"position"`
	Amount           float64      `json:"amount"`
	MaxAmount        float64      `json:"max_amount"`
	BaseMaxAmount    float64      `json:"base_max_amount"` // capacity at creation; fertilizing caps at 1.5×
	RegenerationRate float64      `json:"regeneration_rate"`
	LastHarvested    *time.Time   `json:"last_harvested,omitempty"`
	HarvestedBy      []string     `json:"harvested_by"`
}

// Clone returns a copy that shares no memory with r.
func (r Resource) Clone() Resource {
	r.HarvestedBy = slices.Clone(r.HarvestedBy)
	if r.LastHarvested != nil {
		t := *r.LastHarvested
		r.LastHarvested = &t
	}
	return r
}

// Ecosystem is the complete generated starting world.
type Ecosystem struct {
	Zones     []BiomeZone    `json:"zones"`
	Elements  []BiomeElement `json:"elements"`
	Resources []Resource     `json:"resources"`
}
