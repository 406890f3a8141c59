// World generation: biome zones, their flora, and resource deposits.
// Placement is uniform random; element variants come from a simplex noise
// field so neighboring flora share a sub-type.
package world

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
)

const (
	zoneMargin       = 100 // zone centers stay this far from the canvas edge
	elementInset     = 20  // elements are clamped this far inside the canvas
	scatteredCount   = 20  // elements placed independently of any zone
	elementSpread    = 0.8 // fraction of zone radius elements spawn within
	resourceSpread   = 0.6 // fraction of zone radius deposits spawn within
	variantFrequency = 0.01
)

// baseFertility per zone type; generated zones vary ±10 around it.
var baseFertility = map[BiomeType]float64{
	BiomeForest:  80,
	BiomeMeadow:  90,
	BiomeWetland: 70,
	BiomeRocky:   30,
	BiomeDesert:  20,
}

type weightedElement struct {
	Type ElementType
	P    float64
}

// elementOdds is the categorical distribution of flora per zone type.
var elementOdds = map[BiomeType][]weightedElement{
	BiomeForest:  {{ElementTree, 0.6}, {ElementRock, 0.2}, {ElementFlower, 0.1}, {ElementGrass, 0.1}, {ElementWater, 0}},
	BiomeMeadow:  {{ElementTree, 0.1}, {ElementRock, 0.1}, {ElementFlower, 0.4}, {ElementGrass, 0.4}, {ElementWater, 0}},
	BiomeRocky:   {{ElementTree, 0.1}, {ElementRock, 0.7}, {ElementFlower, 0.1}, {ElementGrass, 0.1}, {ElementWater, 0}},
	BiomeWetland: {{ElementTree, 0.2}, {ElementRock, 0.1}, {ElementFlower, 0.2}, {ElementGrass, 0.3}, {ElementWater, 0.2}},
	BiomeDesert:  {{ElementTree, 0.05}, {ElementRock, 0.5}, {ElementFlower, 0.1}, {ElementGrass, 0.05}, {ElementWater, 0.3}},
}

// resourcePreference lists the deposit types a zone type can hold.
var resourcePreference = map[BiomeType][]ResourceType{
	BiomeForest:  {ResourceFood, ResourceWater},
	BiomeMeadow:  {ResourceFood, ResourceEnergy},
	BiomeRocky:   {ResourceMineral, ResourceEnergy},
	BiomeWetland: {ResourceWater, ResourceFood},
	BiomeDesert:  {ResourceMineral, ResourceEnergy},
}

var scatteredTypes = []ElementType{ElementTree, ElementRock, ElementFlower, ElementGrass}

// Generator builds the initial ecosystem for a canvas of the given bounds.
type Generator struct {
	bounds   geom.Bounds
	src      entropy.Source
	variants opensimplex.Noise
	now      func() time.Time
}

// NewGenerator creates a generator. The seed drives the variant noise field;
// placement draws from src.
func NewGenerator(bounds geom.Bounds, src entropy.Source, seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		bounds:   bounds,
		src:      src,
		variants: opensimplex.NewNormalized(seed),
		now:      now,
	}
}

// GenerateInitialEcosystem creates 4–6 zones, their flora and deposits, and
// a scattering of flora outside any zone.
func (g *Generator) GenerateInitialEcosystem() Ecosystem {
	zones := g.generateZones()

	var elements []BiomeElement
	for i := range zones {
		zoneElements := g.generateZoneElements(&zones[i])
		elements = append(elements, zoneElements...)
	}
	elements = append(elements, g.generateScattered(scatteredCount)...)

	var resources []Resource
	for i := range zones {
		resources = append(resources, g.generateZoneResources(&zones[i])...)
	}

	return Ecosystem{Zones: zones, Elements: elements, Resources: resources}
}

func (g *Generator) generateZones() []BiomeZone {
	count := 4 + g.src.Intn(3)
	zones := make([]BiomeZone, 0, count)

	for i := 0; i < count; i++ {
		biome := entropy.Choose(g.src, BiomeTypes)
		zones = append(zones, BiomeZone{
			ID:   uuid.NewString(),
			Type: biome,
			Center: geom.Vec{
				X: zoneMargin + g.src.Float64()*(g.bounds.Width-2*zoneMargin),
				Y: zoneMargin + g.src.Float64()*(g.bounds.Height-2*zoneMargin),
			},
			Radius:    entropy.Range(g.src, 80, 200),
			Density:   entropy.Range(g.src, 0.3, 0.8),
			Fertility: baseFertility[biome] + g.src.Float64()*20 - 10,
			Elements:  []string{},
		})
	}
	return zones
}

func (g *Generator) generateZoneElements(zone *BiomeZone) []BiomeElement {
	count := int(math.Floor(zone.Density * 15))
	elements := make([]BiomeElement, 0, count)
	now := g.now().UTC()

	for i := 0; i < count; i++ {
		angle := g.src.Float64() * 2 * math.Pi
		dist := g.src.Float64() * zone.Radius * elementSpread
		pos := g.bounds.ClampInset(zone.Center.Polar(angle, dist), elementInset)

		el := BiomeElement{
			ID:           uuid.NewString(),
			Type:         g.elementTypeFor(zone.Type),
			Position:     pos,
			Size:         entropy.Range(g.src, 0.5, 2.0),
			Health:       entropy.Range(g.src, 60, 100),
			Variant:      g.variantAt(pos),
			CreatedAt:    now,
			LastModified: now,
		}
		elements = append(elements, el)
		zone.Elements = append(zone.Elements, el.ID)
	}
	return elements
}

func (g *Generator) generateScattered(count int) []BiomeElement {
	elements := make([]BiomeElement, 0, count)
	now := g.now().UTC()

	for i := 0; i < count; i++ {
		pos := geom.Vec{
			X: elementInset + g.src.Float64()*(g.bounds.Width-2*elementInset),
			Y: elementInset + g.src.Float64()*(g.bounds.Height-2*elementInset),
		}
		elements = append(elements, BiomeElement{
			ID:           uuid.NewString(),
			Type:         entropy.Choose(g.src, scatteredTypes),
			Position:     pos,
			Size:         entropy.Range(g.src, 0.3, 1.3),
			Health:       entropy.Range(g.src, 40, 100),
			Variant:      g.variantAt(pos),
			CreatedAt:    now,
			LastModified: now,
		})
	}
	return elements
}

func (g *Generator) generateZoneResources(zone *BiomeZone) []Resource {
	count := 1 + g.src.Intn(2)
	resources := make([]Resource, 0, count)

	for i := 0; i < count; i++ {
		angle := g.src.Float64() * 2 * math.Pi
		dist := g.src.Float64() * zone.Radius * resourceSpread
		maxAmount := entropy.Range(g.src, 50, 150)

		resources = append(resources, Resource{
			ID:               uuid.NewString(),
			Type:             entropy.Choose(g.src, resourcePreference[zone.Type]),
			Position:         zone.Center.Polar(angle, dist),
			Amount:           maxAmount * entropy.Range(g.src, 0.7, 1.0),
			MaxAmount:        maxAmount,
			BaseMaxAmount:    maxAmount,
			RegenerationRate: entropy.Range(g.src, 0.1, 0.3),
			HarvestedBy:      []string{},
		})
	}
	return resources
}

// elementTypeFor draws from the zone type's categorical distribution.
func (g *Generator) elementTypeFor(biome BiomeType) ElementType {
	r := g.src.Float64()
	cumulative := 0.0
	for _, w := range elementOdds[biome] {
		cumulative += w.P
		if r < cumulative {
			return w.Type
		}
	}
	return ElementGrass
}

// variantAt samples the noise field; nearby positions tend to agree.
func (g *Generator) variantAt(p geom.Vec) int {
	v := int(g.variants.Eval2(p.X*variantFrequency, p.Y*variantFrequency) * 3)
	return geom.Clamp(v, 0, 2)
}

// RegenerateResources returns copies of resources with one regeneration step
// applied: amount grows by the rate, capped at max. It never mutates its input
// and is not the authoritative regeneration path; resources.Manager is.
func RegenerateResources(resources []Resource) []Resource {
	out := make([]Resource, len(resources))
	for i, r := range resources {
		out[i] = r.Clone()
		if r.Amount < r.MaxAmount {
			out[i].Amount = math.Min(r.MaxAmount, r.Amount+r.RegenerationRate)
		}
	}
	return out
}

// GrowBiomeElements returns copies of elements with one growth step applied.
// Trees below full health inside a zone (the first zone containing them) gain
// fertility/100 × 0.5 health, capped at 100. Everything else is unchanged.
func GrowBiomeElements(elements []BiomeElement, zones []BiomeZone, now time.Time) []BiomeElement {
	out := make([]BiomeElement, len(elements))
	for i, el := range elements {
		out[i] = el
		if el.Type != ElementTree || el.Health >= 100 {
			continue
		}
		zone := zoneContaining(zones, el.Position)
		if zone == nil {
			continue
		}
		out[i].Health = math.Min(100, el.Health+zone.Fertility/100*0.5)
		out[i].LastModified = now
	}
	return out
}

func zoneContaining(zones []BiomeZone, p geom.Vec) *BiomeZone {
	for i := range zones {
		if zones[i].Contains(p) {
			return &zones[i]
		}
	}
	return nil
}

// TypeCounts summarizes element type distribution.
func TypeCounts(elements []BiomeElement) map[ElementType]int {
	counts := make(map[ElementType]int)
	for _, el := range elements {
		counts[el.Type]++
	}
	return counts
}

// String returns a short description of the ecosystem.
func (e Ecosystem) String() string {
	return fmt.Sprintf("Ecosystem(zones=%d, elements=%d, resources=%d)",
		len(e.Zones), len(e.Elements), len(e.Resources))
}
