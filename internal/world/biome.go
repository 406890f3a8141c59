package world

import (
	"slices"
	"sync"
	"time"

	"github.com/talgya/mini-ecosystem/internal/geom"
)

// witherGrace is how long an element may sit at zero health before removal.
const witherGrace = time.Hour

// Biome owns the zones and flora of a running world. It is the only mutator of
// its elements; readers receive copies.
type Biome struct {
	mu       sync.RWMutex
	zones    []BiomeZone
	elements map[string]*BiomeElement
	order    []string // element IDs in insertion order
	now      func() time.Time
}

// NewBiome takes ownership of the zones and elements of a generated ecosystem.
func NewBiome(eco Ecosystem, now func() time.Time) *Biome {
	if now == nil {
		now = time.Now
	}
	b := &Biome{
		elements: make(map[string]*BiomeElement, len(eco.Elements)),
		now:      now,
	}
	for _, z := range eco.Zones {
		z.Elements = slices.Clone(z.Elements)
		b.zones = append(b.zones, z)
	}
	for _, el := range eco.Elements {
		b.insert(el)
	}
	return b
}

func (b *Biome) insert(el BiomeElement) {
	e := el
	b.elements[e.ID] = &e
	b.order = append(b.order, e.ID)
}

// Zones returns a copy of every zone.
func (b *Biome) Zones() []BiomeZone {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BiomeZone, len(b.zones))
	for i, z := range b.zones {
		out[i] = z
		out[i].Elements = slices.Clone(z.Elements)
	}
	return out
}

// Elements returns a copy of every element in insertion order.
func (b *Biome) Elements() []BiomeElement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BiomeElement, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.elements[id])
	}
	return out
}

// Element returns a copy of one element.
func (b *Biome) Element(id string) (BiomeElement, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	el, ok := b.elements[id]
	if !ok {
		return BiomeElement{}, false
	}
	return *el, true
}

// ZoneAt returns the first zone containing p.
func (b *Biome) ZoneAt(p geom.Vec) (BiomeZone, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	z := zoneContaining(b.zones, p)
	if z == nil {
		return BiomeZone{}, false
	}
	return *z, true
}

// ElementsNear returns elements within radius of p, nearest first.
func (b *Biome) ElementsNear(p geom.Vec, radius float64) []BiomeElement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []BiomeElement
	for _, id := range b.order {
		el := b.elements[id]
		if geom.Within(p, el.Position, radius) {
			out = append(out, *el)
		}
	}
	slices.SortStableFunc(out, func(x, y BiomeElement) int {
		dx, dy := geom.Distance(p, x.Position), geom.Distance(p, y.Position)
		switch {
		case dx < dy:
			return -1
		case dx > dy:
			return 1
		}
		return 0
	})
	return out
}

// Grow applies one growth step to every element and returns how many grew.
func (b *Biome) Grow() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := make([]BiomeElement, 0, len(b.order))
	for _, id := range b.order {
		current = append(current, *b.elements[id])
	}
	grown := GrowBiomeElements(current, b.zones, b.now().UTC())

	changed := 0
	for i := range grown {
		if grown[i].Health != current[i].Health {
			changed++
		}
		*b.elements[grown[i].ID] = grown[i]
	}
	return changed
}

// Apply merges an interaction change into an element. Health is clamped to
// [0, 100]. Reports false if the element does not exist.
func (b *Biome) Apply(id string, change ElementChange) (BiomeElement, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.elements[id]
	if !ok {
		return BiomeElement{}, false
	}
	if change.Empty() {
		return *el, true
	}
	el.Health = geom.Clamp(*change.Health, 0, 100)
	el.LastModified = b.now().UTC()
	if change.ModifiedBy != "" {
		el.ModifiedBy = change.ModifiedBy
	}
	return *el, true
}

// Add inserts a dynamically created element, such as a planted flower. It is
// attached to the zone that contains it, if any.
func (b *Biome) Add(el BiomeElement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.elements[el.ID]; exists {
		return
	}
	b.insert(el)
	if z := zoneContaining(b.zones, el.Position); z != nil {
		z.Elements = append(z.Elements, el.ID)
	}
}

// CleanupWithered removes elements that have sat at zero health for longer
// than an hour since their last modification. Returns the removed IDs.
func (b *Biome) CleanupWithered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var removed []string
	kept := b.order[:0]
	for _, id := range b.order {
		el := b.elements[id]
		if el.Health <= 0 && now.Sub(el.LastModified) > witherGrace {
			delete(b.elements, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept

	if len(removed) > 0 {
		for i := range b.zones {
			b.zones[i].Elements = slices.DeleteFunc(b.zones[i].Elements, func(id string) bool {
				return slices.Contains(removed, id)
			})
		}
	}
	return removed
}

// AverageHealth returns the mean health of all elements of the given type, or
// 0 if there are none.
func (b *Biome) AverageHealth(t ElementType) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sum, n := 0.0, 0
	for _, el := range b.elements {
		if el.Type == t {
			sum += el.Health
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
