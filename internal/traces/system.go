package traces

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
)

const (
	// DefaultCapacity bounds the live trace set.
	DefaultCapacity = 500

	maxIntensity      = 100.0
	minIntensity      = 5.0
	pathReuseRadius   = 20.0
	pathBoost         = 5.0
	territoryRadius   = 50.0
	territoryMaxReach = 80.0
)

// System is the sole owner of live traces.
type System struct {
	mu       sync.RWMutex
	traces   map[string]*Trace
	order    []string // creation order, oldest first
	capacity int
	src      entropy.Source
	now      func() time.Time
}

// New creates an empty trace system. A capacity of zero or less uses
// DefaultCapacity.
func New(capacity int, src entropy.Source, now func() time.Time) *System {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &System{
		traces:   make(map[string]*Trace),
		capacity: capacity,
		src:      src,
		now:      now,
	}
}

// CreateTrace records a new mark of type t left by entity at pos. Energetic
// entities leave marks 1.3× stronger, calm ones 0.8×.
func (s *System) CreateTrace(t Type, pos geom.Vec, entity agents.Entity, props map[string]any) Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(t, pos, &entity, props).Clone()
}

func (s *System) create(t Type, pos geom.Vec, entity *agents.Entity, props map[string]any) *Trace {
	p := profiles[t]
	intensity := p.Intensity
	if entity.HasTrait(agents.TraitEnergetic) {
		intensity *= 1.3
	}
	if entity.HasTrait(agents.TraitCalm) {
		intensity *= 0.8
	}
	intensity = math.Min(maxIntensity, intensity)

	properties := make(map[string]any, len(props)+2)
	for k, v := range props {
		properties[k] = v
	}
	properties["entityName"] = entity.Name
	properties["entitySpecies"] = entity.Species

	now := s.now().UTC()
	tr := &Trace{
		ID:            uuid.NewString(),
		Type:          t,
		Position:      pos,
		Radius:        p.Radius,
		Intensity:     intensity,
		BaseIntensity: intensity,
		EntityID:      entity.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(p.Lifespan),
		Properties:    properties,
	}
	s.traces[tr.ID] = tr
	s.order = append(s.order, tr.ID)
	s.evict()
	return tr
}

// evict drops the oldest traces until the set fits its capacity.
func (s *System) evict() {
	if len(s.order) <= s.capacity {
		return
	}
	excess := len(s.order) - s.capacity
	for _, id := range s.order[:excess] {
		delete(s.traces, id)
	}
	s.order = append(s.order[:0], s.order[excess:]...)
}

// CreateMovementTrace leaves a footprint where a move started and wears a path
// where it ended. A path the same entity already left within 20 units is
// strengthened instead of duplicated. Returns the footprint and the new or
// reinforced path.
func (s *System) CreateMovementTrace(entity agents.Entity, from, to geom.Vec) []Trace {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := to.Sub(from)
	footprint := s.create(Footprint, from, &entity, map[string]any{
		"direction": math.Atan2(delta.Y, delta.X),
		"speed":     delta.Len(),
	})
	out := []Trace{footprint.Clone()}

	if path := s.nearest(Path, entity.ID, to, pathReuseRadius); path != nil {
		path.BaseIntensity = math.Min(maxIntensity, path.BaseIntensity+pathBoost)
		path.Intensity = math.Min(maxIntensity, path.Intensity+pathBoost)
		usage, _ := path.Properties["usage"].(int)
		path.Properties["usage"] = usage + 1
		return append(out, path.Clone())
	}
	path := s.create(Path, to, &entity, map[string]any{
		"pathSegment": true,
		"usage":       1,
	})
	return append(out, path.Clone())
}

// nearest returns the closest live trace of type t from entityID strictly
// closer than r to pos, or nil.
func (s *System) nearest(t Type, entityID string, pos geom.Vec, r float64) *Trace {
	var best *Trace
	bestDist := math.Inf(1)
	for _, id := range s.order {
		tr := s.traces[id]
		if tr.Type != t || tr.EntityID != entityID {
			continue
		}
		if d := geom.Distance(tr.Position, pos); d < r && d < bestDist {
			best, bestDist = tr, d
		}
	}
	return best
}

// CreateTerritoryTrace marks or strengthens an entity's territory. An existing
// territory of the same entity within 50 units grows by duration×0.1 intensity
// (capped at 100) and 2 units of radius (capped at 80).
func (s *System) CreateTerritoryTrace(entity agents.Entity, pos geom.Vec, duration float64) Trace {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr := s.nearest(Territory, entity.ID, pos, territoryRadius); tr != nil {
		boost := duration * 0.1
		tr.BaseIntensity = math.Min(maxIntensity, tr.BaseIntensity+boost)
		tr.Intensity = math.Min(maxIntensity, tr.Intensity+boost)
		tr.Radius = math.Min(territoryMaxReach, tr.Radius+2)
		return tr.Clone()
	}
	return s.create(Territory, pos, &entity, map[string]any{
		"duration":      duration,
		"establishedAt": s.now().UTC(),
	}).Clone()
}

// CreateNestTrace builds a nest, or a burrow for underground dwellers.
func (s *System) CreateNestTrace(entity agents.Entity, pos geom.Vec) Trace {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Nest
	if entity.HasTrait(agents.TraitUnderground) {
		t = Burrow
	}
	capacity := 1
	if entity.HasTrait(agents.TraitSocial) {
		capacity += 2
	}
	materials := []string{"twigs", "leaves", "moss"}
	if entity.HasTrait(agents.TraitCreative) {
		materials = append(materials, "flowers", "shiny objects")
	}
	return s.create(t, pos, &entity, map[string]any{
		"comfort":   entropy.Range(s.src, 70, 100),
		"capacity":  capacity,
		"materials": materials,
	}).Clone()
}

// CreateScentTrace leaves an emotional scent mark.
func (s *System) CreateScentTrace(entity agents.Entity, pos geom.Vec, emotion string) Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(Scent, pos, &entity, map[string]any{
		"emotion":       emotion,
		"personality":   append([]string(nil), entity.Personality.Traits...),
		"pheromoneType": emotion + "_" + strings.ToLower(entity.Species),
	}).Clone()
}

// UpdateTraces runs one decay pass. Expired traces are dropped; every other
// trace loses ageMinutes×fadeRate of its remaining intensity, and any trace at
// or below intensity 5 is dropped. Returns the survivors.
func (s *System) UpdateTraces() []Trace {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Trace, 0, len(s.order))
	kept := s.order[:0]
	for _, id := range s.order {
		tr := s.traces[id]
		if !now.Before(tr.ExpiresAt) {
			delete(s.traces, id)
			continue
		}
		age := now.Sub(tr.CreatedAt).Minutes()
		tr.Intensity = math.Max(0, tr.Intensity-age*profiles[tr.Type].FadeRate)
		if tr.Intensity <= minIntensity {
			delete(s.traces, id)
			continue
		}
		kept = append(kept, id)
		out = append(out, tr.Clone())
	}
	s.order = kept
	return out
}

// AllTraces returns every live trace, oldest first.
func (s *System) AllTraces() []Trace {
	return s.filter(func(*Trace) bool { return true })
}

// TracesInArea returns traces whose position lies within r of center.
func (s *System) TracesInArea(center geom.Vec, r float64) []Trace {
	return s.filter(func(t *Trace) bool { return geom.Within(center, t.Position, r) })
}

// TracesFromEntity returns traces left by one entity.
func (s *System) TracesFromEntity(entityID string) []Trace {
	return s.filter(func(t *Trace) bool { return t.EntityID == entityID })
}

func (s *System) filter(keep func(*Trace) bool) []Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Trace
	for _, id := range s.order {
		if tr := s.traces[id]; keep(tr) {
			out = append(out, tr.Clone())
		}
	}
	return out
}

// Len returns the number of live traces.
func (s *System) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}

// MeanIntensity returns the average intensity per trace type. Types with no
// live traces are omitted.
func (s *System) MeanIntensity() map[Type]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := make(map[Type]float64)
	counts := make(map[Type]int)
	for _, tr := range s.traces {
		sums[tr.Type] += tr.Intensity
		counts[tr.Type]++
	}
	for t, n := range counts {
		sums[t] /= float64(n)
	}
	return sums
}
