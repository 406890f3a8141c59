// Package behavior drives every entity's autonomous life: choosing a status
// from personality-weighted odds, moving, and forming relationships. A single
// shared schedule tracks each entity's next due time, so the number of timers
// does not grow with the population.
package behavior

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
)

// Config tunes the behavior engine.
type Config struct {
	BaseInterval    time.Duration `yaml:"base_interval"`
	ProximityRadius float64       `yaml:"proximity_radius"`
	MaxRelations    int           `yaml:"max_new_relations"`
	Bounds          geom.Bounds   `yaml:"-"`
}

// DefaultConfig returns a 3s base cadence and a 150-unit neighborhood.
func DefaultConfig() Config {
	return Config{
		BaseInterval:    3 * time.Second,
		ProximityRadius: 150,
		MaxRelations:    2,
		Bounds:          geom.DefaultBounds(),
	}
}

// Interval returns how long an entity with the given energy waits between
// ticks: base at full energy, twice base at zero.
func (c Config) Interval(energy float64) time.Duration {
	energy = geom.Clamp(energy, 0, 100)
	return c.BaseInterval + time.Duration(float64(c.BaseInterval)*(100-energy)/100)
}

type tracked struct {
	entity agents.Entity
	gen    uint64
}

// Engine schedules and evaluates entity behavior.
type Engine struct {
	cfg Config
	src entropy.Source
	now func() time.Time

	mu       sync.Mutex
	entities map[string]*tracked
	queue    schedule
	gen      uint64
	running  bool
	onUpdate func(agents.Entity)
}

// New creates a stopped engine.
func New(cfg Config, src entropy.Source, now func() time.Time) *Engine {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = DefaultConfig().BaseInterval
	}
	if cfg.ProximityRadius <= 0 {
		cfg.ProximityRadius = DefaultConfig().ProximityRadius
	}
	if cfg.MaxRelations <= 0 {
		cfg.MaxRelations = DefaultConfig().MaxRelations
	}
	if cfg.Bounds == (geom.Bounds{}) {
		cfg.Bounds = geom.DefaultBounds()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		src:      src,
		now:      now,
		entities: make(map[string]*tracked),
	}
}

// Start begins tracking entities and schedules the first tick of every
// tracked entity, including those added earlier or kept across a Stop.
// onUpdate receives a snapshot of every entity whose status, position, or
// relationships change.
func (e *Engine) Start(entities []agents.Entity, onUpdate func(agents.Entity)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = onUpdate
	e.running = true
	now := e.now()
	for _, ent := range entities {
		e.track(ent, now)
	}

	e.queue = nil
	for id, t := range e.entities {
		e.gen++
		t.gen = e.gen
		e.queue.push(slot{id: id, due: now.Add(e.cfg.Interval(t.entity.Personality.Energy)), gen: t.gen})
	}
	slog.Info("behavior engine started", "entities", len(e.entities))
}

// Stop cancels every pending tick. Tracked entities remain readable.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.queue = nil
}

// Add starts tracking one entity, replacing any entity with the same ID.
func (e *Engine) Add(ent agents.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.track(ent, e.now())
}

// Remove stops tracking an entity. Reports whether it was tracked.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[id]; !ok {
		return false
	}
	delete(e.entities, id)
	return true
}

// Update replaces a tracked entity with a manually edited version and
// reschedules it for its possibly changed energy. Reports false if the entity
// is not tracked.
func (e *Engine) Update(ent agents.Entity) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[ent.ID]; !ok {
		return false
	}
	e.track(ent, e.now())
	return true
}

func (e *Engine) track(ent agents.Entity, now time.Time) {
	e.gen++
	e.entities[ent.ID] = &tracked{entity: ent.Clone(), gen: e.gen}
	if e.running {
		e.queue.push(slot{id: ent.ID, due: now.Add(e.cfg.Interval(ent.Personality.Energy)), gen: e.gen})
	}
}

// Entities returns snapshots of every tracked entity.
func (e *Engine) Entities() []agents.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]agents.Entity, 0, len(e.entities))
	for _, t := range e.entities {
		out = append(out, t.entity.Clone())
	}
	slices.SortFunc(out, func(a, b agents.Entity) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Entity returns a snapshot of one tracked entity.
func (e *Engine) Entity(id string) (agents.Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.entities[id]
	if !ok {
		return agents.Entity{}, false
	}
	return t.entity.Clone(), true
}

// Len returns the number of tracked entities.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entities)
}

// Step runs every tick due at or before now, earliest first, and returns how
// many ticks ran. Each entity is rescheduled one interval after its due time,
// or one interval after now if it has fallen an interval or more behind.
// Update callbacks run after the engine lock is released.
func (e *Engine) Step(now time.Time) int {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return 0
	}

	var changed []agents.Entity
	ran := 0
	for {
		next, ok := e.queue.peek()
		if !ok || next.due.After(now) {
			break
		}
		e.queue.pop()
		t, ok := e.entities[next.id]
		if !ok || t.gen != next.gen {
			continue
		}
		ran++
		if updated, mutated := e.tick(t.entity, now); mutated {
			t.entity = updated
			changed = append(changed, updated.Clone())
		}

		interval := e.cfg.Interval(t.entity.Personality.Energy)
		due := next.due.Add(interval)
		if now.Sub(next.due) >= interval {
			due = now.Add(interval)
		}
		e.queue.push(slot{id: next.id, due: due, gen: t.gen})
	}
	onUpdate := e.onUpdate
	e.mu.Unlock()

	if onUpdate != nil {
		for _, ent := range changed {
			onUpdate(ent)
		}
	}
	return ran
}

// tick evaluates one entity against the current population. It reports
// whether anything observable changed.
func (e *Engine) tick(ent agents.Entity, now time.Time) (agents.Entity, bool) {
	neighbors := e.neighbors(&ent)

	weights := ComputeWeights(ent.Personality.Traits, len(neighbors))
	status := weights.Choose(e.src.Float64())

	next := ent.Clone()
	next.Status = status
	if status == agents.StatusSocializing {
		for i := 0; i < len(neighbors) && i < e.cfg.MaxRelations; i++ {
			if !next.IsRelatedTo(neighbors[i].ID) {
				next.Relationships = append(next.Relationships, neighbors[i].ID)
			}
		}
	}
	next.Position = Move(&ent, status, neighbors, e.cfg.Bounds, e.src)

	if next.Status == ent.Status && next.Position == ent.Position &&
		len(next.Relationships) == len(ent.Relationships) {
		return ent, false
	}
	next.LastActive = now.UTC()
	return next, true
}

// neighbors returns the other entities within the proximity radius of ent,
// nearest first.
func (e *Engine) neighbors(ent *agents.Entity) []agents.Entity {
	var out []agents.Entity
	for id, t := range e.entities {
		if id == ent.ID || !geom.Within(ent.Position, t.entity.Position, e.cfg.ProximityRadius) {
			continue
		}
		out = append(out, t.entity)
	}
	slices.SortFunc(out, func(a, b agents.Entity) int {
		da, db := geom.Distance(ent.Position, a.Position), geom.Distance(ent.Position, b.Position)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
