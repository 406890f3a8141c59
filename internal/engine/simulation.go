// Simulation ties together all ecosystem components and runs them each tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/behavior"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/resources"
	"github.com/talgya/mini-ecosystem/internal/traces"
	"github.com/talgya/mini-ecosystem/internal/world"
)

// ErrUnknownEntity is returned when an operation names an entity the
// simulation does not track.
var ErrUnknownEntity = errors.New("unknown entity")

// Periods sets how often each background job runs, in simulated time.
type Periods struct {
	Regeneration time.Duration `yaml:"regeneration"`
	TraceDecay   time.Duration `yaml:"trace_decay"`
	Growth       time.Duration `yaml:"growth"`
	Cleanup      time.Duration `yaml:"cleanup"`
	Report       time.Duration `yaml:"report"`
}

// DefaultPeriods returns the standard job cadence.
func DefaultPeriods() Periods {
	return Periods{
		Regeneration: time.Minute,
		TraceDecay:   10 * time.Second,
		Growth:       30 * time.Second,
		Cleanup:      5 * time.Minute,
		Report:       10 * time.Minute,
	}
}

// Options configures a Simulation.
type Options struct {
	Behavior      behavior.Config
	TraceCapacity int
	Periods       Periods

	NestChance     float64 // chance per building tick of leaving a nest
	GrazeChance    float64 // chance per exploring tick of grazing nearby flora
	ForageRadius   float64 // resting entities harvest deposits this close, explorers graze
	ForageAmount   float64
	TendRadius     float64 // building entities tend flora this close
	TerritoryScale float64 // territory duration per second of rest
}

// DefaultOptions returns the standard simulation tuning.
func DefaultOptions() Options {
	return Options{
		Behavior:       behavior.DefaultConfig(),
		TraceCapacity:  traces.DefaultCapacity,
		Periods:        DefaultPeriods(),
		NestChance:     0.1,
		GrazeChance:    0.25,
		ForageRadius:   30,
		ForageAmount:   10,
		TendRadius:     40,
		TerritoryScale: 1,
	}
}

// Simulation holds the complete world state and wires components together.
// Each component owns and guards its own collection.
type Simulation struct {
	Biome     *world.Biome
	Resources *resources.Manager
	Traces    *traces.System
	Behavior  *behavior.Engine

	// Spawner creates entities for donations. Optional.
	Spawner *agents.Spawner

	// OnEntityUpdate receives every changed entity, for persistence.
	OnEntityUpdate func(agents.Entity)
	// OnEntityRemoved receives the ID of every removed entity.
	OnEntityRemoved func(id string)

	opts   Options
	src    entropy.Source
	now    func() time.Time
	events *eventLog

	mu        sync.Mutex
	positions map[string]geom.Vec // last position seen per entity
	lastTick  uint64
	Stats     SimStats
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Entities      int                       `json:"entities"`
	ByStatus      map[agents.Status]int     `json:"by_status"`
	AvgEnergy     float64                   `json:"avg_energy"`
	Zones         int                       `json:"zones"`
	Elements      int                       `json:"elements"`
	Flora         map[world.ElementType]int `json:"flora"`
	TreeHealth    float64                   `json:"tree_health"`
	FlowerHealth  float64                   `json:"flower_health"`
	Resources     int                       `json:"resources"`
	Traces        int                       `json:"traces"`
	Intensity     map[traces.Type]float64   `json:"trace_intensity"`
	Harvests      int                       `json:"harvests"`
	Contributions int                       `json:"contributions"`
	Planted       int                       `json:"planted"`
	Watered       int                       `json:"watered"`
	Grazed        int                       `json:"grazed"`
	Nests         int                       `json:"nests"`
}

// NewSimulation creates a Simulation over a generated ecosystem. now should
// be the engine's simulated clock.
func NewSimulation(eco world.Ecosystem, opts Options, src entropy.Source, now func() time.Time) *Simulation {
	if now == nil {
		now = time.Now
	}
	return &Simulation{
		Biome:     world.NewBiome(eco, now),
		Resources: resources.NewManager(eco.Resources, src, now),
		Traces:    traces.New(opts.TraceCapacity, src, now),
		Behavior:  behavior.New(opts.Behavior, src, now),
		opts:      opts,
		src:       src,
		now:       now,
		events:    newEventLog(),
		positions: make(map[string]geom.Vec),
		Stats:     SimStats{ByStatus: map[agents.Status]int{}},
	}
}

// Attach wires the simulation's jobs to an engine.
func (s *Simulation) Attach(eng *Engine) {
	eng.OnTick = s.TickBehavior
	p := s.opts.Periods
	eng.Every("regenerate", p.Regeneration, s.RegenerateResources)
	eng.Every("trace-decay", p.TraceDecay, s.DecayTraces)
	eng.Every("growth", p.Growth, s.GrowBiome)
	eng.Every("cleanup", p.Cleanup, s.Cleanup)
	eng.Every("report", p.Report, s.Report)
}

// Start begins autonomous behavior for the given entities.
func (s *Simulation) Start(entities []agents.Entity) {
	s.mu.Lock()
	for _, e := range entities {
		s.positions[e.ID] = e.Position
	}
	s.mu.Unlock()
	s.Behavior.Start(entities, s.handleEntityUpdate)
	s.updateStats()
}

// Stop cancels all pending behavior ticks.
func (s *Simulation) Stop() {
	s.Behavior.Stop()
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// TickBehavior runs every tick: every entity that is due acts.
func (s *Simulation) TickBehavior(tick uint64, now time.Time) {
	s.mu.Lock()
	s.lastTick = tick
	s.mu.Unlock()
	s.Behavior.Step(now)
}

// handleEntityUpdate records the consequences of an entity changing on its
// own: the marks it leaves, what it forages or plants, and an event.
func (s *Simulation) handleEntityUpdate(e agents.Entity) {
	s.mu.Lock()
	from, known := s.positions[e.ID]
	s.positions[e.ID] = e.Position
	s.mu.Unlock()

	if known && from != e.Position {
		s.Traces.CreateMovementTrace(e, from, e.Position)
	}

	switch e.Status {
	case agents.StatusExploring:
		if s.src.Float64() < s.opts.GrazeChance {
			s.graze(e)
		}
	case agents.StatusResting:
		rest := s.opts.Behavior.Interval(e.Personality.Energy).Seconds() * s.opts.TerritoryScale
		s.Traces.CreateTerritoryTrace(e, e.Position, rest)
		e = s.forage(e)
		if el, ok := s.nearestFlora(e.Position, s.opts.TendRadius, world.ElementTree, world.ElementFlower); ok {
			s.Traces.ProcessInteraction(e, el, traces.InteractRest)
		}
	case agents.StatusBuilding:
		if s.src.Float64() < s.opts.NestChance {
			s.Traces.CreateNestTrace(e, e.Position)
			s.bump(func(st *SimStats) { st.Nests++ })
			s.record(EventNest, e.ID, fmt.Sprintf("%s built a nest", e.Name))
		}
		s.tend(e)
	case agents.StatusSocializing:
		s.Traces.CreateScentTrace(e, e.Position, "friendly")
	}

	s.record(EventMove, e.ID, fmt.Sprintf("%s is %s", e.Name, e.Status))
	if s.OnEntityUpdate != nil {
		s.OnEntityUpdate(e)
	}
}

// forage lets a resting entity harvest the nearest deposit within reach. The
// harvest's energy effect is applied to the entity.
func (s *Simulation) forage(e agents.Entity) agents.Entity {
	nearby := s.Resources.FindResourcesNear(e.Position, s.opts.ForageRadius, "")
	if len(nearby) == 0 {
		return e
	}
	nearest := nearby[0]
	for _, r := range nearby[1:] {
		if geom.Distance(e.Position, r.Position) < geom.Distance(e.Position, nearest.Position) {
			nearest = r
		}
	}
	res := s.Resources.HarvestResource(e, nearest.ID, s.opts.ForageAmount)
	if !res.Success {
		return e
	}
	s.bump(func(st *SimStats) { st.Harvests++ })
	s.record(EventHarvest, e.ID, fmt.Sprintf("%s foraged %.0f %s", e.Name, res.AmountObtained, nearest.Type))
	return s.applyEffects(e, res.Effects)
}

// graze lets an explorer nibble the nearest flower or grass within forage
// reach.
func (s *Simulation) graze(e agents.Entity) {
	el, ok := s.nearestFlora(e.Position, s.opts.ForageRadius, world.ElementFlower, world.ElementGrass)
	if !ok {
		return
	}
	out := s.Traces.ProcessInteraction(e, el, traces.InteractHarvest)
	if _, ok := s.Biome.Apply(el.ID, out.Change); !ok {
		return
	}
	s.bump(func(st *SimStats) { st.Grazed++ })
	s.record(EventGraze, e.ID, fmt.Sprintf("%s grazed on some %s", e.Name, el.Type))
}

// tend has a builder water the nearest tree or flower. Nurturing builders
// also plant a flower beside it.
func (s *Simulation) tend(e agents.Entity) {
	el, ok := s.nearestFlora(e.Position, s.opts.TendRadius, world.ElementTree, world.ElementFlower)
	if !ok {
		return
	}
	out := s.Traces.ProcessInteraction(e, el, traces.InteractWater)
	if watered, ok := s.Biome.Apply(el.ID, out.Change); ok && watered.Health != el.Health {
		s.bump(func(st *SimStats) { st.Watered++ })
		s.record(EventWater, e.ID, fmt.Sprintf("%s watered a %s", e.Name, el.Type))
	}

	out = s.Traces.ProcessInteraction(e, el, traces.InteractPlant)
	for _, sprout := range out.NewElements {
		s.Biome.Add(sprout)
	}
	if len(out.NewElements) > 0 {
		s.bump(func(st *SimStats) { st.Planted += len(out.NewElements) })
		s.record(EventPlant, e.ID, fmt.Sprintf("%s planted a flower near a %s", e.Name, el.Type))
	}
}

// nearestFlora returns the closest element within r of pos whose type is one
// of types.
func (s *Simulation) nearestFlora(pos geom.Vec, r float64, types ...world.ElementType) (world.BiomeElement, bool) {
	for _, el := range s.Biome.ElementsNear(pos, r) {
		if slices.Contains(types, el.Type) {
			return el, true
		}
	}
	return world.BiomeElement{}, false
}

// applyEffects adjusts an entity's energy by an interaction's effect and
// pushes the change into the behavior engine.
func (s *Simulation) applyEffects(e agents.Entity, fx *resources.Effects) agents.Entity {
	if fx == nil || fx.EnergyGain == 0 {
		return e
	}
	e.Personality.Energy = math.Round(geom.Clamp(e.Personality.Energy+fx.EnergyGain, 0, 100))
	s.Behavior.Update(e)
	return e
}

// Spawn creates a new entity for a donation and starts its behavior.
func (s *Simulation) Spawn(ctx context.Context, donorEmail string) (agents.Entity, error) {
	if s.Spawner == nil {
		return agents.Entity{}, errors.New("spawner not configured")
	}
	e := s.Spawner.GenerateUniqueEntity(ctx, donorEmail)
	s.AddEntity(e)
	return e, nil
}

// AddEntity starts tracking an entity.
func (s *Simulation) AddEntity(e agents.Entity) {
	s.mu.Lock()
	s.positions[e.ID] = e.Position
	s.mu.Unlock()
	s.Behavior.Add(e)
	s.record(EventSpawn, e.ID, fmt.Sprintf("%s the %s has arrived", e.Name, e.Species))
}

// RemoveEntity stops tracking an entity.
func (s *Simulation) RemoveEntity(id string) bool {
	e, ok := s.Behavior.Entity(id)
	if !ok || !s.Behavior.Remove(id) {
		return false
	}
	s.mu.Lock()
	delete(s.positions, id)
	s.mu.Unlock()
	s.record(EventRemove, id, fmt.Sprintf("%s has left the ecosystem", e.Name))
	if s.OnEntityRemoved != nil {
		s.OnEntityRemoved(id)
	}
	return true
}

// UpdateEntity applies a manual edit to a tracked entity.
func (s *Simulation) UpdateEntity(e agents.Entity) error {
	if !s.Behavior.Update(e) {
		return fmt.Errorf("update %s: %w", e.ID, ErrUnknownEntity)
	}
	s.mu.Lock()
	s.positions[e.ID] = e.Position
	s.mu.Unlock()
	s.record(EventUpdate, e.ID, fmt.Sprintf("%s was updated", e.Name))
	if s.OnEntityUpdate != nil {
		s.OnEntityUpdate(e)
	}
	return nil
}

// Harvest has a tracked entity harvest a deposit on request.
func (s *Simulation) Harvest(entityID, resourceID string, desired float64) (resources.InteractionResult, error) {
	e, ok := s.Behavior.Entity(entityID)
	if !ok {
		return resources.InteractionResult{}, fmt.Errorf("harvest: %w", ErrUnknownEntity)
	}
	res := s.Resources.HarvestResource(e, resourceID, desired)
	if res.Success {
		s.bump(func(st *SimStats) { st.Harvests++ })
		s.record(EventHarvest, e.ID, fmt.Sprintf("%s harvested %.0f %s", e.Name, res.AmountObtained, res.Resource.Type))
		e = s.applyEffects(e, res.Effects)
		if s.OnEntityUpdate != nil {
			s.OnEntityUpdate(e)
		}
	}
	return res, nil
}

// Contribute has a tracked entity help a deposit on request.
func (s *Simulation) Contribute(entityID, resourceID string, kind resources.Contribution) (resources.InteractionResult, error) {
	e, ok := s.Behavior.Entity(entityID)
	if !ok {
		return resources.InteractionResult{}, fmt.Errorf("contribute: %w", ErrUnknownEntity)
	}
	res := s.Resources.ContributeToResource(e, resourceID, kind)
	if res.Success {
		s.bump(func(st *SimStats) { st.Contributions++ })
		s.record(EventContribute, e.ID, fmt.Sprintf("%s helped %s a %s deposit", e.Name, kind, res.Resource.Type))
		e = s.applyEffects(e, res.Effects)
		if s.OnEntityUpdate != nil {
			s.OnEntityUpdate(e)
		}
	}
	return res, nil
}

// RegenerateResources runs one regeneration step on every deposit.
func (s *Simulation) RegenerateResources(time.Time) {
	updated := s.Resources.RegenerateResources()
	slog.Debug("resources regenerated", "updated", len(updated))
}

// DecayTraces runs one trace decay pass.
func (s *Simulation) DecayTraces(time.Time) {
	before := s.Traces.Len()
	live := s.Traces.UpdateTraces()
	slog.Debug("traces decayed", "live", len(live), "faded", before-len(live))
}

// GrowBiome runs one flora growth step.
func (s *Simulation) GrowBiome(time.Time) {
	grown := s.Biome.Grow()
	slog.Debug("biome grew", "elements", grown)
}

// Cleanup removes depleted deposits and withered flora.
func (s *Simulation) Cleanup(time.Time) {
	depleted := s.Resources.CleanupDepletedResources()
	withered := s.Biome.CleanupWithered()
	if len(depleted)+len(withered) == 0 {
		return
	}
	s.record(EventCleanup, "", fmt.Sprintf("%d depleted deposits and %d withered plants cleared",
		len(depleted), len(withered)))
}

// Report logs a periodic summary of the ecosystem.
func (s *Simulation) Report(now time.Time) {
	st := s.updateStats()
	slog.Info("ecosystem report",
		"tick", humanize.Comma(int64(s.CurrentTick())),
		"time", now.Format(time.DateTime),
		"entities", st.Entities,
		"avg_energy", fmt.Sprintf("%.1f", st.AvgEnergy),
		"elements", humanize.Comma(int64(st.Elements)),
		"trees", st.Flora[world.ElementTree],
		"tree_health", fmt.Sprintf("%.1f", st.TreeHealth),
		"flower_health", fmt.Sprintf("%.1f", st.FlowerHealth),
		"resources", st.Resources,
		"traces", humanize.Comma(int64(st.Traces)),
		"path_intensity", fmt.Sprintf("%.1f", st.Intensity[traces.Path]),
		"harvests", humanize.Comma(int64(st.Harvests)),
		"planted", st.Planted,
		"watered", st.Watered,
		"grazed", st.Grazed,
		"exploring", st.ByStatus[agents.StatusExploring],
		"building", st.ByStatus[agents.StatusBuilding],
		"socializing", st.ByStatus[agents.StatusSocializing],
		"resting", st.ByStatus[agents.StatusResting],
	)
}

// updateStats recomputes the population counters and returns a copy.
func (s *Simulation) updateStats() SimStats {
	entities := s.Behavior.Entities()
	byStatus := make(map[agents.Status]int, len(agents.Statuses))
	energy := 0.0
	for _, e := range entities {
		byStatus[e.Status]++
		energy += e.Personality.Energy
	}
	zones, elements := len(s.Biome.Zones()), s.Biome.Elements()
	trees, flowers := s.Biome.AverageHealth(world.ElementTree), s.Biome.AverageHealth(world.ElementFlower)
	deposits, marks := s.Resources.Len(), s.Traces.Len()
	intensity := s.Traces.MeanIntensity()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats.Entities = len(entities)
	s.Stats.ByStatus = byStatus
	s.Stats.AvgEnergy = 0
	if len(entities) > 0 {
		s.Stats.AvgEnergy = energy / float64(len(entities))
	}
	s.Stats.Zones = zones
	s.Stats.Elements = len(elements)
	s.Stats.Flora = world.TypeCounts(elements)
	s.Stats.TreeHealth = trees
	s.Stats.FlowerHealth = flowers
	s.Stats.Resources = deposits
	s.Stats.Traces = marks
	s.Stats.Intensity = intensity
	return s.Stats
}

// Status returns fresh aggregate statistics.
func (s *Simulation) Status() SimStats {
	return s.updateStats()
}

func (s *Simulation) bump(fn func(*SimStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.Stats)
}

func (s *Simulation) record(category, entityID, description string) {
	s.events.add(Event{
		Tick:        s.CurrentTick(),
		Time:        s.now().UTC(),
		Category:    category,
		EntityID:    entityID,
		Description: description,
	})
}

// Events returns up to limit recent events, oldest first.
func (s *Simulation) Events(limit int) []Event {
	return s.events.recent(limit)
}

// DrainEvents returns the events recorded since the previous call, for
// persistence.
func (s *Simulation) DrainEvents() []Event {
	return s.events.drain()
}

// Subscribe returns a channel of new events and a function that cancels the
// subscription. Slow subscribers miss events rather than block the world.
func (s *Simulation) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}
