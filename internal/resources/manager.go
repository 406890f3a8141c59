// Package resources owns the harvestable deposits of a running world and
// mediates every harvest, contribution, and regeneration step.
package resources

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/world"
)

const (
	harvestRange    = 30.0
	contributeRange = 25.0
	baseHarvest     = 15.0
	baseContribute  = 10.0
	contributeCost  = -5.0

	neverHarvestedMinutes = 60.0 // assumed idle time for untouched deposits
	restedAfterMinutes    = 30.0 // idle time after which regeneration speeds up
	restedMultiplier      = 1.5
	depletedGrace         = time.Hour
)

// Contribution is the kind of help an entity gives a deposit.
type Contribution string

const (
	ContributeRestore   Contribution = "restore"
	ContributePurify    Contribution = "purify"
	ContributeFertilize Contribution = "fertilize"
	ContributeProtect   Contribution = "protect"
)

// contributors maps each contribution to the traits that qualify for it.
var contributors = map[Contribution][]string{
	ContributeRestore:   {agents.TraitNurturing, agents.TraitCaretaker},
	ContributePurify:    {agents.TraitPure, agents.TraitClean},
	ContributeFertilize: {agents.TraitGrowth, agents.TraitFertile},
	ContributeProtect:   {agents.TraitGuardian, agents.TraitProtective},
}

// Effects describes what an interaction does to the entity involved.
type Effects struct {
	EnergyGain float64 `json:"energy_gain,omitempty"`
	HealthGain float64 `json:"health_gain,omitempty"`
	MoodChange string  `json:"mood_change,omitempty"`
}

// InteractionResult reports the outcome of a harvest or contribution. Failed
// interactions never modify state.
type InteractionResult struct {
	Success        bool           `json:"success"`
	AmountObtained float64        `json:"amount_obtained"`
	Resource       world.Resource `json:"resource"`
	Effects        *Effects       `json:"effects,omitempty"`
}

// Manager is the authoritative store of deposits.
type Manager struct {
	mu        sync.RWMutex
	resources map[string]*world.Resource
	order     []string
	src       entropy.Source
	now       func() time.Time
}

// NewManager takes ownership of copies of the initial deposits.
func NewManager(initial []world.Resource, src entropy.Source, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		resources: make(map[string]*world.Resource, len(initial)),
		src:       src,
		now:       now,
	}
	for _, r := range initial {
		if r.BaseMaxAmount == 0 {
			r.BaseMaxAmount = r.MaxAmount
		}
		m.insert(r.Clone())
	}
	return m
}

func (m *Manager) insert(r world.Resource) {
	m.resources[r.ID] = &r
	m.order = append(m.order, r.ID)
}

// HarvestResource lets entity take up to desired units from a deposit. It fails
// if the deposit is unknown, more than 30 units away, or empty.
func (m *Manager) HarvestResource(entity agents.Entity, id string, desired float64) InteractionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[id]
	if !ok {
		return InteractionResult{}
	}
	if geom.Distance(entity.Position, r.Position) > harvestRange || r.Amount <= 0 || desired <= 0 {
		return InteractionResult{Resource: r.Clone()}
	}

	amount := math.Min(desired, math.Min(maxHarvest(&entity, r.Type), r.Amount))
	now := m.now().UTC()

	r.Amount = math.Max(0, r.Amount-amount)
	r.LastHarvested = &now
	r.HarvestedBy = append(r.HarvestedBy, entity.ID)

	return InteractionResult{
		Success:        true,
		AmountObtained: amount,
		Resource:       r.Clone(),
		Effects:        harvestEffects(r.Type, amount),
	}
}

// maxHarvest is the most an entity can take in one harvest.
func maxHarvest(e *agents.Entity, t world.ResourceType) float64 {
	amount := baseHarvest
	if e.HasTrait(agents.TraitEfficient) {
		amount *= 1.3
	}
	if e.HasTrait(agents.TraitGentle) {
		amount *= 0.8
	}
	if e.HasTrait(agents.TraitGreedy) {
		amount *= 1.5
	}
	if t == world.ResourceMineral && e.HasTrait(agents.TraitStrong) {
		amount *= 1.4
	}
	if t == world.ResourceFood && e.HasTrait(agents.TraitForager) {
		amount *= 1.6
	}
	return math.Floor(amount)
}

func harvestEffects(t world.ResourceType, amount float64) *Effects {
	switch t {
	case world.ResourceFood:
		return &Effects{EnergyGain: amount * 0.5, HealthGain: amount * 0.3, MoodChange: "satisfied"}
	case world.ResourceWater:
		return &Effects{EnergyGain: amount * 0.3, HealthGain: amount * 0.4, MoodChange: "refreshed"}
	case world.ResourceEnergy:
		return &Effects{EnergyGain: amount * 0.8, MoodChange: "energized"}
	default:
		// Minerals are building material, not nourishment.
		return &Effects{MoodChange: "accomplished"}
	}
}

// ContributeToResource lets a qualified entity within 25 units help a deposit.
// The entity pays a flat energy cost on success.
func (m *Manager) ContributeToResource(entity agents.Entity, id string, kind Contribution) InteractionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[id]
	if !ok {
		return InteractionResult{}
	}
	if geom.Distance(entity.Position, r.Position) > contributeRange || !canContribute(&entity, kind) {
		return InteractionResult{Resource: r.Clone()}
	}

	amount := baseContribute
	if entity.HasTrait(agents.TraitDedicated) {
		amount *= 1.5
	}
	if entity.HasTrait(agents.TraitLazy) {
		amount *= 0.7
	}

	switch kind {
	case ContributeRestore:
		r.Amount = math.Min(r.MaxAmount, r.Amount+amount)
	case ContributePurify:
		r.RegenerationRate = math.Min(1.0, r.RegenerationRate+amount*0.01)
	case ContributeFertilize:
		r.MaxAmount = math.Min(r.BaseMaxAmount*1.5, r.MaxAmount+amount)
	case ContributeProtect:
		// Protection has no mechanical effect yet.
	}

	return InteractionResult{
		Success:  true,
		Resource: r.Clone(),
		Effects:  &Effects{EnergyGain: contributeCost, MoodChange: "satisfied"},
	}
}

func canContribute(e *agents.Entity, kind Contribution) bool {
	for _, trait := range contributors[kind] {
		if e.HasTrait(trait) {
			return true
		}
	}
	return false
}

// RegenerateResources advances every deposit below capacity by one step and
// returns copies of the deposits that changed. Deposits left alone for more
// than 30 minutes regenerate 1.5× faster.
func (m *Manager) RegenerateResources() []world.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var updated []world.Resource
	for _, id := range m.order {
		r := m.resources[id]
		if r.Amount >= r.MaxAmount {
			continue
		}
		idle := neverHarvestedMinutes
		if r.LastHarvested != nil {
			idle = now.Sub(*r.LastHarvested).Minutes()
		}
		multiplier := 1.0
		if idle > restedAfterMinutes {
			multiplier = restedMultiplier
		}
		r.Amount = math.Min(r.MaxAmount, r.Amount+r.RegenerationRate*multiplier)
		updated = append(updated, r.Clone())
	}
	return updated
}

// CleanupDepletedResources removes deposits that have been empty for more than
// an hour since their last harvest. Returns the removed IDs.
func (m *Manager) CleanupDepletedResources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed []string
	kept := m.order[:0]
	for _, id := range m.order {
		r := m.resources[id]
		if r.Amount == 0 && r.LastHarvested != nil && now.Sub(*r.LastHarvested) > depletedGrace {
			delete(m.resources, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// typeDefaults holds creation parameters for dynamically created deposits.
var typeDefaults = map[world.ResourceType]struct {
	Initial, Max, Rate float64
}{
	world.ResourceMineral: {80, 150, 0.05},
	world.ResourceFood:    {60, 120, 0.3},
	world.ResourceWater:   {100, 200, 0.4},
	world.ResourceEnergy:  {40, 100, 0.1},
}

// CreateResource adds a new deposit of type t at pos. If createdBy is set, the
// creator is recorded as its first harvester.
func (m *Manager) CreateResource(t world.ResourceType, pos geom.Vec, createdBy *agents.Entity) world.Resource {
	d := typeDefaults[t]
	r := world.Resource{
		ID:               uuid.NewString(),
		Type:             t,
		Position:         pos,
		Amount:           geom.Clamp(d.Initial+m.src.Float64()*20-10, 0, d.Max),
		MaxAmount:        d.Max,
		BaseMaxAmount:    d.Max,
		RegenerationRate: d.Rate,
		HarvestedBy:      []string{},
	}
	if createdBy != nil {
		r.HarvestedBy = append(r.HarvestedBy, createdBy.ID)
	}

	m.mu.Lock()
	m.insert(r.Clone())
	m.mu.Unlock()
	return r
}

// FindResourcesNear returns non-empty deposits within radius of pos, optionally
// filtered to one type.
func (m *Manager) FindResourcesNear(pos geom.Vec, radius float64, t world.ResourceType) []world.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []world.Resource
	for _, id := range m.order {
		r := m.resources[id]
		if r.Amount <= 0 || !geom.Within(pos, r.Position, radius) {
			continue
		}
		if t != "" && r.Type != t {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

// Scarcity returns, per type, the worst depletion ratio (1 - amount/max) of
// any deposit of that type.
func (m *Manager) Scarcity() map[world.ResourceType]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[world.ResourceType]float64, len(world.ResourceTypes))
	for _, t := range world.ResourceTypes {
		out[t] = 0
	}
	for _, r := range m.resources {
		if r.MaxAmount <= 0 {
			continue
		}
		out[r.Type] = math.Max(out[r.Type], 1-r.Amount/r.MaxAmount)
	}
	return out
}

// Resource returns a copy of one deposit.
func (m *Manager) Resource(id string) (world.Resource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return world.Resource{}, false
	}
	return r.Clone(), true
}

// AllResources returns copies of every deposit in insertion order.
func (m *Manager) AllResources() []world.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]world.Resource, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.resources[id].Clone())
	}
	return out
}

// Len returns the number of deposits.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.resources)
}
