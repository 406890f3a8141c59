package traces

import (
	"math"

	"github.com/google/uuid"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/world"
)

// Interaction is something an entity does to a biome element.
type Interaction string

const (
	InteractPlant   Interaction = "plant"
	InteractHarvest Interaction = "harvest"
	InteractWater   Interaction = "water"
	InteractRest    Interaction = "rest"
)

// Outcome is what an interaction left behind. Change must be applied to the
// element through the biome store; NewElements must be added to it.
type Outcome struct {
	Traces      []Trace
	Change      world.ElementChange
	NewElements []world.BiomeElement
}

// ProcessInteraction records the marks of entity acting on element and
// computes the resulting element change. Only nurturing entities can plant,
// and only trees and flowers respond to watering.
func (s *System) ProcessInteraction(entity agents.Entity, element world.BiomeElement, kind Interaction) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Outcome
	switch kind {
	case InteractPlant:
		if !entity.HasTrait(agents.TraitNurturing) {
			break
		}
		tr := s.create(Footprint, element.Position, &entity, map[string]any{
			"action":    "planting",
			"plantType": string(world.ElementFlower),
		})
		out.Traces = append(out.Traces, tr.Clone())
		out.NewElements = append(out.NewElements, s.sprout(element, &entity))

	case InteractHarvest:
		tr := s.create(Footprint, element.Position, &entity, map[string]any{
			"action":        "harvesting",
			"harvestedType": string(element.Type),
		})
		out.Traces = append(out.Traces, tr.Clone())
		health := math.Max(0, element.Health-20)
		out.Change = world.ElementChange{Health: &health, ModifiedBy: entity.ID}

	case InteractWater:
		if element.Type != world.ElementTree && element.Type != world.ElementFlower {
			break
		}
		tr := s.create(Footprint, element.Position, &entity, map[string]any{
			"action": "watering",
			"care":   true,
		})
		out.Traces = append(out.Traces, tr.Clone())
		health := math.Min(100, element.Health+15)
		out.Change = world.ElementChange{Health: &health, ModifiedBy: entity.ID}

	case InteractRest:
		quality := "moderate"
		if element.Type == world.ElementTree {
			quality = "good"
		}
		tr := s.create(Scent, element.Position, &entity, map[string]any{
			"emotion":     "peaceful",
			"restQuality": quality,
		})
		out.Traces = append(out.Traces, tr.Clone())
	}
	return out
}

// sprout creates a young flower 15–35 units from the parent element.
func (s *System) sprout(parent world.BiomeElement, entity *agents.Entity) world.BiomeElement {
	now := s.now().UTC()
	angle := s.src.Float64() * 2 * math.Pi
	offset := entropy.Range(s.src, 15, 35)
	return world.BiomeElement{
		ID:           uuid.NewString(),
		Type:         world.ElementFlower,
		Position:     parent.Position.Polar(angle, offset),
		Size:         entropy.Range(s.src, 0.3, 0.7),
		Health:       entropy.Range(s.src, 80, 100),
		Variant:      s.src.Intn(3),
		CreatedAt:    now,
		LastModified: now,
		ModifiedBy:   entity.ID,
	}
}
