// Entity spawning: a validated donation becomes a creature. The oracle is
// asked first; anything it returns that fails the schema is replaced by the
// fallback generator so a donation always yields an entity.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
)

// Oracle produces creature attributes from an external generator.
type Oracle interface {
	Generate(ctx context.Context) (GeneratedAttributes, error)
}

// FallbackOracle generates simple valid creatures from a random source.
// Given the same source state it produces the same attributes.
type FallbackOracle struct {
	Src entropy.Source
}

var (
	fallbackColors   = []string{"#FF5733", "#33FF57", "#3357FF", "#FF33F7", "#F7FF33", "#33F7FF"}
	fallbackTraits   = []string{TraitCurious, TraitSocial, TraitCreative, TraitEnergetic}
	fallbackFeatures = []string{"glowing_eyes", "energy_aura"}
)

// Generate never fails.
func (f FallbackOracle) Generate(context.Context) (GeneratedAttributes, error) {
	src := f.Src
	return GeneratedAttributes{
		Name:    fmt.Sprintf("Creature-%d", src.Intn(1000)),
		Species: "Digital Being",
		Personality: Personality{
			Traits: []string{entropy.Choose(src, fallbackTraits)},
			Energy: float64(src.Intn(101)),
		},
		Appearance: Appearance{
			Color:    entropy.Choose(src, fallbackColors),
			Size:     entropy.Range(src, 0.5, 2.0),
			Shape:    entropy.Choose(src, Shapes),
			Features: []string{entropy.Choose(src, fallbackFeatures)},
		},
	}, nil
}

// Spawner creates entities for donors.
type Spawner struct {
	oracle   Oracle
	fallback Oracle
	src      entropy.Source
	now      func() time.Time
}

// NewSpawner creates a spawner. A nil oracle means every entity comes from the
// fallback generator.
func NewSpawner(oracle Oracle, src entropy.Source, now func() time.Time) *Spawner {
	if now == nil {
		now = time.Now
	}
	return &Spawner{
		oracle:   oracle,
		fallback: FallbackOracle{Src: src},
		src:      src,
		now:      now,
	}
}

// GenerateUniqueEntity builds a new entity owned by donorEmail.
func (s *Spawner) GenerateUniqueEntity(ctx context.Context, donorEmail string) Entity {
	attrs, err := s.generate(ctx)
	if err != nil {
		slog.Warn("entity generation failed, using fallback", "donor", donorEmail, "error", err)
		attrs, _ = s.fallback.Generate(ctx)
	}

	now := s.now().UTC()
	return Entity{
		ID:            uuid.NewString(),
		Name:          attrs.Name,
		DonorEmail:    donorEmail,
		Species:       attrs.Species,
		Personality:   attrs.Personality,
		Appearance:    attrs.Appearance,
		Position:      s.randomPosition(),
		Status:        StatusExploring,
		Relationships: []string{},
		CreatedAt:     now,
		LastActive:    now,
	}
}

func (s *Spawner) generate(ctx context.Context) (GeneratedAttributes, error) {
	if s.oracle == nil {
		return GeneratedAttributes{}, fmt.Errorf("no oracle configured")
	}
	attrs, err := s.oracle.Generate(ctx)
	if err != nil {
		return GeneratedAttributes{}, fmt.Errorf("oracle: %w", err)
	}
	if err := Validate(attrs); err != nil {
		return GeneratedAttributes{}, err
	}
	// Energy arrives as JSON number; whole values keep the cadence stable.
	attrs.Personality.Energy = math.Round(attrs.Personality.Energy)
	return attrs, nil
}

// randomPosition places newcomers in [100,1100]×[100,700].
func (s *Spawner) randomPosition() geom.Vec {
	return geom.Vec{
		X: entropy.Range(s.src, 100, 1100),
		Y: entropy.Range(s.src, 100, 700),
	}
}
