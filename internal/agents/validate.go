package agents

import (
	"fmt"
	"regexp"
	"slices"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// GeneratedAttributes is what an oracle produces for a new creature.
type GeneratedAttributes struct {
	Name        string      `json:"name"`
	Species     string      `json:"species"`
	Personality Personality `json:"personality"`
	Appearance  Appearance  `json:"appearance"`
}

// ValidationError reports the first field of generated attributes that broke
// the schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks generated attributes against the fixed schema.
func Validate(g GeneratedAttributes) error {
	if g.Name == "" {
		return invalid("name", "empty")
	}
	if g.Species == "" {
		return invalid("species", "empty")
	}
	if len(g.Personality.Traits) == 0 {
		return invalid("personality.traits", "empty")
	}
	for _, t := range g.Personality.Traits {
		if !slices.Contains(BehaviorTraits, t) {
			return invalid("personality.traits", "unknown trait %q", t)
		}
	}
	if g.Personality.Energy < 0 || g.Personality.Energy > 100 {
		return invalid("personality.energy", "%.1f outside 0-100", g.Personality.Energy)
	}
	if !colorPattern.MatchString(g.Appearance.Color) {
		return invalid("appearance.color", "%q is not #RRGGBB", g.Appearance.Color)
	}
	if g.Appearance.Size < 0.5 || g.Appearance.Size > 2.0 {
		return invalid("appearance.size", "%.2f outside 0.5-2.0", g.Appearance.Size)
	}
	if !slices.Contains(Shapes, g.Appearance.Shape) {
		return invalid("appearance.shape", "unknown shape %q", g.Appearance.Shape)
	}
	if g.Appearance.Features == nil {
		return invalid("appearance.features", "missing")
	}
	for _, f := range g.Appearance.Features {
		if !slices.Contains(Features, f) {
			return invalid("appearance.features", "unknown feature %q", f)
		}
	}
	return nil
}
