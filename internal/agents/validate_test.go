package agents

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GeneratedAttributes)
		field  string
	}{
		{"valid", func(*GeneratedAttributes) {}, ""},
		{"empty name", func(g *GeneratedAttributes) { g.Name = "" }, "name"},
		{"empty species", func(g *GeneratedAttributes) { g.Species = "" }, "species"},
		{"unknown trait", func(g *GeneratedAttributes) { g.Personality.Traits = []string{"grumpy"} }, "personality.traits"},
		{"no traits", func(g *GeneratedAttributes) { g.Personality.Traits = nil }, "personality.traits"},
		{"energy high", func(g *GeneratedAttributes) { g.Personality.Energy = 101 }, "personality.energy"},
		{"energy low", func(g *GeneratedAttributes) { g.Personality.Energy = -1 }, "personality.energy"},
		{"short color", func(g *GeneratedAttributes) { g.Appearance.Color = "#FFF" }, "appearance.color"},
		{"size small", func(g *GeneratedAttributes) { g.Appearance.Size = 0.4 }, "appearance.size"},
		{"size large", func(g *GeneratedAttributes) { g.Appearance.Size = 2.1 }, "appearance.size"},
		{"bad shape", func(g *GeneratedAttributes) { g.Appearance.Shape = "blob" }, "appearance.shape"},
		{"nil features", func(g *GeneratedAttributes) { g.Appearance.Features = nil }, "appearance.features"},
		{"bad feature", func(g *GeneratedAttributes) { g.Appearance.Features = []string{"wings"} }, "appearance.features"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validAttrs()
			tt.mutate(&g)
			err := Validate(g)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestEntityCloneIsDeep(t *testing.T) {
	e := Entity{
		Personality:   Personality{Traits: []string{TraitCalm}},
		Relationships: []string{"a"},
	}
	c := e.Clone()
	c.Relationships[0] = "b"
	c.Personality.Traits[0] = TraitSocial
	if e.Relationships[0] != "a" || e.Personality.Traits[0] != TraitCalm {
		t.Error("clone shares slices with the original")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("sleeping").Valid() {
		t.Error("unknown status reported valid")
	}
}
