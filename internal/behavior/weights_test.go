package behavior

import (
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
)

func TestComputeWeights(t *testing.T) {
	tests := []struct {
		name      string
		traits    []string
		neighbors int
		want      Weights
	}{
		{"no traits alone", nil, 0, Weights{25, 15, 0, 10}},
		{"social with two neighbors", []string{agents.TraitSocial}, 2, Weights{25, 15, 45, 10}},
		{"energetic alone", []string{agents.TraitEnergetic}, 0, Weights{40, 15, 5, 5}},
		{"calm mysterious", []string{agents.TraitCalm, agents.TraitMysterious}, 1, Weights{35, 25, 15, 35}},
		{"protective playful crowd", []string{agents.TraitProtective, agents.TraitPlayful}, 4, Weights{35, 30, 50, 10}},
		{"unknown trait ignored", []string{"greedy"}, 0, Weights{25, 15, 0, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeWeights(tt.traits, tt.neighbors); got != tt.want {
				t.Errorf("weights = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightsNeverNegative(t *testing.T) {
	for _, trait := range agents.BehaviorTraits {
		for n := 0; n < 5; n++ {
			for i, w := range ComputeWeights([]string{trait}, n) {
				if w < 0 {
					t.Errorf("%s with %d neighbors: %s weight %f", trait, n, agents.Statuses[i], w)
				}
			}
		}
	}
}

func TestChooseScansInOrder(t *testing.T) {
	w := Weights{25, 15, 45, 10}
	tests := []struct {
		r    float64
		want agents.Status
	}{
		{0, agents.StatusExploring},
		{24.9 / 95, agents.StatusExploring},
		{25.0 / 95, agents.StatusBuilding},
		{40.0 / 95, agents.StatusSocializing},
		{84.9 / 95, agents.StatusSocializing},
		{0.9999, agents.StatusResting},
	}
	for _, tt := range tests {
		if got := w.Choose(tt.r); got != tt.want {
			t.Errorf("Choose(%f) = %s, want %s", tt.r, got, tt.want)
		}
	}
	if got := (Weights{0, 0, 5, 0}).Choose(0.5); got != agents.StatusSocializing {
		t.Errorf("zero weights should be skipped, got %s", got)
	}
}

func TestSelectionMatchesWeights(t *testing.T) {
	const trials = 20000
	w := ComputeWeights([]string{agents.TraitSocial}, 2)
	if w.Total() != 95 || w.Of(agents.StatusSocializing) != 45 {
		t.Fatalf("unexpected weights %v", w)
	}

	src := entropy.NewSeeded(42)
	observed := make([]float64, len(w))
	for _i := 0; _i < trials; _i++ {
		s := w.Choose(src.Float64())
		for i, st := range agents.Statuses {
			if st == s {
				observed[i]++
			}
		}
	}
	expected := make([]float64, len(w))
	for i, v := range w {
		expected[i] = v / w.Total() * trials
	}

	// Critical value for 3 degrees of freedom at p = 0.001.
	if chi := stat.ChiSquare(observed, expected); chi > 16.27 {
		t.Errorf("chi-square %f: observed %v, expected %v", chi, observed, expected)
	}
}
