package behavior

import (
	"math"

	"github.com/talgya/mini-ecosystem/internal/agents"
)

// Weights holds one selection weight per status, indexed in the order of
// agents.Statuses.
type Weights [len(agents.Statuses)]float64

const (
	exploring = iota
	building
	socializing
	resting
)

var baseWeights = Weights{exploring: 25, building: 15, socializing: 10, resting: 10}

// traitAdjustments maps a personality trait to the weight deltas it applies.
var traitAdjustments = map[string]Weights{
	agents.TraitCurious:    {exploring: 20},
	agents.TraitSocial:     {socializing: 25},
	agents.TraitCreative:   {building: 20},
	agents.TraitEnergetic:  {exploring: 15, socializing: 10, resting: -5},
	agents.TraitCalm:       {building: 10, resting: 15},
	agents.TraitMysterious: {exploring: 10, resting: 10},
	agents.TraitProtective: {building: 15, socializing: 5},
	agents.TraitPlayful:    {exploring: 10, socializing: 15},
}

// ComputeWeights returns the status weights for an entity with the given
// traits and number of nearby neighbors. Crowds draw entities to socialize
// (+5 each); isolation discourages it (-15). Every weight is at least zero.
func ComputeWeights(traits []string, neighbors int) Weights {
	w := baseWeights
	for _, trait := range traits {
		adj, ok := traitAdjustments[trait]
		if !ok {
			continue
		}
		for i := range w {
			w[i] += adj[i]
		}
	}
	if neighbors > 0 {
		w[socializing] += float64(neighbors) * 5
	} else {
		w[socializing] -= 15
	}
	for i := range w {
		w[i] = math.Max(0, w[i])
	}
	return w
}

// Total returns the sum of all weights.
func (w Weights) Total() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Of returns the weight of one status.
func (w Weights) Of(s agents.Status) float64 {
	for i, st := range agents.Statuses {
		if st == s {
			return w[i]
		}
	}
	return 0
}

// Choose maps a uniform draw r in [0, 1) onto a status, scanning cumulative
// weights in enumeration order.
func (w Weights) Choose(r float64) agents.Status {
	target := r * w.Total()
	var cumulative float64
	for i, v := range w {
		cumulative += v
		if target < cumulative {
			return agents.Statuses[i]
		}
	}
	// Only reachable through rounding at r close to 1.
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] > 0 {
			return agents.Statuses[i]
		}
	}
	return agents.StatusExploring
}
