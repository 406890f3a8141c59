// Package telemetry samples aggregate ecosystem statistics and records them
// as CSV rows for offline analysis.
package telemetry

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/traces"
	"github.com/talgya/mini-ecosystem/internal/world"
)

// WorldStats is one sample of the ecosystem.
type WorldStats struct {
	Time    string `csv:"time"`
	Tick    uint64 `csv:"tick"`
	Entity  int    `csv:"entities"`
	Explore int    `csv:"exploring"`
	Build   int    `csv:"building"`
	Social  int    `csv:"socializing"`
	Rest    int    `csv:"resting"`

	EnergyMean   float64 `csv:"energy_mean"`
	EnergyStdDev float64 `csv:"energy_stddev"`
	Relations    float64 `csv:"relations_mean"`

	Elements   int     `csv:"elements"`
	TreeHealth float64 `csv:"tree_health_mean"`

	Resources      int     `csv:"resources"`
	FillMean       float64 `csv:"fill_mean"`
	FillStdDev     float64 `csv:"fill_stddev"`
	ResourceAmount float64 `csv:"resource_amount"`

	Traces          int     `csv:"traces"`
	IntensityMean   float64 `csv:"intensity_mean"`
	IntensityStdDev float64 `csv:"intensity_stddev"`
}

// Collect computes one sample from snapshots of every component.
func Collect(now time.Time, tick uint64, entities []agents.Entity, elements []world.BiomeElement,
	resources []world.Resource, marks []traces.Trace) WorldStats {
	s := WorldStats{
		Time:      now.UTC().Format(time.RFC3339),
		Tick:      tick,
		Entity:    len(entities),
		Elements:  len(elements),
		Resources: len(resources),
		Traces:    len(marks),
	}

	energy := make([]float64, len(entities))
	relations := make([]float64, len(entities))
	for i, e := range entities {
		energy[i] = e.Personality.Energy
		relations[i] = float64(len(e.Relationships))
		switch e.Status {
		case agents.StatusExploring:
			s.Explore++
		case agents.StatusBuilding:
			s.Build++
		case agents.StatusSocializing:
			s.Social++
		case agents.StatusResting:
			s.Rest++
		}
	}
	s.EnergyMean, s.EnergyStdDev = meanStd(energy)
	s.Relations, _ = meanStd(relations)

	var trees []float64
	for _, el := range elements {
		if el.Type == world.ElementTree {
			trees = append(trees, el.Health)
		}
	}
	s.TreeHealth, _ = meanStd(trees)

	fill := make([]float64, 0, len(resources))
	for _, r := range resources {
		s.ResourceAmount += r.Amount
		if r.MaxAmount > 0 {
			fill = append(fill, r.Amount/r.MaxAmount)
		}
	}
	s.FillMean, s.FillStdDev = meanStd(fill)

	intensity := make([]float64, len(marks))
	for i, t := range marks {
		intensity[i] = t.Intensity
	}
	s.IntensityMean, s.IntensityStdDev = meanStd(intensity)
	return s
}

// meanStd returns the mean and sample standard deviation, with zeros for
// samples too small to define them.
func meanStd(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	mean, std := stat.MeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
