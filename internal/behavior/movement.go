package behavior

import (
	"math"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
)

const (
	exploreStep   = 20.0
	socialStep    = 10.0
	buildStep     = 15.0
	restJitter    = 5.0
	socialReach   = 50.0 // close enough to a neighbor to stop approaching
	buildingReach = 30.0 // close enough to a building spot to stop
)

var (
	spotDistances = []float64{100, 150, 200}
	spotAngles    = []float64{0, math.Pi / 2, math.Pi, 3 * math.Pi / 2}
)

// Speed returns the movement speed for an energy level: 0 at 0 energy, 2 at 100.
func Speed(energy float64) float64 {
	return geom.Clamp(energy, 0, 100) / 100 * 2
}

// Move computes the next position of e for the chosen status. neighbors must
// be sorted nearest first. The result is always inside bounds.
func Move(e *agents.Entity, status agents.Status, neighbors []agents.Entity, bounds geom.Bounds, src entropy.Source) geom.Vec {
	speed := Speed(e.Personality.Energy)
	pos := e.Position

	switch status {
	case agents.StatusExploring:
		angle := src.Float64() * 2 * math.Pi
		pos = pos.Polar(angle, speed*exploreStep)
	case agents.StatusSocializing:
		if len(neighbors) > 0 {
			pos = stepToward(pos, neighbors[0].Position, speed*socialStep, socialReach)
		}
	case agents.StatusBuilding:
		if spot, ok := BuildingSpot(pos, bounds); ok {
			pos = stepToward(pos, spot, speed*buildStep, buildingReach)
		}
	case agents.StatusResting:
		pos = geom.Vec{
			X: pos.X + (src.Float64()-0.5)*speed*restJitter,
			Y: pos.Y + (src.Float64()-0.5)*speed*restJitter,
		}
	}
	return bounds.Clamp(pos)
}

// stepToward moves step units from pos toward target, unless pos is already
// within reach of it.
func stepToward(pos, target geom.Vec, step, reach float64) geom.Vec {
	delta := target.Sub(pos)
	dist := delta.Len()
	if dist <= reach || dist == 0 {
		return pos
	}
	return pos.Add(delta.Scale(step / dist))
}

// BuildingSpot returns the first candidate site around pos that lies inside
// bounds, scanning distances 100, 150, 200 and the four cardinal directions.
// Sites are not checked against existing structures or entities.
func BuildingSpot(pos geom.Vec, bounds geom.Bounds) (geom.Vec, bool) {
	for _, d := range spotDistances {
		for _, a := range spotAngles {
			if spot := pos.Polar(a, d); bounds.Contains(spot) {
				return spot, true
			}
		}
	}
	return geom.Vec{}, false
}
