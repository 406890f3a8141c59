package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/resources"
	"github.com/talgya/mini-ecosystem/internal/traces"
	"github.com/talgya/mini-ecosystem/internal/world"
)

func testWorld() world.Ecosystem {
	return world.Ecosystem{
		Zones: []world.BiomeZone{{ID: "z", Type: world.BiomeMeadow, Center: geom.Vec{X: 500, Y: 400}, Radius: 150, Fertility: 90}},
		Elements: []world.BiomeElement{
			{ID: "tree", Type: world.ElementTree, Position: geom.Vec{X: 800, Y: 200}, Health: 50},
		},
		Resources: []world.Resource{{
			ID: "berries", Type: world.ResourceFood, Position: geom.Vec{X: 500, Y: 400},
			Amount: 60, MaxAmount: 120, RegenerationRate: 0.3,
		}},
	}
}

func calmBeing(id string, x, y float64) agents.Entity {
	return agents.Entity{
		ID:            id,
		Name:          "Calm " + id,
		Species:       "Moss Sprite",
		Personality:   agents.Personality{Traits: []string{agents.TraitCalm}, Energy: 80},
		Position:      geom.Vec{X: x, Y: y},
		Status:        agents.StatusExploring,
		Relationships: []string{},
		CreatedAt:     epoch,
	}
}

func TestRestingEntityForagesAndMarksTerritory(t *testing.T) {
	// r = 0.8 picks resting for a calm loner and jitters it by +2.4 per axis.
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.Fixed(0.8), func() time.Time { return epoch })
	var persisted []agents.Entity
	sim.OnEntityUpdate = func(e agents.Entity) { persisted = append(persisted, e) }
	sim.Start([]agents.Entity{calmBeing("a", 505, 400)})

	sim.TickBehavior(1, epoch.Add(4*time.Second))

	if len(persisted) != 1 {
		t.Fatalf("persisted %d updates, want 1", len(persisted))
	}
	got := persisted[0]
	if got.Status != agents.StatusResting || got.Personality.Energy != 85 {
		t.Errorf("entity = status %s energy %f, want resting with 85", got.Status, got.Personality.Energy)
	}
	berries, _ := sim.Resources.Resource("berries")
	if berries.Amount != 50 {
		t.Errorf("berries = %f, want 50", berries.Amount)
	}
	if n := len(sim.Traces.TracesFromEntity("a")); n != 3 {
		t.Errorf("entity left %d traces, want footprint, path and territory", n)
	}
	tracked, _ := sim.Behavior.Entity("a")
	if tracked.Personality.Energy != 85 {
		t.Errorf("behavior engine energy = %f, want 85", tracked.Personality.Energy)
	}
	if st := sim.Status(); st.Harvests != 1 || st.Entities != 1 {
		t.Errorf("stats = %+v", st)
	}

	var categories []string
	for _, ev := range sim.Events(0) {
		categories = append(categories, ev.Category)
	}
	if len(categories) != 2 || categories[0] != EventHarvest || categories[1] != EventMove {
		t.Errorf("events = %v", categories)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.Fixed(0.5), func() time.Time { return epoch })
	events, cancel := sim.Subscribe()
	defer cancel()

	sim.AddEntity(calmBeing("b", 200, 200))
	select {
	case ev := <-events:
		if ev.Category != EventSpawn || ev.EntityID != "b" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	if _, open := <-events; open {
		t.Error("channel still open after cancel")
	}
}

func TestDrainEvents(t *testing.T) {
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.Fixed(0.5), func() time.Time { return epoch })
	sim.AddEntity(calmBeing("a", 200, 200))
	sim.AddEntity(calmBeing("b", 300, 200))

	if got := sim.DrainEvents(); len(got) != 2 {
		t.Fatalf("drained %d events, want 2", len(got))
	}
	if got := sim.DrainEvents(); len(got) != 0 {
		t.Errorf("second drain returned %d events", len(got))
	}
	if got := sim.Events(1); len(got) != 1 || got[0].EntityID != "b" {
		t.Errorf("recent = %+v", got)
	}
}

func TestManualInteractions(t *testing.T) {
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.Fixed(0.5), func() time.Time { return epoch })
	helper := calmBeing("h", 510, 400)
	helper.Personality.Traits = append(helper.Personality.Traits, agents.TraitNurturing)
	sim.AddEntity(helper)

	if _, err := sim.Harvest("nobody", "berries", 5); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("err = %v, want ErrUnknownEntity", err)
	}

	res, err := sim.Contribute("h", "berries", resources.ContributeRestore)
	if err != nil || !res.Success || res.Resource.Amount != 70 {
		t.Fatalf("contribute = %+v, %v", res, err)
	}
	e, _ := sim.Behavior.Entity("h")
	if e.Personality.Energy != 75 {
		t.Errorf("energy after contributing = %f, want 75", e.Personality.Energy)
	}

	if !sim.RemoveEntity("h") || sim.RemoveEntity("h") {
		t.Error("remove should succeed exactly once")
	}
	if err := sim.UpdateEntity(helper); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("update of removed entity: %v", err)
	}
}

func TestSpawnWithoutOracleUsesFallback(t *testing.T) {
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.NewSeeded(3), func() time.Time { return epoch })
	if _, err := sim.Spawn(context.Background(), "donor@example.com"); err == nil {
		t.Error("spawn without a spawner should fail")
	}

	sim.Spawner = agents.NewSpawner(nil, entropy.NewSeeded(3), func() time.Time { return epoch })
	e, err := sim.Spawn(context.Background(), "donor@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if e.Species != "Digital Being" || e.DonorEmail != "donor@example.com" {
		t.Errorf("entity = %+v", e)
	}
	if _, ok := sim.Behavior.Entity(e.ID); !ok {
		t.Error("spawned entity is not tracked")
	}
}

func TestAttachRunsJobs(t *testing.T) {
	eng := NewEngine(epoch)
	eng.Interval = time.Minute
	sim := NewSimulation(testWorld(), DefaultOptions(), entropy.Fixed(0.5), eng.Now)
	sim.Attach(eng)
	sim.Start(nil)

	eng.Step()
	berries, _ := sim.Resources.Resource("berries")
	if berries.Amount <= 60 {
		t.Errorf("berries did not regenerate: %f", berries.Amount)
	}
	if sim.CurrentTick() != 1 {
		t.Errorf("tick = %d, want 1", sim.CurrentTick())
	}
}

func TestEntitiesTendFlora(t *testing.T) {
	grassy := testWorld()
	grassy.Elements = append(grassy.Elements, world.BiomeElement{
		ID: "grass", Type: world.ElementGrass, Position: geom.Vec{X: 300, Y: 600}, Health: 70,
	})

	tests := []struct {
		name      string
		draw      float64
		entity    agents.Entity
		after     time.Duration
		element   string
		health    float64
		elements  int
		wantEvent string
		check     func(*testing.T, *Simulation)
	}{
		{
			// r = 0.1 explores; at energy 50 the step of 20 stays within grazing reach.
			name: "explorer grazes grass",
			draw: 0.1,
			entity: func() agents.Entity {
				e := calmBeing("g", 300, 600)
				e.Personality.Energy = 50
				return e
			}(),
			after:     5 * time.Second,
			element:   "grass",
			health:    50,
			elements:  2,
			wantEvent: EventGraze,
			check: func(t *testing.T, sim *Simulation) {
				if sim.Status().Grazed != 1 {
					t.Errorf("grazed = %d, want 1", sim.Status().Grazed)
				}
			},
		},
		{
			// r = 0.5 builds; the builder steps 24 east, still within reach of the tree.
			name: "nurturing builder waters and plants",
			draw: 0.5,
			entity: func() agents.Entity {
				e := calmBeing("b", 800, 200)
				e.Personality.Traits = append(e.Personality.Traits, agents.TraitNurturing)
				return e
			}(),
			after:     4 * time.Second,
			element:   "tree",
			health:    65,
			elements:  3,
			wantEvent: EventPlant,
			check: func(t *testing.T, sim *Simulation) {
				st := sim.Status()
				if st.Watered != 1 || st.Planted != 1 || st.Flora[world.ElementFlower] != 1 {
					t.Errorf("stats = watered %d planted %d flora %v", st.Watered, st.Planted, st.Flora)
				}
			},
		},
		{
			name:      "rester leaves a peaceful scent",
			draw:      0.8,
			entity:    calmBeing("r", 805, 200),
			after:     4 * time.Second,
			element:   "tree",
			health:    50,
			elements:  2,
			wantEvent: EventMove,
			check: func(t *testing.T, sim *Simulation) {
				peaceful := 0
				for _, tr := range sim.Traces.TracesFromEntity("r") {
					if tr.Properties["emotion"] == "peaceful" {
						peaceful++
					}
				}
				if peaceful != 1 {
					t.Errorf("peaceful scents = %d, want 1", peaceful)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulation(grassy, DefaultOptions(), entropy.Fixed(tt.draw), func() time.Time { return epoch })
			sim.Start([]agents.Entity{tt.entity})
			sim.TickBehavior(1, epoch.Add(tt.after))

			el, ok := sim.Biome.Element(tt.element)
			if !ok || el.Health != tt.health {
				t.Errorf("%s health = %f, want %f", tt.element, el.Health, tt.health)
			}
			if n := len(sim.Biome.Elements()); n != tt.elements {
				t.Errorf("elements = %d, want %d", n, tt.elements)
			}
			found := false
			for _, ev := range sim.Events(0) {
				found = found || ev.Category == tt.wantEvent
			}
			if !found {
				t.Errorf("no %s event in %+v", tt.wantEvent, sim.Events(0))
			}
			tt.check(t, sim)
		})
	}
}

func TestStatusSummarizesFlora(t *testing.T) {
	eco := testWorld()
	eco.Elements = append(eco.Elements,
		world.BiomeElement{ID: "t2", Type: world.ElementTree, Position: geom.Vec{X: 100, Y: 100}, Health: 90},
		world.BiomeElement{ID: "f1", Type: world.ElementFlower, Position: geom.Vec{X: 120, Y: 100}, Health: 40},
	)
	sim := NewSimulation(eco, DefaultOptions(), entropy.Fixed(0.5), func() time.Time { return epoch })
	sim.Traces.CreateTrace(traces.Path, geom.Vec{}, agents.Entity{ID: "a"}, nil)

	st := sim.Status()
	if st.Flora[world.ElementTree] != 2 || st.Flora[world.ElementFlower] != 1 {
		t.Errorf("flora = %v", st.Flora)
	}
	if st.TreeHealth != 70 || st.FlowerHealth != 40 {
		t.Errorf("health = trees %f flowers %f, want 70 and 40", st.TreeHealth, st.FlowerHealth)
	}
	if st.Intensity[traces.Path] != 50 {
		t.Errorf("path intensity = %v, want 50", st.Intensity)
	}
}
