// Command ecosim runs the digital ecosystem: a generated biome whose
// donor-spawned creatures roam, rest, build, and socialize on their own.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/api"
	"github.com/talgya/mini-ecosystem/internal/config"
	"github.com/talgya/mini-ecosystem/internal/engine"
	"github.com/talgya/mini-ecosystem/internal/entropy"
	"github.com/talgya/mini-ecosystem/internal/llm"
	"github.com/talgya/mini-ecosystem/internal/persistence"
	"github.com/talgya/mini-ecosystem/internal/telemetry"
	"github.com/talgya/mini-ecosystem/internal/world"
)

func main() {
	configPath := flag.String("config", "", "YAML file overriding the embedded defaults")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	setupLogging(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Digital Ecosystem starting", "seed", cfg.World.Seed,
		"world", fmt.Sprintf("%gx%g", cfg.World.Width, cfg.World.Height))

	// ── Entropy ───────────────────────────────────────────────────────
	var src entropy.Source = entropy.NewSeeded(cfg.World.Seed)
	if cfg.Entropy.RandomOrg {
		if rc := entropy.NewClient(cfg.RandomOrgKey); rc != nil {
			src = rc
			slog.Info("using random.org entropy")
		} else {
			slog.Warn("RANDOM_ORG_API_KEY not set, using seeded entropy")
		}
	}

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(time.Now())
	eng.Interval = cfg.Simulation.Tick
	eng.SetSpeed(cfg.Simulation.Speed)

	// ── Biome (always regenerated) ────────────────────────────────────
	eco := world.NewGenerator(cfg.World.Bounds, src, cfg.World.Seed, eng.Now).GenerateInitialEcosystem()
	slog.Info("biome generated", "summary", eco.String())

	// ── Population ────────────────────────────────────────────────────
	entities, err := db.ListEntities()
	if err != nil {
		slog.Error("failed to load entities", "error", err)
		os.Exit(1)
	}
	var startTick uint64
	if tickStr, err := db.GetMeta("last_tick"); err == nil {
		if t, err := strconv.ParseUint(tickStr, 10, 64); err == nil {
			startTick = t
		}
	} else if !errors.Is(err, persistence.ErrNotFound) {
		slog.Warn("failed to read last tick", "error", err)
	}
	eng.SetTick(startTick)

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(eco, cfg.SimulationOptions(), src, eng.Now)

	var oracle agents.Oracle
	if client := llm.NewClient(cfg.LLM); client.Enabled() {
		oracle = llm.CreatureOracle{Client: client}
		slog.Info("LLM creature generation enabled", "model", client.Model())
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, creatures will come from the fallback generator")
	}
	sim.Spawner = agents.NewSpawner(oracle, src, eng.Now)

	sim.OnEntityUpdate = func(e agents.Entity) {
		if err := db.UpdateEntity(e); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			slog.Error("failed to persist entity", "id", e.ID, "error", err)
		}
	}
	sim.OnEntityRemoved = func(id string) {
		if err := db.DeleteEntity(id); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			slog.Error("failed to delete entity", "id", id, "error", err)
		}
	}

	sim.Attach(eng)
	sim.Start(entities)

	eng.Every("save", cfg.Database.SaveInterval, func(time.Time) {
		if err := db.SaveState(sim); err != nil {
			slog.Error("periodic save failed", "error", err)
		}
	})

	// ── Telemetry ─────────────────────────────────────────────────────
	recorder, err := telemetry.NewRecorder(cfg.Telemetry.Dir)
	if err != nil {
		slog.Error("failed to open telemetry output", "error", err)
		os.Exit(1)
	}
	if recorder != nil {
		defer recorder.Close()
		eng.Every("telemetry", cfg.Telemetry.Period, func(now time.Time) {
			stats := telemetry.Collect(now, sim.CurrentTick(), sim.Behavior.Entities(),
				sim.Biome.Elements(), sim.Resources.AllResources(), sim.Traces.AllTraces())
			if err := recorder.Record(stats); err != nil {
				slog.Error("telemetry write failed", "error", err)
			}
		})
		slog.Info("telemetry enabled", "path", recorder.Path())
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("ECOSIM_ADMIN_KEY not set, admin endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:            sim,
		Eng:            eng,
		DB:             db,
		Port:           cfg.API.Port,
		AdminKey:       cfg.AdminKey,
		AllowedOrigins: cfg.API.AllowedOrigins,
		SpawnPerMinute: cfg.API.SpawnPerMinute,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nThe ecosystem is alive: %s creatures among %s plants and %d deposits.\n",
		humanize.Comma(int64(len(entities))), humanize.Comma(int64(len(eco.Elements))), len(eco.Resources))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %s\n", humanize.Comma(int64(startTick)))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()
	sim.Stop()

	// Final save on shutdown.
	slog.Info("final save...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := saveWithin(ctx, db, sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Ecosystem saved.")
}

// setupLogging picks a text handler for terminals and JSON for everything else.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// saveWithin runs the final save, giving up if it outlasts ctx.
func saveWithin(ctx context.Context, db *persistence.DB, sim *engine.Simulation) error {
	done := make(chan error, 1)
	go func() { done <- db.SaveState(sim) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
