// Package config loads ecosystem settings from embedded defaults, an optional
// user YAML file, and environment secrets.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-ecosystem/internal/behavior"
	"github.com/talgya/mini-ecosystem/internal/engine"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/llm"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds every tunable of the ecosystem.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Behavior   behavior.Config  `yaml:"behavior"`
	Traces     TracesConfig     `yaml:"traces"`
	Simulation SimulationConfig `yaml:"simulation"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	LLM        llm.Config       `yaml:"llm"`
	Entropy    EntropyConfig    `yaml:"entropy"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Secrets come from the environment only.
	AdminKey     string `yaml:"-"`
	RandomOrgKey string `yaml:"-"`
}

// WorldConfig sizes the canvas.
type WorldConfig struct {
	Seed        int64 `yaml:"seed"`
	geom.Bounds `yaml:",inline"`
}

// TracesConfig bounds the trace store.
type TracesConfig struct {
	Capacity int `yaml:"capacity"`
}

// SimulationConfig drives the tick loop and entity side effects.
type SimulationConfig struct {
	Tick           time.Duration  `yaml:"tick"`
	Speed          float64        `yaml:"speed"`
	NestChance     float64        `yaml:"nest_chance"`
	GrazeChance    float64        `yaml:"graze_chance"`
	ForageRadius   float64        `yaml:"forage_radius"`
	ForageAmount   float64        `yaml:"forage_amount"`
	TendRadius     float64        `yaml:"tend_radius"`
	TerritoryScale float64        `yaml:"territory_scale"`
	Periods        engine.Periods `yaml:"periods"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port           int      `yaml:"port"`
	SpawnPerMinute int      `yaml:"spawn_per_minute"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EntropyConfig selects the randomness source.
type EntropyConfig struct {
	RandomOrg bool `yaml:"random_org"`
}

// TelemetryConfig enables CSV statistics output.
type TelemetryConfig struct {
	Dir    string        `yaml:"dir"`
	Period time.Duration `yaml:"period"`
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.loadSecrets()
	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadSecrets() {
	c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.AdminKey = os.Getenv("ECOSIM_ADMIN_KEY")
	c.RandomOrgKey = os.Getenv("RANDOM_ORG_API_KEY")
}

// computeDerived copies shared settings into the sections that need them.
func (c *Config) computeDerived() {
	c.Behavior.Bounds = c.World.Bounds
	if c.World.Seed == 0 {
		c.World.Seed = time.Now().UnixNano()
	}
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	b := c.World.Bounds
	if b.Width <= 2*b.Margin || b.Height <= 2*b.Margin {
		errs = append(errs, fmt.Errorf("world %gx%g leaves no room inside margin %g", b.Width, b.Height, b.Margin))
	}
	if c.Behavior.BaseInterval <= 0 {
		errs = append(errs, errors.New("behavior.base_interval must be positive"))
	}
	if c.Simulation.Tick <= 0 {
		errs = append(errs, errors.New("simulation.tick must be positive"))
	}
	if c.Simulation.NestChance < 0 || c.Simulation.NestChance > 1 {
		errs = append(errs, errors.New("simulation.nest_chance must be within [0, 1]"))
	}
	if c.Simulation.GrazeChance < 0 || c.Simulation.GrazeChance > 1 {
		errs = append(errs, errors.New("simulation.graze_chance must be within [0, 1]"))
	}
	if c.Traces.Capacity <= 0 {
		errs = append(errs, errors.New("traces.capacity must be positive"))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	return errors.Join(errs...)
}

// SimulationOptions assembles the engine options from this configuration.
func (c *Config) SimulationOptions() engine.Options {
	return engine.Options{
		Behavior:       c.Behavior,
		TraceCapacity:  c.Traces.Capacity,
		Periods:        c.Simulation.Periods,
		NestChance:     c.Simulation.NestChance,
		GrazeChance:    c.Simulation.GrazeChance,
		ForageRadius:   c.Simulation.ForageRadius,
		ForageAmount:   c.Simulation.ForageAmount,
		TendRadius:     c.Simulation.TendRadius,
		TerritoryScale: c.Simulation.TerritoryScale,
	}
}

// WriteYAML saves the effective configuration, without secrets.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
