// Package config loads the core's tunable constants from YAML: a Config
// struct decoded with gopkg.in/yaml.v3, fields the file leaves unset keeping
// their defaults, and a Validate step that rejects nonsensical combinations.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable left open to deployment-specific judgment
// rather than fixed in code: RETENTION_MS, STARVE_MS, DRAIN_MAX and the
// queue/warm-hold defaults.
type Config struct {
	// RetentionMS is how long a DESTROYED native-object record is kept
	// before Sweep removes it.
	RetentionMS int64 `yaml:"retention_ms"`

	// StarveMS is how long a FLOWING stream may go without a frame
	// before the starvation watchdog marks it STARVED.
	StarveMS int64 `yaml:"starve_ms"`

	// DrainMax bounds how many queued events or commands the core loop
	// drains per iteration before moving on (§4.J step 2/3). 0 drains
	// everything queued.
	DrainMax int `yaml:"drain_max"`

	// CmdQueueCap and EvtQueueCap size the bounded command/event queues
	// (§4.C).
	CmdQueueCap int `yaml:"cmd_queue_cap"`
	EvtQueueCap int `yaml:"evt_queue_cap"`

	// DefaultWarmHoldMS seeds Device.WarmHoldMS for a newly engaged
	// device until set_warm_policy overrides it.
	DefaultWarmHoldMS int64 `yaml:"default_warm_hold_ms"`
}

// Default returns a Config with every field set to its production
// default. A missing config file is not an error — callers fall back to
// Default() and layer Load on top only when a file is present.
func Default() Config {
	return Config{
		RetentionMS:       30_000,
		StarveMS:          2_000,
		DrainMax:          0,
		CmdQueueCap:       256,
		EvtQueueCap:       1024,
		DefaultWarmHoldMS: 5_000,
	}
}

// Load reads and decodes a YAML config file at path, starting from
// Default() and overlaying any fields the file sets. Zero-valued fields
// left unset by the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	raw := Default()
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg = raw

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects tunable combinations that would make the core loop
// misbehave rather than merely perform worse.
func (c Config) Validate() error {
	if c.RetentionMS < 0 {
		return fmt.Errorf("retention_ms must be >= 0, got %d", c.RetentionMS)
	}
	if c.StarveMS <= 0 {
		return fmt.Errorf("starve_ms must be > 0, got %d", c.StarveMS)
	}
	if c.DrainMax < 0 {
		return fmt.Errorf("drain_max must be >= 0, got %d", c.DrainMax)
	}
	if c.CmdQueueCap <= 0 {
		return fmt.Errorf("cmd_queue_cap must be > 0, got %d", c.CmdQueueCap)
	}
	if c.EvtQueueCap <= 0 {
		return fmt.Errorf("evt_queue_cap must be > 0, got %d", c.EvtQueueCap)
	}
	if c.DefaultWarmHoldMS < 0 {
		return fmt.Errorf("default_warm_hold_ms must be >= 0, got %d", c.DefaultWarmHoldMS)
	}
	return nil
}
