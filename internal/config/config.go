// Package config defines experiment configuration for vidaudit batch runs.
// An experiment is a named set of audit tasks plus the knobs that control
// how the batch runner and the browser puppet behave.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Mode selects the player surface a task audits.
type Mode string

const (
	ModeLong  Mode = "long"  // regular watch page
	ModeShort Mode = "short" // short-form vertical player
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLong || m == ModeShort
}

// Task is one unit of audit work: train the recommender on a sequence of
// seed videos, then collect recommendations from the resulting state.
type Task struct {
	// VideoIDs are the training seeds, watched in order. The last one is
	// the seed the collection phase starts from.
	VideoIDs []string `yaml:"video_ids"`
	Mode     Mode     `yaml:"mode"`
	// Platform names the target platform. Empty inherits Config.Platform.
	Platform string `yaml:"platform,omitempty"`
	// SeedID identifies the task in results. Defaults to the last VideoID.
	SeedID string `yaml:"seed_id,omitempty"`
}

// SleepRange bounds the randomized sleep between task waves, in seconds.
type SleepRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ServeConfig configures the optional HTTP status API.
type ServeConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Config is a full experiment definition.
type Config struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Tasks    []Task `yaml:"tasks"`

	WatchTime WatchSpec  `yaml:"watch_time"`
	Hops      int        `yaml:"hops"`
	Workers   int        `yaml:"workers"`
	Retries   int        `yaml:"retries"`
	Sleep     SleepRange `yaml:"sleep_range"`

	Headless    bool   `yaml:"headless"`
	Incognito   bool   `yaml:"incognito"`
	Adblock     string `yaml:"adblock_extension,omitempty"`
	BrowserBin  string `yaml:"browser_bin,omitempty"`
	DebuggerURL string `yaml:"debugger_url,omitempty"`

	OutputDir string `yaml:"output_dir"`

	API ServeConfig `yaml:"api,omitempty"`
}

// Default returns a Config with every knob at its default. Task list and
// name are left empty; callers fill those in.
func Default() Config {
	return Config{
		Platform:  "youtube",
		WatchTime: WatchSpec{Seconds: 10},
		Hops:      15,
		Workers:   2,
		Retries:   3,
		Sleep:     SleepRange{Min: 300, Max: 900},
		Headless:  true,
		OutputDir: "experiments",
	}
}

// Load reads, defaults, and validates an experiment YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills in per-task fields that derive from other fields.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "youtube"
	}
	if c.OutputDir == "" {
		c.OutputDir = "experiments"
	}
	if c.WatchTime.IsZero() {
		c.WatchTime = WatchSpec{Seconds: 10}
	}
	for i := range c.Tasks {
		t := &c.Tasks[i]
		if t.Platform == "" {
			t.Platform = c.Platform
		}
		if t.SeedID == "" && len(t.VideoIDs) > 0 {
			t.SeedID = t.VideoIDs[len(t.VideoIDs)-1]
		}
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}
	if c.Hops < 1 {
		return fmt.Errorf("hops must be >= 1, got %d", c.Hops)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be >= 1, got %d", c.Retries)
	}
	if c.Sleep.Min < 0 || c.Sleep.Max < c.Sleep.Min {
		return fmt.Errorf("sleep_range must satisfy 0 <= min <= max, got [%d, %d]", c.Sleep.Min, c.Sleep.Max)
	}
	for i, t := range c.Tasks {
		if len(t.VideoIDs) == 0 {
			return fmt.Errorf("task %d: video_ids must not be empty", i)
		}
		for _, id := range t.VideoIDs {
			if id == "" {
				return fmt.Errorf("task %d: empty video id", i)
			}
		}
		if !t.Mode.Valid() {
			return fmt.Errorf("task %d: mode must be %q or %q, got %q", i, ModeLong, ModeShort, t.Mode)
		}
	}
	return nil
}

// ExperimentDir is where all state for this experiment lives.
func (c *Config) ExperimentDir() string {
	return filepath.Join(c.OutputDir, c.Name)
}

// EnsureDirs creates the experiment directory layout.
func (c *Config) EnsureDirs() error {
	dir := c.ExperimentDir()
	for _, sub := range []string{"results", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create experiment dir: %w", err)
		}
	}
	return nil
}

// Write serializes the config back to YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
