package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "exp.yaml", `
name: pilot
tasks:
  - video_ids: ["abc123", "def456"]
    mode: long
  - video_ids: ["xyz789"]
    mode: short
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pilot", cfg.Name)
	assert.Equal(t, "youtube", cfg.Platform)
	assert.Equal(t, 15, cfg.Hops)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, SleepRange{Min: 300, Max: 900}, cfg.Sleep)
	assert.True(t, cfg.Headless)

	// seed_id defaults to the last training id
	assert.Equal(t, "def456", cfg.Tasks[0].SeedID)
	assert.Equal(t, "xyz789", cfg.Tasks[1].SeedID)
	assert.Equal(t, "youtube", cfg.Tasks[0].Platform)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeFile(t, "exp.yaml", `
name: full
platform: youtube
watch_time: 30s
hops: 50
workers: 4
retries: 2
sleep_range: {min: 10, max: 20}
headless: false
output_dir: /tmp/audits
tasks:
  - video_ids: ["a"]
    mode: long
    seed_id: custom
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Hops)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "custom", cfg.Tasks[0].SeedID)
	assert.Equal(t, 30*time.Second, cfg.WatchTime.Duration(10*time.Minute))
	assert.Equal(t, filepath.Join("/tmp/audits", "full"), cfg.ExperimentDir())
}

func TestValidateErrors(t *testing.T) {
	base := func() Config {
		c := Default()
		c.Name = "x"
		c.Tasks = []Task{{VideoIDs: []string{"a"}, Mode: ModeLong}}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"no tasks", func(c *Config) { c.Tasks = nil }},
		{"zero hops", func(c *Config) { c.Hops = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero retries", func(c *Config) { c.Retries = 0 }},
		{"inverted sleep range", func(c *Config) { c.Sleep = SleepRange{Min: 10, Max: 5} }},
		{"task without ids", func(c *Config) { c.Tasks[0].VideoIDs = nil }},
		{"task empty id", func(c *Config) { c.Tasks[0].VideoIDs = []string{""} }},
		{"bad mode", func(c *Config) { c.Tasks[0].Mode = "vertical" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Name = "roundtrip"
	cfg.WatchTime = WatchSpec{Fraction: 0.25}
	cfg.Tasks = []Task{{VideoIDs: []string{"a", "b"}, Mode: ModeShort}}
	cfg.applyDefaults()

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Write(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(&cfg, got); diff != "" {
		t.Errorf("config round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.Name = "dirs"
	cfg.OutputDir = t.TempDir()
	require.NoError(t, cfg.EnsureDirs())

	for _, sub := range []string{"results", "logs"} {
		info, err := os.Stat(filepath.Join(cfg.ExperimentDir(), sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
