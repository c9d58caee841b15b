package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Tuning.WorldWidth != 1920 || cfg.Tuning.WorldHeight != 1080 {
		t.Fatalf("default world = %fx%f", cfg.Tuning.WorldWidth, cfg.Tuning.WorldHeight)
	}
	if cfg.Replication.KeyframeIntervalTicks != 128 {
		t.Fatalf("default keyframe interval = %d", cfg.Replication.KeyframeIntervalTicks)
	}
}

func TestLoadOverlaysFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  addr: ":9999"
  seed: custom-seed
replication:
  keyframe_interval_ticks: 64
  journal_max_age: 2s
tuning:
  ship_health: 5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Server.Seed != "custom-seed" {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Replication.KeyframeIntervalTicks != 64 {
		t.Fatalf("keyframe interval not applied: %d", cfg.Replication.KeyframeIntervalTicks)
	}
	if cfg.Replication.JournalMaxAge != 2*time.Second {
		t.Fatalf("journal max age not parsed: %v", cfg.Replication.JournalMaxAge)
	}
	if cfg.Tuning.ShipHealth != 5 {
		t.Fatalf("tuning override not applied: %d", cfg.Tuning.ShipHealth)
	}
	// Untouched keys keep their defaults.
	if cfg.Tuning.WorldWidth != 1920 {
		t.Fatalf("unrelated default lost: %f", cfg.Tuning.WorldWidth)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero world width", func(c *Config) { c.Tuning.WorldWidth = 0 }},
		{"negative ship radius", func(c *Config) { c.Tuning.ShipRadius = -1 }},
		{"chance above one", func(c *Config) { c.Tuning.AsteroidLargeChance = 1.5 }},
		{"negative split count", func(c *Config) { c.Tuning.SplitCount = -1 }},
		{"negative journal frames", func(c *Config) { c.Replication.JournalFrames = -1 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s passed validation", tc.name)
		}
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing config file loaded without error")
	}
}
