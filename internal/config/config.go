// Package config loads server configuration from an optional YAML file
// and ASTEROIDS_* environment variables layered over built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bstrzelecki/asteroids-server/internal/sim"
)

// Config is the full server configuration tree.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Log         LogConfig         `mapstructure:"log"`
	Tuning      sim.Tuning        `mapstructure:"tuning"`
}

// ServerConfig covers the HTTP listener and match identity.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Seed labels the deterministic random streams; two servers started
	// with the same seed and roster produce identical matches.
	Seed string `mapstructure:"seed"`
}

// ReplicationConfig covers the snapshot pipeline.
type ReplicationConfig struct {
	KeyframeIntervalTicks uint64        `mapstructure:"keyframe_interval_ticks"`
	JournalFrames         int           `mapstructure:"journal_frames"`
	JournalMaxAge         time.Duration `mapstructure:"journal_max_age"`
	InterestRadius        float64       `mapstructure:"interest_radius"`
	InputQueueCap         int           `mapstructure:"input_queue_cap"`
	ViolationLimit        int           `mapstructure:"violation_limit"`
	DisconnectAfter       time.Duration `mapstructure:"disconnect_after"`
	MaxCatchupTicks       int           `mapstructure:"max_catchup_ticks"`
}

// LogConfig covers structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
			Seed: "asteroids",
		},
		Replication: ReplicationConfig{
			KeyframeIntervalTicks: 128,
			JournalFrames:         256,
			JournalMaxAge:         5 * time.Second,
			InterestRadius:        0,
			InputQueueCap:         8,
			ViolationLimit:        10,
			DisconnectAfter:       6 * time.Second,
			MaxCatchupTicks:       4,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Tuning: sim.DefaultTuning(),
	}
}

// Load reads the configuration file at path (optional; empty means
// defaults plus environment only) and layers ASTEROIDS_* environment
// variables on top. Keys nest with underscores, so
// ASTEROIDS_SERVER_ADDR overrides server.addr.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("asteroids")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the simulation cannot run with.
func Validate(cfg Config) error {
	if cfg.Tuning.WorldWidth <= 0 || cfg.Tuning.WorldHeight <= 0 {
		return fmt.Errorf("config: world dimensions must be positive")
	}
	if cfg.Tuning.ShipRadius <= 0 || cfg.Tuning.ProjectileRadius <= 0 {
		return fmt.Errorf("config: entity radii must be positive")
	}
	if cfg.Tuning.AsteroidLargeChance < 0 || cfg.Tuning.AsteroidLargeChance > 1 {
		return fmt.Errorf("config: asteroid_large_chance must be within [0,1]")
	}
	if cfg.Tuning.SplitCount < 0 {
		return fmt.Errorf("config: split_count must not be negative")
	}
	if cfg.Replication.JournalFrames < 0 {
		return fmt.Errorf("config: journal_frames must not be negative")
	}
	return nil
}
