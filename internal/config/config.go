// Package config holds the closed, typed configuration table for the track
// engine and its CLI. Values load from a TOML file, then environment
// overrides, then validation. A fsnotify-based Watcher reloads the file on
// change and notifies subscribers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// ErrInvalid reports a configuration value outside its domain.
var ErrInvalid = errors.New("invalid configuration")

// envPrefix namespaces the environment overrides (TRACKDECK_MAX_PATCHES,
// TRACKDECK_STORE_DIR, ...).
const envPrefix = "TRACKDECK_"

// Config is the full configuration table. Every entry is typed to its
// domain; there are no free-form dynamic values.
type Config struct {
	// MaxPatches bounds the retained undo history.
	MaxPatches int `toml:"max_patches"`

	// StoreDir is the persistence directory. Empty selects the in-memory
	// store.
	StoreDir string `toml:"store_dir"`

	// MovingThreshold is the m/s cutoff separating moving time from stopped
	// time in statistics.
	MovingThreshold float64 `toml:"moving_threshold"`

	// BlendSpeed is the fallback m/s speed for merge trace-blending when the
	// merged points record no usable moving speed.
	BlendSpeed float64 `toml:"blend_speed"`

	// SplitMode selects the default split boundary: "file", "track" or
	// "segment".
	SplitMode string `toml:"split_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxPatches:      100,
		MovingThreshold: 0.5,
		BlendSpeed:      1.25,
		SplitMode:       "segment",
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file is not an error; only the defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(envPrefix + "MAX_PATCHES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPatches = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "STORE_DIR"); ok {
		c.StoreDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "MOVING_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MovingThreshold = f
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "SPLIT_MODE"); ok {
		c.SplitMode = v
	}
}

// Validate checks every entry against its domain.
func (c Config) Validate() error {
	if c.MaxPatches <= 0 {
		return fmt.Errorf("%w: max_patches must be positive, got %d", ErrInvalid, c.MaxPatches)
	}
	if c.MovingThreshold < 0 {
		return fmt.Errorf("%w: moving_threshold must be non-negative, got %f", ErrInvalid, c.MovingThreshold)
	}
	if c.BlendSpeed <= 0 {
		return fmt.Errorf("%w: blend_speed must be positive, got %f", ErrInvalid, c.BlendSpeed)
	}
	switch c.SplitMode {
	case "file", "track", "segment":
	default:
		return fmt.Errorf("%w: split_mode must be file, track or segment, got %q", ErrInvalid, c.SplitMode)
	}
	return nil
}
