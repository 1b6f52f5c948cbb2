package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/cargo-actions/cargo-cache/internal/cargohome"
)

// Default configuration values
const (
	DefaultCacheOnly = ""
	DefaultVerbose   = false
)

// Holds the configuration options for cargo-cache
type Config struct {
	// Whitespace-separated list of segment short names to cache; empty
	// selects every segment
	CacheOnly string

	// Selected segments parsed from CacheOnly
	Segments []cargohome.Segment

	// Root directory for the local blob cache backend
	CacheDir string

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CacheOnly: viper.GetString("cache-only"),
		CacheDir:  viper.GetString("cache-dir"),
		Verbose:   viper.GetBool("verbose"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	segments, err := cargohome.Select(c.CacheOnly)
	if err != nil {
		return err
	}
	c.Segments = segments

	if c.CacheDir != "" {
		abs, err := filepath.Abs(c.CacheDir)
		if err != nil {
			return fmt.Errorf("invalid cache directory path: %v", err)
		}

		c.CacheDir = abs
	}

	return nil
}
