// Package worker provides background dataset import jobs for station traffic.
package worker

import (
	"fmt"
	"os"
	"time"
)

// ImportConfig holds configuration for the dataset import job.
type ImportConfig struct {
	// SourceName labels imported datasets, e.g. "bluebikes".
	// Default: the source provider's Name().
	SourceName string

	// Timeout bounds a single import run, fetch and save included.
	// Default: 5 minutes
	Timeout time.Duration

	// CheckTimeout bounds a health check run.
	// Default: 30 seconds
	CheckTimeout time.Duration

	// Interval is how often the ticker triggers an import when Pub/Sub is
	// not configured. Default: 1 hour
	Interval time.Duration

	// AllowEmptyTrips accepts a dataset with stations but no trips.
	// Default: false
	AllowEmptyTrips bool
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Timeout:      5 * time.Minute,
		CheckTimeout: 30 * time.Second,
		Interval:     time.Hour,
	}
}

// ImportConfigFromEnv overlays IMPORT_INTERVAL and IMPORT_TIMEOUT on the defaults.
func ImportConfigFromEnv() (ImportConfig, error) {
	cfg := DefaultImportConfig()

	if v := os.Getenv("IMPORT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ImportConfig{}, fmt.Errorf("IMPORT_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}

	if v := os.Getenv("IMPORT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ImportConfig{}, fmt.Errorf("IMPORT_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}

	return cfg, cfg.Validate()
}

// Validate checks that every duration is positive.
func (c ImportConfig) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("import timeout must be positive, got %s", c.Timeout)
	case c.CheckTimeout <= 0:
		return fmt.Errorf("health check timeout must be positive, got %s", c.CheckTimeout)
	case c.Interval <= 0:
		return fmt.Errorf("import interval must be positive, got %s", c.Interval)
	}
	return nil
}

func (c ImportConfig) withDefaults() ImportConfig {
	d := DefaultImportConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	return c
}
