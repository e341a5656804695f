// Package config loads service configuration from GLUCOMEM_ environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Prefix is the environment variable prefix, e.g. GLUCOMEM_DB_PATH.
const Prefix = "GLUCOMEM"

// Config holds the configuration for the memory engine.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// DBPath defaults to ~/.glucomem/glucomem.db when empty.
	DBPath string `envconfig:"DB_PATH" default:""`

	// Timezone is an IANA name used to resolve time expressions ("Local" uses the host zone).
	Timezone string `envconfig:"TIMEZONE" default:"Local"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Consolidation tuning
	HabitWindowDays    int `envconfig:"HABIT_WINDOW_DAYS" default:"30"`
	PatternPrefixRunes int `envconfig:"PATTERN_PREFIX_RUNES" default:"20"`
	WriteRetries       int `envconfig:"WRITE_RETRIES" default:"3"`

	location *time.Location
}

// ResolveDefaults fills derived values and validates the config.
func (c *Config) ResolveDefaults() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("unsupported ENVIRONMENT: %s", c.Environment)
	}

	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.DBPath = filepath.Join(home, ".glucomem", "glucomem.db")
	}

	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("unsupported TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unsupported LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.HabitWindowDays <= 0 {
		return fmt.Errorf("HABIT_WINDOW_DAYS must be positive, got %d", c.HabitWindowDays)
	}
	if c.PatternPrefixRunes <= 0 {
		return fmt.Errorf("PATTERN_PREFIX_RUNES must be positive, got %d", c.PatternPrefixRunes)
	}
	if c.WriteRetries < 0 {
		return fmt.Errorf("WRITE_RETRIES must not be negative, got %d", c.WriteRetries)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: GLUCOMEM_DB_PATH, GLUCOMEM_TIMEZONE
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("environment", string(cfg.Environment)).
		Str("db_path", cfg.DBPath).
		Str("timezone", cfg.Timezone).
		Str("http_addr", cfg.HTTPAddr).
		Int("habit_window_days", cfg.HabitWindowDays).
		Int("pattern_prefix_runes", cfg.PatternPrefixRunes).
		Int("write_retries", cfg.WriteRetries).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment:        EnvTesting,
		DBPath:             filepath.Join(os.TempDir(), "glucomem-test.db"),
		Timezone:           "UTC",
		HTTPAddr:           ":0",
		LogLevel:           "debug",
		HabitWindowDays:    30,
		PatternPrefixRunes: 20,
		WriteRetries:       0,
	}
	cfg.location = time.UTC
	return cfg
}

// Location returns the resolved time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// SetTimezone overrides the time zone, as the --tz flag does.
func (c *Config) SetTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("unsupported timezone %q: %w", name, err)
	}
	c.Timezone, c.location = name, loc
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
