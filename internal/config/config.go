// Package config loads runtime settings from an optional YAML file and
// the environment, and validates them before anything touches the
// workspace. Invalid lease or backoff parameters fail here, at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duraq/duraq/internal/retry"
)

// ErrInvalidConfig wraps every validation failure so callers can
// distinguish configuration errors from runtime ones.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)

	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Workspace     string   `yaml:"workspace"`
	LeaseDuration Duration `yaml:"lease_duration"`
	PollInterval  Duration `yaml:"poll_interval"`
	Parallel      int      `yaml:"parallel"`
	MaxAttempts   int      `yaml:"max_attempts"`
	BaseDelay     Duration `yaml:"base_delay"`
	Multiplier    float64  `yaml:"multiplier"`
	MaxDelay      Duration `yaml:"max_delay"`
	ListenAddr    string   `yaml:"listen_addr"`
}

func Default() Config {
	return Config{
		Workspace:     ".",
		LeaseDuration: Duration(2 * time.Minute),
		PollInterval:  Duration(500 * time.Millisecond),
		Parallel:      1,
		MaxAttempts:   retry.DefaultMaxAttempts,
		BaseDelay:     Duration(retry.DefaultBaseDelay),
		Multiplier:    retry.DefaultMultiplier,
		MaxDelay:      Duration(retry.DefaultMaxDelay),
		ListenAddr:    ":8080",
	}
}

// Load layers the defaults, then the YAML file (if path is non-empty),
// then DURAQ_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Workspace = getenv("DURAQ_WORKSPACE", c.Workspace)
	c.ListenAddr = getenv("DURAQ_LISTEN_ADDR", c.ListenAddr)

	if raw := os.Getenv("DURAQ_LEASE_DURATION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: DURAQ_LEASE_DURATION: %v", ErrInvalidConfig, err)
		}
		c.LeaseDuration = Duration(d)
	}
	if raw := os.Getenv("DURAQ_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: DURAQ_POLL_INTERVAL: %v", ErrInvalidConfig, err)
		}
		c.PollInterval = Duration(d)
	}
	if raw := os.Getenv("DURAQ_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: DURAQ_MAX_ATTEMPTS: %v", ErrInvalidConfig, err)
		}
		c.MaxAttempts = n
	}
	if raw := os.Getenv("DURAQ_PARALLEL"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: DURAQ_PARALLEL: %v", ErrInvalidConfig, err)
		}
		c.Parallel = n
	}

	return nil
}

func (c Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("%w: workspace must not be empty", ErrInvalidConfig)
	}
	if c.LeaseDuration.Std() <= 0 {
		return fmt.Errorf("%w: lease_duration must be positive, got %v", ErrInvalidConfig, c.LeaseDuration.Std())
	}
	if c.PollInterval.Std() <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive, got %v", ErrInvalidConfig, c.PollInterval.Std())
	}
	if c.Parallel < 1 {
		return fmt.Errorf("%w: parallel must be at least 1, got %d", ErrInvalidConfig, c.Parallel)
	}

	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Policy builds the retry policy from the backoff parameters.
func (c Config) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay.Std(),
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay.Std(),
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
