package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duraq.yaml")
	content := `
workspace: /var/lib/duraq
lease_duration: 90s
poll_interval: 250ms
parallel: 4
max_attempts: 5
base_delay: 2s
multiplier: 3
max_delay: 10m
listen_addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/duraq", cfg.Workspace)
	assert.Equal(t, 90*time.Second, cfg.LeaseDuration.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Std())
	assert.Equal(t, 4, cfg.Parallel)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Policy().BaseDelay)
	assert.Equal(t, 3.0, cfg.Policy().Multiplier)
	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().LeaseDuration, cfg.LeaseDuration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DURAQ_WORKSPACE", "/srv/queue")
	t.Setenv("DURAQ_LEASE_DURATION", "45s")
	t.Setenv("DURAQ_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/queue", cfg.Workspace)
	assert.Equal(t, 45*time.Second, cfg.LeaseDuration.Std())
	assert.Equal(t, 7, cfg.MaxAttempts)
}

func TestInvalidValuesFailFast(t *testing.T) {
	t.Setenv("DURAQ_LEASE_DURATION", "not-a-duration")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsBadParameters(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Workspace = "" },
		func(c *Config) { c.LeaseDuration = 0 },
		func(c *Config) { c.PollInterval = Duration(-time.Second) },
		func(c *Config) { c.Parallel = 0 },
		func(c *Config) { c.MaxAttempts = 0 },
		func(c *Config) { c.Multiplier = 0.1 },
	}

	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}
}
