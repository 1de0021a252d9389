package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Scraper.MaxConcurrent)
	require.Equal(t, 2, cfg.Scraper.RetryAttempts)
	require.Equal(t, 10*time.Second, cfg.CheapTimeout())
	require.Equal(t, 500*time.Millisecond, cfg.RateLimitDelay())
	require.Equal(t, 3, cfg.Browser.PoolSize)
	require.Equal(t, 45*time.Second, cfg.NavTimeout())
	require.Equal(t, 0, cfg.Browser.RetryAttempts)
	require.Equal(t, 7, cfg.Proxy.MaxUsesPerProxy)
	require.Equal(t, 200, cfg.Detector.MinVisibleTextChars)
	require.NotEmpty(t, cfg.Detector.FrameworkMarkers)
	require.False(t, cfg.API.Enabled)
	require.True(t, cfg.Browser.Headless)
	require.Zero(t, cfg.Scraper.MinConfidenceScore)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
scraper:
  max_concurrent: 4
  retry_attempts: 3
browser:
  pool_size: 2
output:
  results_csv: out/results.csv
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Scraper.MaxConcurrent)
	require.Equal(t, 3, cfg.Scraper.RetryAttempts)
	require.Equal(t, 2, cfg.Browser.PoolSize)
	require.Equal(t, "out/results.csv", cfg.Output.ResultsCSV)
	// Unset keys keep their defaults.
	require.Equal(t, 10, cfg.Scraper.CheapTimeoutSecs)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Scraper.MaxConcurrent = 0 }},
		{"zero retries", func(c *Config) { c.Scraper.RetryAttempts = 0 }},
		{"zero cheap timeout", func(c *Config) { c.Scraper.CheapTimeoutSecs = 0 }},
		{"confidence floor above one", func(c *Config) { c.Scraper.MinConfidenceScore = 1.5 }},
		{"negative confidence floor", func(c *Config) { c.Scraper.MinConfidenceScore = -0.1 }},
		{"zero pool size", func(c *Config) { c.Browser.PoolSize = 0 }},
		{"negative browser retries", func(c *Config) { c.Browser.RetryAttempts = -1 }},
		{"zero proxy quota", func(c *Config) { c.Proxy.MaxUsesPerProxy = 0 }},
		{"api enabled without port", func(c *Config) { c.API.Enabled = true; c.API.Port = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("SCRAPER_SCRAPER_MAX_CONCURRENT", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Scraper.MaxConcurrent)
}
