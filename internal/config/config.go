// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Output   OutputConfig   `mapstructure:"output"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Detector DetectorConfig `mapstructure:"detector"`
}

// ScraperConfig governs the fetch orchestrator.
type ScraperConfig struct {
	MaxConcurrent      int     `mapstructure:"max_concurrent"`
	RetryAttempts      int     `mapstructure:"retry_attempts"`
	RateLimitDelaySecs float64 `mapstructure:"rate_limit_delay_seconds"`
	CheapTimeoutSecs   int     `mapstructure:"cheap_timeout_seconds"`
	ForceBrowser       bool    `mapstructure:"force_browser"`
	UserAgent          string  `mapstructure:"user_agent"`
	ScanSubPages       bool    `mapstructure:"scan_sub_pages"`
	MinConfidenceScore float64 `mapstructure:"min_confidence_score"`
}

// BrowserConfig configures the pooled full-render path.
type BrowserConfig struct {
	PoolSize       int  `mapstructure:"pool_size"`
	NavTimeoutSecs int  `mapstructure:"nav_timeout_seconds"`
	RetryAttempts  int  `mapstructure:"retry_attempts"`
	Headless       bool `mapstructure:"headless"`
}

// ProxyConfig points at the optional proxy list.
type ProxyConfig struct {
	File            string `mapstructure:"file"`
	MaxUsesPerProxy int    `mapstructure:"max_uses_per_proxy"`
}

// OutputConfig sets result and report destinations.
type OutputConfig struct {
	ResultsCSV string `mapstructure:"results_csv"`
	ReportDir  string `mapstructure:"report_dir"`
}

// APIConfig controls the optional status/metrics HTTP server.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig selects the zap profile and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DetectorConfig tunes the browser-escalation heuristic.
type DetectorConfig struct {
	MinVisibleTextChars int      `mapstructure:"min_visible_text_chars"`
	FrameworkMarkers    []string `mapstructure:"framework_markers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.max_concurrent", 10)
	v.SetDefault("scraper.retry_attempts", 2)
	v.SetDefault("scraper.rate_limit_delay_seconds", 0.5)
	v.SetDefault("scraper.cheap_timeout_seconds", 10)
	v.SetDefault("scraper.force_browser", false)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("scraper.scan_sub_pages", true)
	v.SetDefault("scraper.min_confidence_score", 0)
	v.SetDefault("browser.pool_size", 3)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.retry_attempts", 0)
	v.SetDefault("browser.headless", true)
	v.SetDefault("proxy.file", "proxies.txt")
	v.SetDefault("proxy.max_uses_per_proxy", 7)
	v.SetDefault("output.results_csv", "results.csv")
	v.SetDefault("output.report_dir", "reports")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("detector.min_visible_text_chars", 200)
	v.SetDefault("detector.framework_markers", []string{
		"react", "angular", "vue.js", "next.js",
		"__next_data__", "ng-app", "v-app",
		"data-reactroot", "data-react-helmet",
	})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.MaxConcurrent <= 0 {
		return fmt.Errorf("scraper.max_concurrent must be > 0")
	}
	if c.Scraper.RetryAttempts <= 0 {
		return fmt.Errorf("scraper.retry_attempts must be > 0")
	}
	if c.Scraper.CheapTimeoutSecs <= 0 {
		return fmt.Errorf("scraper.cheap_timeout_seconds must be > 0")
	}
	if c.Scraper.MinConfidenceScore < 0 || c.Scraper.MinConfidenceScore > 1 {
		return fmt.Errorf("scraper.min_confidence_score must be within [0, 1]")
	}
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be > 0")
	}
	if c.Browser.RetryAttempts < 0 {
		return fmt.Errorf("browser.retry_attempts must be >= 0")
	}
	if c.Proxy.MaxUsesPerProxy <= 0 {
		return fmt.Errorf("proxy.max_uses_per_proxy must be > 0")
	}
	if c.API.Enabled && c.API.Port <= 0 {
		return fmt.Errorf("api.port must be > 0 when the api is enabled")
	}
	return nil
}

// CheapTimeout converts the configured cheap-fetch timeout to a duration.
func (c Config) CheapTimeout() time.Duration {
	return time.Duration(c.Scraper.CheapTimeoutSecs) * time.Second
}

// NavTimeout converts the configured browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSecs) * time.Second
}

// RateLimitDelay converts the configured inter-request delay to a duration.
func (c Config) RateLimitDelay() time.Duration {
	return time.Duration(c.Scraper.RateLimitDelaySecs * float64(time.Second))
}
