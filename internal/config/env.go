// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	DataDir string

	// Network
	ListenAddress string
	Port          int

	// API
	CacheCapacity  int
	ReloadInterval time.Duration

	// Crawler
	GitHubToken       string
	CrawlSchedule     string
	MinStars          int
	RequestTimeout    time.Duration
	CrawlerConfigPath string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid; all problems are reported at once.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.DataDir = envStr("STARBOARD_DATA_DIR", "/var/lib/starboard")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("STARBOARD_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("STARBOARD_PORT", 8080, &errs)

	// --- API ---
	cfg.CacheCapacity = envInt("STARBOARD_CACHE_CAPACITY", 10_000, &errs)
	cfg.ReloadInterval = envDuration("STARBOARD_RELOAD_INTERVAL", 15*time.Second, &errs)

	// --- Crawler ---
	cfg.GitHubToken = envStr("STARBOARD_GITHUB_TOKEN", "")
	cfg.CrawlSchedule = envStr("STARBOARD_CRAWL_SCHEDULE", "0 0,6,12,18 * * *")
	cfg.MinStars = envInt("STARBOARD_MIN_STARS", 100, &errs)
	cfg.RequestTimeout = envDuration("STARBOARD_REQUEST_TIMEOUT", 15*time.Second, &errs)
	cfg.CrawlerConfigPath = envStr("STARBOARD_CRAWLER_CONFIG", "")

	// --- Validation ---
	if cfg.DataDir == "" {
		errs = append(errs, "STARBOARD_DATA_DIR must not be empty")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "STARBOARD_LISTEN_ADDRESS must not be empty")
	}
	validatePort("STARBOARD_PORT", cfg.Port, &errs)
	validatePositive("STARBOARD_CACHE_CAPACITY", cfg.CacheCapacity, &errs)
	if cfg.ReloadInterval <= 0 {
		errs = append(errs, "STARBOARD_RELOAD_INTERVAL must be positive")
	}
	validatePositive("STARBOARD_MIN_STARS", cfg.MinStars, &errs)
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "STARBOARD_REQUEST_TIMEOUT must be positive")
	}
	if _, err := cron.ParseStandard(cfg.CrawlSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("STARBOARD_CRAWL_SCHEDULE: invalid cron expression %q: %v", cfg.CrawlSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// LiveDBPath is the SQLite file the API server reads.
func (c *EnvConfig) LiveDBPath() string {
	return c.DataDir + "/starboard.db"
}

// StagingDBPath is the SQLite file a crawl pass writes before the swap.
func (c *EnvConfig) StagingDBPath() string {
	return c.DataDir + "/starboard.staging.db"
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
