package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// CrawlerOverlay is an optional YAML file that overrides crawler settings
// from the environment. Zero values leave the env-derived setting in place.
type CrawlerOverlay struct {
	Schedule       string `yaml:"schedule"`
	MinStars       int    `yaml:"min_stars"`
	RequestTimeout string `yaml:"request_timeout"`
}

// ApplyCrawlerOverlay reads the YAML overlay at path (when non-empty) and
// merges it into cfg. A missing file is an error; an empty path is a no-op.
func ApplyCrawlerOverlay(cfg *EnvConfig, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read crawler config: %w", err)
	}
	var overlay CrawlerOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse crawler config %s: %w", path, err)
	}
	if overlay.Schedule != "" {
		if _, err := cron.ParseStandard(overlay.Schedule); err != nil {
			return fmt.Errorf("crawler config %s: invalid schedule %q: %w", path, overlay.Schedule, err)
		}
		cfg.CrawlSchedule = overlay.Schedule
	}
	if overlay.MinStars > 0 {
		cfg.MinStars = overlay.MinStars
	}
	if overlay.RequestTimeout != "" {
		d, err := time.ParseDuration(overlay.RequestTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("crawler config %s: invalid request_timeout %q", path, overlay.RequestTimeout)
		}
		cfg.RequestTimeout = d
	}
	return nil
}
