package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadEnvConfigDefaults(t *testing.T) {
	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("LoadEnvConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port: got %d, want 8080", cfg.Port)
	}
	if cfg.CacheCapacity != 10_000 {
		t.Fatalf("CacheCapacity: got %d, want 10000", cfg.CacheCapacity)
	}
	if cfg.ReloadInterval != 15*time.Second {
		t.Fatalf("ReloadInterval: got %s, want 15s", cfg.ReloadInterval)
	}
	if cfg.CrawlSchedule != "0 0,6,12,18 * * *" {
		t.Fatalf("CrawlSchedule: got %q", cfg.CrawlSchedule)
	}
	if cfg.MinStars != 100 {
		t.Fatalf("MinStars: got %d, want 100", cfg.MinStars)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout: got %s, want 15s", cfg.RequestTimeout)
	}
	if !strings.HasSuffix(cfg.LiveDBPath(), "starboard.db") {
		t.Fatalf("LiveDBPath: got %q", cfg.LiveDBPath())
	}
	if !strings.HasSuffix(cfg.StagingDBPath(), "starboard.staging.db") {
		t.Fatalf("StagingDBPath: got %q", cfg.StagingDBPath())
	}
}

func TestLoadEnvConfigOverrides(t *testing.T) {
	t.Setenv("STARBOARD_DATA_DIR", "/tmp/sb")
	t.Setenv("STARBOARD_PORT", "9090")
	t.Setenv("STARBOARD_MIN_STARS", "500")
	t.Setenv("STARBOARD_REQUEST_TIMEOUT", "30s")
	t.Setenv("STARBOARD_CRAWL_SCHEDULE", "0 */2 * * *")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("LoadEnvConfig: %v", err)
	}
	if cfg.DataDir != "/tmp/sb" || cfg.Port != 9090 || cfg.MinStars != 500 {
		t.Fatalf("overrides: got %+v", cfg)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout: got %s, want 30s", cfg.RequestTimeout)
	}
	if cfg.LiveDBPath() != "/tmp/sb/starboard.db" {
		t.Fatalf("LiveDBPath: got %q", cfg.LiveDBPath())
	}
}

func TestLoadEnvConfigAccumulatesErrors(t *testing.T) {
	t.Setenv("STARBOARD_PORT", "70000")
	t.Setenv("STARBOARD_MIN_STARS", "-3")
	t.Setenv("STARBOARD_CRAWL_SCHEDULE", "not a cron line")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("LoadEnvConfig: got nil error")
	}
	msg := err.Error()
	for _, want := range []string{"STARBOARD_PORT", "STARBOARD_MIN_STARS", "STARBOARD_CRAWL_SCHEDULE"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %s", msg, want)
		}
	}
}

func TestApplyCrawlerOverlay(t *testing.T) {
	cfg := &EnvConfig{
		CrawlSchedule:  "0 0,6,12,18 * * *",
		MinStars:       100,
		RequestTimeout: 15 * time.Second,
	}

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	overlay := "schedule: \"0 */4 * * *\"\nmin_stars: 250\nrequest_timeout: 20s\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	if err := ApplyCrawlerOverlay(cfg, path); err != nil {
		t.Fatalf("ApplyCrawlerOverlay: %v", err)
	}
	if cfg.CrawlSchedule != "0 */4 * * *" || cfg.MinStars != 250 || cfg.RequestTimeout != 20*time.Second {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
}

func TestApplyCrawlerOverlayPartial(t *testing.T) {
	cfg := &EnvConfig{
		CrawlSchedule:  "0 0,6,12,18 * * *",
		MinStars:       100,
		RequestTimeout: 15 * time.Second,
	}

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	if err := os.WriteFile(path, []byte("min_stars: 42\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	if err := ApplyCrawlerOverlay(cfg, path); err != nil {
		t.Fatalf("ApplyCrawlerOverlay: %v", err)
	}
	if cfg.MinStars != 42 {
		t.Fatalf("MinStars: got %d, want 42", cfg.MinStars)
	}
	if cfg.CrawlSchedule != "0 0,6,12,18 * * *" || cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("untouched fields changed: %+v", cfg)
	}
}

func TestApplyCrawlerOverlayRejectsBadInput(t *testing.T) {
	cfg := &EnvConfig{CrawlSchedule: "0 0 * * *"}

	if err := ApplyCrawlerOverlay(cfg, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file: got nil error")
	}

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	if err := os.WriteFile(path, []byte("schedule: \"99 99 * *\"\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	if err := ApplyCrawlerOverlay(cfg, path); err == nil {
		t.Fatal("invalid schedule: got nil error")
	}

	// An empty path is a no-op.
	if err := ApplyCrawlerOverlay(cfg, ""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}
