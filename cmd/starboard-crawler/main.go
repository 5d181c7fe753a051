package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/starboard-io/starboard/internal/config"
	"github.com/starboard-io/starboard/internal/crawl"
	"github.com/starboard-io/starboard/internal/ingest"
	"github.com/starboard-io/starboard/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single crawl pass and exit")
	flag.Parse()

	cfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyCrawlerOverlay(cfg, cfg.CrawlerConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if cfg.GitHubToken == "" {
		log.Printf("STARBOARD_GITHUB_TOKEN is empty; unauthenticated requests are heavily throttled")
	}

	pass := func(ctx context.Context) {
		if err := runPass(ctx, cfg); err != nil {
			log.Printf("[crawl] pass failed: %v", err)
		}
	}

	if *once {
		pass(context.Background())
		return
	}

	sched, err := crawl.NewScheduler(cfg.CrawlSchedule, pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid schedule %q: %v\n", cfg.CrawlSchedule, err)
		os.Exit(1)
	}
	sched.Start()
	log.Printf("[crawl] scheduler started: %q (UTC)", cfg.CrawlSchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)
	sched.Stop()
	log.Println("Scheduler stopped")
}

// runPass executes one crawl into the staging database and publishes the
// result to the live path.
func runPass(ctx context.Context, cfg *config.EnvConfig) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.Open(cfg.StagingDBPath())
	if err != nil {
		return fmt.Errorf("open staging: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate staging: %w", err)
	}

	engine := ingest.NewEngine(db)
	client := crawl.NewClient(cfg.GitHubToken, cfg.RequestTimeout)
	driver := crawl.NewDriver(client, engine, cfg.MinStars)

	runErr := driver.Run(ctx)
	engine.Close()
	if err := db.Close(); err != nil {
		return fmt.Errorf("close staging: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	return crawl.Deploy(cfg.StagingDBPath(), cfg.LiveDBPath())
}
