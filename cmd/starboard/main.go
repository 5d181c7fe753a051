package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/starboard-io/starboard/internal/api"
	"github.com/starboard-io/starboard/internal/buildinfo"
	"github.com/starboard-io/starboard/internal/config"
	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/respcache"
	"github.com/starboard-io/starboard/internal/store"
)

func main() {
	// 1. Load and validate environment config
	cfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. Wire the response cache first: a deploy swap must purge it.
	cache := respcache.New(cfg.CacheCapacity)
	defer cache.Close()

	// 3. Open the live database read-only; reopen when the crawler swaps
	// a new file over the live path.
	db, err := store.OpenLive(cfg.LiveDBPath(), func() {
		cache.Clear()
		log.Printf("[cache] cleared after live db reload")
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: open %s: %v\n", cfg.LiveDBPath(), err)
		os.Exit(1)
	}
	defer db.Close()
	stopWatch := db.Watch(cfg.ReloadInterval)
	defer stopWatch()

	q := query.NewEngine(db)

	// 4. Create and start API server
	srv := api.NewServer(cfg.ListenAddress, cfg.Port, q, cache)

	go func() {
		log.Printf("Starboard %s (%s) serving on %s:%d",
			buildinfo.Version, buildinfo.GitCommit, cfg.ListenAddress, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
