package store

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func seedLanguages(t *testing.T, path string, names ...string) {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate %s: %v", path, err)
	}
	for _, name := range names {
		if _, err := db.Exec("INSERT INTO language(name) VALUES (?)", name); err != nil {
			t.Fatalf("insert language %q: %v", name, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func languageCount(t *testing.T, l *Live) int {
	t.Helper()
	var n int
	if err := l.QueryRow("SELECT COUNT(*) FROM language").Scan(&n); err != nil {
		t.Fatalf("count languages: %v", err)
	}
	return n
}

func TestLiveReloadsAfterSwap(t *testing.T) {
	dir := t.TempDir()
	livePath := filepath.Join(dir, "live.db")
	seedLanguages(t, livePath, "Go")

	var reloads atomic.Int32
	l, err := OpenLive(livePath, func() { reloads.Add(1) })
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if n := languageCount(t, l); n != 1 {
		t.Fatalf("before swap: got %d languages, want 1", n)
	}

	// Publish a new file over the live path, as the crawler's deploy
	// does: the old handle is pinned to the replaced inode.
	nextPath := filepath.Join(dir, "next.db")
	seedLanguages(t, nextPath, "Go", "Rust")
	if err := os.Rename(nextPath, livePath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	reloaded, err := l.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !reloaded {
		t.Fatal("Check after swap: got reloaded=false, want true")
	}
	if got := reloads.Load(); got != 1 {
		t.Fatalf("onReload calls: got %d, want 1", got)
	}
	if n := languageCount(t, l); n != 2 {
		t.Fatalf("after swap: got %d languages, want 2", n)
	}

	// No further change, no further reload.
	reloaded, err = l.Check()
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if reloaded || reloads.Load() != 1 {
		t.Fatalf("idle Check reloaded: reloaded=%v calls=%d", reloaded, reloads.Load())
	}
}

func TestLiveWatchPicksUpSwap(t *testing.T) {
	dir := t.TempDir()
	livePath := filepath.Join(dir, "live.db")
	seedLanguages(t, livePath, "Go")

	var reloads atomic.Int32
	l, err := OpenLive(livePath, func() { reloads.Add(1) })
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	stop := l.Watch(10 * time.Millisecond)
	t.Cleanup(stop)

	nextPath := filepath.Join(dir, "next.db")
	seedLanguages(t, nextPath, "Go", "Rust")
	if err := os.Rename(nextPath, livePath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("watcher did not reload within 2s of the swap")
	}
	if n := languageCount(t, l); n != 2 {
		t.Fatalf("after watched swap: got %d languages, want 2", n)
	}
}
