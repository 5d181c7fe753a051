package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Live is a read-only handle to the live database that survives deploy
// swaps. The crawler publishes by renaming a fresh file over the live
// path, which leaves existing connections pinned to the old inode; Live
// detects the replacement and reopens, so readers move to the new file
// without a process restart.
type Live struct {
	path     string
	onReload func()

	mu   sync.RWMutex
	db   *sql.DB
	info os.FileInfo
}

// OpenLive opens the live database read-only. onReload runs after every
// successful reopen (the server uses it to purge the response cache);
// it may be nil.
func OpenLive(path string, onReload func()) (*Live, error) {
	db, err := OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &Live{path: path, onReload: onReload, db: db, info: info}, nil
}

// Query runs a query against the current handle.
func (l *Live) Query(query string, args ...any) (*sql.Rows, error) {
	return l.current().Query(query, args...)
}

// QueryRow runs a single-row query against the current handle.
func (l *Live) QueryRow(query string, args ...any) *sql.Row {
	return l.current().QueryRow(query, args...)
}

func (l *Live) current() *sql.DB {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db
}

// Check reopens the handle when the file at the live path has been
// replaced or rewritten since the last open. It reports whether a
// reload happened. A stat failure (mid-swap window) leaves the current
// handle in place.
func (l *Live) Check() (bool, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", l.path, err)
	}

	l.mu.RLock()
	same := os.SameFile(l.info, info) &&
		l.info.ModTime().Equal(info.ModTime()) &&
		l.info.Size() == info.Size()
	l.mu.RUnlock()
	if same {
		return false, nil
	}

	db, err := OpenReadOnly(l.path)
	if err != nil {
		return false, fmt.Errorf("reopen %s: %w", l.path, err)
	}

	l.mu.Lock()
	old := l.db
	l.db = db
	l.info = info
	l.mu.Unlock()

	// In-flight queries hold their connections; Close waits for them.
	go old.Close()

	if l.onReload != nil {
		l.onReload()
	}
	return true, nil
}

// Watch polls for a swapped live file at the given interval. The
// returned stop function ends the loop.
func (l *Live) Watch(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				reloaded, err := l.Check()
				if err != nil {
					log.Printf("[store] live db check: %v", err)
					continue
				}
				if reloaded {
					log.Printf("[store] live db replaced, reopened %s", l.path)
				}
			}
		}
	}()
	return func() { close(done) }
}

// Close closes the current handle.
func (l *Live) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
