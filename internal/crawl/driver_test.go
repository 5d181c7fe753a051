package crawl

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/starboard-io/starboard/internal/ingest"
	"github.com/starboard-io/starboard/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("store.Migrate: %v", err)
	}
	return db
}

// scriptedSearcher replays canned pages keyed by query string, recording
// the order of queries seen.
type scriptedSearcher struct {
	pages   map[string][]*SearchPage
	index   map[string]int
	queries []string
}

func (s *scriptedSearcher) Search(_ context.Context, queryString, cursor string) (*SearchPage, error) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if cursor == "" {
		s.queries = append(s.queries, queryString)
	}
	pages := s.pages[queryString]
	i := s.index[queryString]
	if i >= len(pages) {
		return &SearchPage{}, nil
	}
	s.index[queryString]++
	return pages[i], nil
}

func nodes(startID int64, stars ...int64) []ingest.Node {
	out := make([]ingest.Node, 0, len(stars))
	for i, s := range stars {
		id := startID + int64(i)
		out = append(out, ingest.Node{
			DatabaseID:     &id,
			NameWithOwner:  fmt.Sprintf("org/repo-%d", id),
			StargazerCount: s,
		})
	}
	return out
}

func TestDriverWalksBands(t *testing.T) {
	db := newTestDB(t)
	engine := ingest.NewEngine(db)

	searcher := &scriptedSearcher{pages: map[string][]*SearchPage{
		// First band: last repo has 5 stars, so the next band starts at 5.
		"stars:>=1 sort:stars-asc": {
			{Nodes: nodes(100, 1, 2, 5), HasNextPage: false},
		},
		// Second band: the last star count equals the current minimum, so
		// the driver bumps the minimum by one.
		"stars:>=5 sort:stars-asc": {
			{Nodes: nodes(200, 5, 5), HasNextPage: false},
		},
		// Third band: empty, the walk ends.
		"stars:>=6 sort:stars-asc": {},
	}}

	d := NewDriver(searcher, engine, 1)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantQueries := []string{
		"stars:>=1 sort:stars-asc",
		"stars:>=5 sort:stars-asc",
		"stars:>=6 sort:stars-asc",
	}
	if len(searcher.queries) != len(wantQueries) {
		t.Fatalf("queries: got %v, want %v", searcher.queries, wantQueries)
	}
	for i := range wantQueries {
		if searcher.queries[i] != wantQueries[i] {
			t.Fatalf("query %d: got %q, want %q", i, searcher.queries[i], wantQueries[i])
		}
	}

	var repos int
	if err := db.QueryRow("SELECT COUNT(*) FROM repo").Scan(&repos); err != nil {
		t.Fatalf("count repos: %v", err)
	}
	if repos != 5 {
		t.Fatalf("repos: got %d, want 5", repos)
	}

	// A pass opens exactly one fetch_run.
	var runs int
	if err := db.QueryRow("SELECT COUNT(*) FROM fetch_run").Scan(&runs); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runs != 1 {
		t.Fatalf("fetch runs: got %d, want 1", runs)
	}
}

func TestDriverFollowsCursors(t *testing.T) {
	db := newTestDB(t)
	engine := ingest.NewEngine(db)

	searcher := &scriptedSearcher{pages: map[string][]*SearchPage{
		"stars:>=1 sort:stars-asc": {
			{Nodes: nodes(100, 1, 1), HasNextPage: true, EndCursor: "c1"},
			{Nodes: nodes(200, 2, 3), HasNextPage: false},
		},
		"stars:>=3 sort:stars-asc": {},
	}}

	d := NewDriver(searcher, engine, 1)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var repos int
	if err := db.QueryRow("SELECT COUNT(*) FROM repo").Scan(&repos); err != nil {
		t.Fatalf("count repos: %v", err)
	}
	if repos != 4 {
		t.Fatalf("repos: got %d, want 4 (both pages of the band ingested)", repos)
	}
}

func TestDriverClampsMinStars(t *testing.T) {
	d := NewDriver(&scriptedSearcher{}, ingest.NewEngine(newTestDB(t)), 0)
	if d.minStars != 1 {
		t.Fatalf("minStars: got %d, want clamped to 1", d.minStars)
	}
}
