package crawl

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/store"
)

// Deploy publishes the crawl database at stagingPath to livePath. The
// staging file is copied to a temp file next to the live one and swapped
// in with a rename, so API readers never observe a partial file. The
// staging database itself is kept: it accumulates history across passes.
func Deploy(stagingPath, livePath string) error {
	if err := logSummary(stagingPath); err != nil {
		return err
	}

	tmpPath := livePath + ".tmp"
	if err := copyFile(stagingPath, tmpPath); err != nil {
		return fmt.Errorf("deploy: stage copy: %w", err)
	}
	if err := os.Rename(tmpPath, livePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("deploy: swap: %w", err)
	}

	log.Printf("[deploy] published %s -> %s", stagingPath, livePath)
	return nil
}

// logSummary logs repo, language and topic totals for the database about
// to go live.
func logSummary(path string) error {
	db, err := store.OpenReadOnly(path)
	if err != nil {
		return fmt.Errorf("deploy: open staging: %w", err)
	}
	defer db.Close()

	q := query.NewEngine(db)

	total, err := q.CountRepos()
	if err != nil {
		return fmt.Errorf("deploy: count repos: %w", err)
	}
	languages, err := q.Languages(5000)
	if err != nil {
		return fmt.Errorf("deploy: languages: %w", err)
	}
	topics, err := q.TopTopics(500)
	if err != nil {
		return fmt.Errorf("deploy: topics: %w", err)
	}

	log.Printf("[deploy] staging database: %s repos, %d languages, %d topics",
		humanize.Comma(total), len(languages), len(topics))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
