package crawl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starboard-io/starboard/internal/ingest"
)

// maxBandResults is GitHub's search result ceiling per query string.
// Once a band fills up, the driver advances the minimum star count and
// issues a fresh query.
const maxBandResults = 1000

// pagePause spaces successive page requests within a band.
const pagePause = 100 * time.Millisecond

// Searcher is the page-fetching dependency of the Driver. *Client
// satisfies it; tests substitute a local server or a fake.
type Searcher interface {
	Search(ctx context.Context, queryString, cursor string) (*SearchPage, error)
}

// Driver walks the search space from minStars upward in star-sorted
// bands of at most maxBandResults repositories, ingesting each band as
// one batch.
type Driver struct {
	client   Searcher
	engine   *ingest.Engine
	minStars int
}

// NewDriver creates a Driver. minStars must be at least 1.
func NewDriver(client Searcher, engine *ingest.Engine, minStars int) *Driver {
	if minStars < 1 {
		minStars = 1
	}
	return &Driver{client: client, engine: engine, minStars: minStars}
}

// Run executes one full crawl pass. It returns when the search space is
// exhausted or on the first error; partial progress up to the failing
// band stays committed.
func (d *Driver) Run(ctx context.Context) error {
	start := time.Now()
	if _, err := d.engine.BeginRun(start.UTC()); err != nil {
		return err
	}
	defer d.engine.FinishRun()

	current := int64(d.minStars)
	var totalFetched int64

	log.Printf("[crawl] starting pass for repos with >= %d stars", current)

	for {
		queryString := fmt.Sprintf("stars:>=%d sort:stars-asc", current)

		batch, lastStars, fetched, err := d.fetchBand(ctx, queryString)
		if err != nil {
			return err
		}
		if fetched == 0 {
			break
		}
		totalFetched += fetched

		if err := d.engine.Ingest(batch); err != nil {
			return err
		}

		if lastStars == current {
			current++
		} else {
			current = lastStars
		}
	}

	log.Printf("[crawl] pass complete: %s nodes in %s",
		humanize.Comma(totalFetched), time.Since(start).Round(time.Second))
	return nil
}

// fetchBand pages through one band. It returns the decoded snapshots,
// the star count of the last node seen, and the raw node count.
func (d *Driver) fetchBand(ctx context.Context, queryString string) ([]ingest.Snapshot, int64, int64, error) {
	log.Printf("[crawl] querying band %q", queryString)

	var (
		batch     []ingest.Snapshot
		lastStars int64
		fetched   int64
		cursor    string
	)

	for {
		if err := sleepCtx(ctx, pagePause); err != nil {
			return nil, 0, 0, err
		}
		page, err := d.client.Search(ctx, queryString, cursor)
		if err != nil {
			return nil, 0, 0, err
		}
		if len(page.Nodes) == 0 {
			break
		}

		for _, n := range page.Nodes {
			lastStars = n.StargazerCount
			if s, ok := ingest.SnapshotFromNode(n); ok {
				batch = append(batch, s)
			}
		}
		fetched += int64(len(page.Nodes))

		log.Printf("[crawl]   fetched %d nodes (band total %s), last stars %s",
			len(page.Nodes), humanize.Comma(fetched), humanize.Comma(lastStars))

		if !page.HasNextPage || fetched >= maxBandResults {
			break
		}
		cursor = page.EndCursor
	}

	return batch, lastStars, fetched, nil
}
