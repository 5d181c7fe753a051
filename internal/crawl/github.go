// Package crawl drives full leaderboard refreshes: it walks the GitHub
// search API from a minimum star count upward, feeds batches to the
// ingestion engine, and swaps the result into place for the API server.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starboard-io/starboard/internal/ingest"
)

const (
	// GraphQLEndpoint is GitHub's GraphQL API endpoint.
	GraphQLEndpoint = "https://api.github.com/graphql"

	// maxAttempts bounds retries for server and network errors per page.
	maxAttempts = 10

	// lowQuotaThreshold triggers a sleep until the quota resets. The page
	// already fetched is still returned.
	lowQuotaThreshold = 10

	// resetMargin is added to every quota-reset sleep.
	resetMargin = 5 * time.Second
)

const searchQueryDoc = `
query($queryString: String!, $cursor: String) {
  rateLimit {
    remaining
    resetAt
  }
  search(query: $queryString, type: REPOSITORY, first: 100, after: $cursor) {
    repositoryCount
    pageInfo {
      endCursor
      hasNextPage
    }
    nodes {
      ... on Repository {
        databaseId
        nameWithOwner
        stargazerCount
        forkCount
        description
        watchers { totalCount }
        homepageUrl
        createdAt
        updatedAt
        pushedAt
        isArchived
        diskUsage
        primaryLanguage {
          name
        }
        repositoryTopics(first: 20) {
          nodes {
            topic { name }
          }
        }
      }
    }
  }
}
`

// Client executes repository searches against the GitHub GraphQL API.
// It absorbs rate limits by sleeping and retries server errors with
// exponential backoff.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a Client. An empty token sends unauthenticated
// requests, which GitHub throttles aggressively.
func NewClient(token string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   GraphQLEndpoint,
		token:      token,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// SearchPage is one page of search results.
type SearchPage struct {
	RepositoryCount int64
	EndCursor       string
	HasNextPage     bool
	Nodes           []ingest.Node
}

type graphQLResponse struct {
	Data *struct {
		RateLimit *struct {
			Remaining int64  `json:"remaining"`
			ResetAt   string `json:"resetAt"`
		} `json:"rateLimit"`
		Search *struct {
			RepositoryCount int64 `json:"repositoryCount"`
			PageInfo        struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
			Nodes []ingest.Node `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Search fetches one page for the given search string. Rate-limit sleeps
// happen inside the attempt; server and network errors are retried up to
// maxAttempts with exponential backoff; other HTTP failures are terminal.
func (c *Client) Search(ctx context.Context, queryString, cursor string) (*SearchPage, error) {
	var page *SearchPage
	operation := func() error {
		p, err := c.searchOnce(ctx, queryString, cursor)
		if err != nil {
			return err
		}
		page = p
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return page, nil
}

// searchOnce performs one attempt. Rate-limit conditions sleep and loop
// without consuming a backoff attempt.
func (c *Client) searchOnce(ctx context.Context, queryString, cursor string) (*SearchPage, error) {
	for {
		status, header, body, err := c.post(ctx, queryString, cursor)
		if err != nil {
			return nil, fmt.Errorf("search request: %w", err)
		}

		if status == http.StatusForbidden && header.Get("X-RateLimit-Remaining") == "0" {
			d := resetMargin
			if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
				d = time.Until(time.Unix(reset, 0)) + resetMargin
			}
			log.Printf("[crawl] HTTP rate limit hit, sleeping %s", d.Round(time.Second))
			if err := quotaSleep(ctx, d); err != nil {
				return nil, backoff.Permanent(err)
			}
			continue
		}
		if status >= 500 && status <= 504 {
			return nil, fmt.Errorf("upstream error: status %d", status)
		}
		if status != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("search failed: status %d: %s", status, truncate(string(body), 200)))
		}

		var resp graphQLResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}

		if len(resp.Errors) > 0 {
			if hasRateLimitedError(resp.Errors) {
				log.Printf("[crawl] GraphQL rate limit error, sleeping 60s")
				if err := sleepCtx(ctx, time.Minute); err != nil {
					return nil, backoff.Permanent(err)
				}
				continue
			}
			return nil, backoff.Permanent(fmt.Errorf("graphql errors: %s", resp.Errors[0].Message))
		}
		if resp.Data == nil || resp.Data.Search == nil {
			return nil, fmt.Errorf("search response missing data")
		}

		page := &SearchPage{
			RepositoryCount: resp.Data.Search.RepositoryCount,
			EndCursor:       resp.Data.Search.PageInfo.EndCursor,
			HasNextPage:     resp.Data.Search.PageInfo.HasNextPage,
			Nodes:           resp.Data.Search.Nodes,
		}

		// Low remaining quota: sleep through the reset, but hand the page
		// already fetched back to the caller first.
		if rl := resp.Data.RateLimit; rl != nil && rl.Remaining < lowQuotaThreshold {
			if resetAt, err := time.Parse(time.RFC3339, rl.ResetAt); err == nil {
				d := time.Until(resetAt) + resetMargin
				log.Printf("[crawl] quota low (%d remaining), sleeping %s", rl.Remaining, d.Round(time.Second))
				if err := quotaSleep(ctx, d); err != nil {
					return nil, backoff.Permanent(err)
				}
			}
		}
		return page, nil
	}
}

func (c *Client) post(ctx context.Context, queryString, cursor string) (int, http.Header, []byte, error) {
	payload := map[string]any{
		"query": searchQueryDoc,
		"variables": map[string]any{
			"queryString": queryString,
			"cursor":      nullableString(cursor),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

func hasRateLimitedError(errs []graphQLError) bool {
	for _, e := range errs {
		if e.Type == "RATE_LIMITED" || strings.Contains(e.Message, "RATE_LIMITED") {
			return true
		}
	}
	return false
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// quotaSleep is sleepCtx with a one second floor, for quota-reset waits
// computed from possibly stale clock data.
func quotaSleep(ctx context.Context, d time.Duration) error {
	if d < time.Second {
		d = time.Second
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
