// Package query implements the read-only leaderboard query engine:
// static and trending leaderboards, single-repo views, global rank, and
// metric history.
package query

import (
	"database/sql"
	"errors"
	"strings"
)

// PageSize is the fixed leaderboard page size.
const PageSize = 100

// trendingWindows maps trending metric keys to window lengths in seconds.
var trendingWindows = map[string]int64{
	"trending24h": 24 * 3600,
	"trending3d":  3 * 24 * 3600,
	"trending7d":  7 * 24 * 3600,
	"trending30d": 30 * 24 * 3600,
}

// staticMetrics maps static metric keys to their sort columns.
var staticMetrics = map[string]string{
	"stars":          "rl.stars",
	"stargazerCount": "rl.stars",
	"forks":          "rl.forks",
	"forkCount":      "rl.forks",
	"watchers":       "rl.watchers",
	"watchersCount":  "rl.watchers",
	"diskUsage":      "rl.disk_usage",
	"disk_usage":     "rl.disk_usage",
}

// Filters narrows leaderboard queries. All parts compose with AND; zero
// values are no-ops.
type Filters struct {
	// Q is a case-insensitive substring match on nameWithOwner, and on
	// description too when InDescription is set. Whitespace-only Q is
	// ignored.
	Q             string
	InDescription bool
	Language      string
	Topic         string
}

// DB is the read-only query surface the engine needs. Both *sql.DB and
// *store.Live satisfy it; the latter survives deploy swaps of the live
// database file.
type DB interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Engine executes read-only queries against the leaderboard database.
// It is stateless and safe for concurrent use.
type Engine struct {
	db DB
}

// NewEngine creates an Engine over an open database handle.
func NewEngine(db DB) *Engine {
	return &Engine{db: db}
}

// Leaderboard returns one page of the leaderboard for the given metric.
// Static metrics sort by the metric descending; trending metrics sort by
// the star delta over their window. page is 1-based.
func (e *Engine) Leaderboard(metric string, page int, f Filters) ([]RepoView, error) {
	if page < 1 {
		return nil, invalidArg("page must be >= 1, got %d", page)
	}
	if window, ok := trendingWindows[metric]; ok {
		return e.trendingLeaderboard(window, page, f)
	}

	orderExpr, ok := staticMetrics[metric]
	if !ok {
		return nil, invalidArg("unsupported metric: %q", metric)
	}

	where, args := filterConditions(f)
	sqlText := baseSelect(false, "") + where + `
		GROUP BY rl.repo_id
		ORDER BY ` + orderExpr + ` DESC, r.name_with_owner ASC
		LIMIT ? OFFSET ?`
	args = append(args, PageSize, (page-1)*PageSize)

	return e.queryViews(sqlText, args, viewScanner{})
}

// CountLeaderboard returns the number of distinct repos matching the
// filters, independent of metric.
func (e *Engine) CountLeaderboard(f Filters) (int, error) {
	where, args := filterConditions(f)
	sqlText := `
		SELECT COUNT(DISTINCT rl.repo_id) AS cnt
		FROM repo_latest rl
		JOIN repo r ON r.id = rl.repo_id
		LEFT JOIN language lang ON lang.id = rl.primary_language_id
	` + where

	var cnt int
	if err := e.db.QueryRow(sqlText, args...).Scan(&cnt); err != nil {
		return 0, internal("count leaderboard", err)
	}
	return cnt, nil
}

// TotalPages converts a result count to a page count; an empty result
// still has one (empty) page.
func TotalPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// trendingLeaderboard ranks by newStars: the current star count minus
// the count as of the run at the window boundary, floored at zero.
// Repos first observed after the boundary run score zero.
func (e *Engine) trendingLeaderboard(windowSeconds int64, page int, f Filters) ([]RepoView, error) {
	baseRunID, err := e.baseRunForWindow(windowSeconds)
	if err != nil {
		return nil, err
	}

	// The covering segment (start <= base <= end) is unique because
	// segments never overlap; LIMIT 1 just caps the correlated scan.
	extraSelect := `
			MAX(
				rl.stars - COALESCE((
					SELECT h.stars
					FROM repo_metrics_hist h
					WHERE h.repo_id = rl.repo_id
					  AND h.start_run_id <= ?
					  AND h.end_run_id   >= ?
					ORDER BY h.start_run_id DESC
					LIMIT 1
				), rl.stars),
				0
			) AS newStars,`

	where, filterArgs := filterConditions(f)
	sqlText := baseSelect(false, extraSelect) + where + `
		GROUP BY rl.repo_id
		ORDER BY newStars DESC, rl.stars DESC, r.name_with_owner ASC
		LIMIT ? OFFSET ?`

	args := []any{baseRunID, baseRunID}
	args = append(args, filterArgs...)
	args = append(args, PageSize, (page-1)*PageSize)

	return e.queryViews(sqlText, args, viewScanner{withNewStars: true})
}

// baseRunForWindow finds the newest run whose fetched_at is at or before
// (latest fetched_at - window). Returns 0 when no run qualifies.
func (e *Engine) baseRunForWindow(windowSeconds int64) (int64, error) {
	var maxFetchedAt sql.NullInt64
	if err := e.db.QueryRow("SELECT MAX(fetched_at) FROM fetch_run").Scan(&maxFetchedAt); err != nil {
		return 0, internal("trending window: max fetched_at", err)
	}
	if !maxFetchedAt.Valid {
		return 0, nil
	}
	cutoff := maxFetchedAt.Int64 - windowSeconds

	var baseRunID sql.NullInt64
	if err := e.db.QueryRow("SELECT MAX(id) FROM fetch_run WHERE fetched_at <= ?", cutoff).Scan(&baseRunID); err != nil {
		return 0, internal("trending window: base run", err)
	}
	if !baseRunID.Valid {
		return 0, nil
	}
	return baseRunID.Int64, nil
}

// GetRepoLatest returns the current view of a single repo, including its
// global rank.
func (e *Engine) GetRepoLatest(nameWithOwner string) (RepoView, error) {
	sqlText := baseSelect(true, "") + `
		WHERE r.name_with_owner = ?
		GROUP BY rl.repo_id`

	v, err := viewScanner{}.scan(e.db.QueryRow(sqlText, nameWithOwner))
	if errors.Is(err, sql.ErrNoRows) {
		return RepoView{}, notFound("repo not found")
	}
	if err != nil {
		return RepoView{}, internal("get repo latest", err)
	}
	return v, nil
}

// GetGlobalRank returns the 1-based position of the repo under the
// (stars DESC, nameWithOwner ASC) total order.
func (e *Engine) GetGlobalRank(nameWithOwner string) (int64, error) {
	sqlText := `
		SELECT
			(
				SELECT COUNT(*)
				FROM repo_latest rl2
				JOIN repo r2 ON r2.id = rl2.repo_id
				WHERE rl2.stars > rl.stars
				   OR (rl2.stars = rl.stars AND r2.name_with_owner < r.name_with_owner)
			) + 1 AS globalRank
		FROM repo_latest rl
		JOIN repo r ON r.id = rl.repo_id
		WHERE r.name_with_owner = ?`

	var rank int64
	err := e.db.QueryRow(sqlText, nameWithOwner).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("repo not found")
	}
	if err != nil {
		return 0, internal("get global rank", err)
	}
	return rank, nil
}

// HistorySegments returns up to limit history segments for the repo,
// oldest first. A missing repo yields NotFound.
func (e *Engine) HistorySegments(nameWithOwner string, limit int) ([]Segment, error) {
	var repoID int64
	err := e.db.QueryRow("SELECT id FROM repo WHERE name_with_owner = ?", nameWithOwner).Scan(&repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("repo not found")
	}
	if err != nil {
		return nil, internal("history: repo lookup", err)
	}

	rows, err := e.db.Query(`
		SELECT
			rs.fetched_at, re.fetched_at,
			h.stars, h.forks, h.watchers, h.disk_usage
		FROM repo_metrics_hist h
		JOIN fetch_run rs ON rs.id = h.start_run_id
		JOIN fetch_run re ON re.id = h.end_run_id
		WHERE h.repo_id = ?
		ORDER BY h.start_run_id ASC
		LIMIT ?`, repoID, limit)
	if err != nil {
		return nil, internal("history: query segments", err)
	}
	defer rows.Close()

	segments := make([]Segment, 0, 16)
	for rows.Next() {
		var startAt, endAt int64
		var seg Segment
		var disk sql.NullInt64
		if err := rows.Scan(&startAt, &endAt, &seg.Stars, &seg.Forks, &seg.Watchers, &disk); err != nil {
			return nil, internal("history: scan segment", err)
		}
		seg.StartFetchedAt = unixToISO(startAt)
		seg.EndFetchedAt = unixToISO(endAt)
		if disk.Valid {
			seg.DiskUsage = &disk.Int64
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("history: iterate segments", err)
	}
	return segments, nil
}

// Languages lists known language names in alphabetical order.
func (e *Engine) Languages(limit int) ([]string, error) {
	rows, err := e.db.Query("SELECT name FROM language ORDER BY name LIMIT ?", limit)
	if err != nil {
		return nil, internal("languages", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, internal("languages: scan", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TopicCount pairs a topic name with how many repos currently carry it.
type TopicCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TopTopics lists topics by descending current usage.
func (e *Engine) TopTopics(limit int) ([]TopicCount, error) {
	rows, err := e.db.Query(`
		SELECT t.name, COUNT(rtl.repo_id) AS cnt
		FROM topic t
		JOIN repo_topic_latest rtl ON rtl.topic_id = t.id
		GROUP BY t.id
		ORDER BY cnt DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, internal("top topics", err)
	}
	defer rows.Close()

	var out []TopicCount
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, internal("top topics: scan", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// CountRepos returns the total number of repos with a latest row.
func (e *Engine) CountRepos() (int64, error) {
	var cnt int64
	if err := e.db.QueryRow("SELECT COUNT(*) FROM repo_latest").Scan(&cnt); err != nil {
		return 0, internal("count repos", err)
	}
	return cnt, nil
}

// filterConditions assembles the WHERE clause shared by leaderboard and
// count queries.
func filterConditions(f Filters) (string, []any) {
	var where []string
	var args []any

	if f.Language != "" {
		where = append(where, "lang.name = ?")
		args = append(args, f.Language)
	}

	if f.Topic != "" {
		where = append(where, `EXISTS (
			SELECT 1
			FROM repo_topic_latest rtl2
			JOIN topic t2 ON t2.id = rtl2.topic_id
			WHERE rtl2.repo_id = rl.repo_id AND t2.name = ?
		)`)
		args = append(args, f.Topic)
	}

	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + q + "%"
		if f.InDescription {
			where = append(where, "(r.name_with_owner LIKE ? OR r.description LIKE ?)")
			args = append(args, like, like)
		} else {
			where = append(where, "r.name_with_owner LIKE ?")
			args = append(args, like)
		}
	}

	if len(where) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(where, " AND "), args
}

func (e *Engine) queryViews(sqlText string, args []any, vs viewScanner) ([]RepoView, error) {
	rows, err := e.db.Query(sqlText, args...)
	if err != nil {
		return nil, internal("leaderboard query", err)
	}
	defer rows.Close()

	items := make([]RepoView, 0, PageSize)
	for rows.Next() {
		v, err := vs.scan(rows)
		if err != nil {
			return nil, internal("leaderboard scan", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("leaderboard iterate", err)
	}
	return items, nil
}
