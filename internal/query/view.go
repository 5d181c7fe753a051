package query

import (
	"database/sql"
	"strings"
	"time"
)

// topicSeparator joins topic names inside GROUP_CONCAT; char(31) in SQL.
const topicSeparator = "\x1f"

// RepoView is the wire shape for a single repository. Keys are compact
// to minimize payload size.
type RepoView struct {
	NameWithOwner string   `json:"n"`
	GlobalRank    *int64   `json:"g"`
	Stars         int64    `json:"s"`
	Forks         int64    `json:"f"`
	Watchers      int64    `json:"w"`
	DiskUsage     *int64   `json:"d"`
	Description   *string  `json:"a"`
	HomepageURL   *string  `json:"h"`
	CreatedAt     *string  `json:"c"`
	PushedAt      *string  `json:"p"`
	IsArchived    bool     `json:"i"`
	Language      *string  `json:"l"`
	Topics        []string `json:"t"`
	NewStars      int64    `json:"ns,omitempty"`
}

// Segment is one run-length-encoded metric history interval.
type Segment struct {
	StartFetchedAt string `json:"startFetchedAt"`
	EndFetchedAt   string `json:"endFetchedAt"`
	Stars          int64  `json:"s"`
	Forks          int64  `json:"f"`
	Watchers       int64  `json:"w"`
	DiskUsage      *int64 `json:"d"`
}

// baseSelect builds the shared repo_latest projection. includeRank adds
// a window-function join computing the global stars rank; extraSelect is
// spliced after the stars column (used for the trending delta).
func baseSelect(includeRank bool, extraSelect string) string {
	rankSelect := "NULL              AS globalRank,"
	rankJoin := ""
	if includeRank {
		rankSelect = "gr.globalRank     AS globalRank,"
		rankJoin = `
		JOIN (
			SELECT
				rl2.repo_id AS repo_id,
				ROW_NUMBER() OVER (ORDER BY rl2.stars DESC, r2.name_with_owner ASC) AS globalRank
			FROM repo_latest rl2
			JOIN repo r2 ON r2.id = rl2.repo_id
		) gr ON gr.repo_id = rl.repo_id`
	}
	return `
		SELECT
			r.name_with_owner AS nameWithOwner,
			` + rankSelect + `
			rl.stars          AS stargazerCount,
			` + extraSelect + `
			rl.forks          AS forkCount,
			rl.watchers       AS watchersCount,
			rl.disk_usage     AS diskUsage,
			r.description     AS description,
			r.homepage_url    AS homepageUrl,
			r.created_at      AS createdAtUnix,
			rl.pushed_at      AS pushedAtUnix,
			rl.is_archived    AS isArchived,
			lang.name         AS primaryLanguage,
			GROUP_CONCAT(t.name, char(31)) AS topicsConcat
		FROM repo_latest rl
		JOIN repo r ON r.id = rl.repo_id` + rankJoin + `
		JOIN fetch_run fr ON fr.id = rl.run_id
		LEFT JOIN language lang ON lang.id = rl.primary_language_id
		LEFT JOIN repo_topic_latest rtl ON rtl.repo_id = rl.repo_id
		LEFT JOIN topic t ON t.id = rtl.topic_id
	`
}

// viewScanner scans base-projection rows into RepoViews. withNewStars
// must match whether the query spliced the trending column in.
type viewScanner struct {
	withNewStars bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (vs viewScanner) scan(row rowScanner) (RepoView, error) {
	var (
		v            RepoView
		rank         sql.NullInt64
		newStars     sql.NullInt64
		disk         sql.NullInt64
		desc         sql.NullString
		homepage     sql.NullString
		createdAt    sql.NullInt64
		pushedAt     sql.NullInt64
		archived     int64
		lang         sql.NullString
		topicsConcat sql.NullString
	)

	dest := []any{&v.NameWithOwner, &rank, &v.Stars}
	if vs.withNewStars {
		dest = append(dest, &newStars)
	}
	dest = append(dest,
		&v.Forks, &v.Watchers, &disk,
		&desc, &homepage, &createdAt, &pushedAt,
		&archived, &lang, &topicsConcat,
	)
	if err := row.Scan(dest...); err != nil {
		return RepoView{}, err
	}

	if rank.Valid {
		v.GlobalRank = &rank.Int64
	}
	if newStars.Valid {
		v.NewStars = newStars.Int64
	}
	if disk.Valid {
		v.DiskUsage = &disk.Int64
	}
	if desc.Valid {
		v.Description = &desc.String
	}
	if homepage.Valid {
		v.HomepageURL = &homepage.String
	}
	if createdAt.Valid {
		s := unixToISO(createdAt.Int64)
		v.CreatedAt = &s
	}
	if pushedAt.Valid {
		s := unixToISO(pushedAt.Int64)
		v.PushedAt = &s
	}
	v.IsArchived = archived != 0
	if lang.Valid {
		v.Language = &lang.String
	}
	v.Topics = splitTopics(topicsConcat)
	return v, nil
}

func splitTopics(concat sql.NullString) []string {
	if !concat.Valid || concat.String == "" {
		return []string{}
	}
	parts := strings.Split(concat.String, topicSeparator)
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			topics = append(topics, p)
		}
	}
	return topics
}

// unixToISO renders Unix seconds as RFC3339 UTC with a Z suffix.
func unixToISO(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
