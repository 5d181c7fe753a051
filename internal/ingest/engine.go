package ingest

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// inClauseChunk bounds the number of bound parameters per IN (...) query.
const inClauseChunk = 500

// Engine is the single writer for the leaderboard database. One ingestion
// pass spans one or more Ingest calls; the first call lazily opens a
// fetch_run row and every batch in the pass reuses its id. FinishRun (or
// Close) ends the pass; the next Ingest starts a new one.
//
// At most one Engine may be active against a given database file.
type Engine struct {
	db *sql.DB

	runID     int64 // 0 = no active pass
	processed *xsync.Map[int64, struct{}]

	// Interning caches. Not coherent across processes; the unique
	// constraints on language.name and topic.name are authoritative.
	langIDs  *xsync.Map[string, int64]
	topicIDs *xsync.Map[string, int64]
}

// NewEngine creates an Engine over an open, migrated writer handle.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		db:        db,
		processed: xsync.NewMap[int64, struct{}](),
		langIDs:   xsync.NewMap[string, int64](),
		topicIDs:  xsync.NewMap[string, int64](),
	}
}

// BeginRun opens the fetch_run row for the current pass if none is
// active and returns its id. Subsequent calls within the pass return the
// same id and ignore fetchedAt.
func (e *Engine) BeginRun(fetchedAt time.Time) (int64, error) {
	if e.runID != 0 {
		return e.runID, nil
	}
	res, err := e.db.Exec("INSERT INTO fetch_run(fetched_at) VALUES (?)", fetchedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("ingest: begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ingest: begin run id: %w", err)
	}
	e.runID = id
	return id, nil
}

// FinishRun ends the current pass. The processed-ids set is reset so the
// next pass observes every repo again.
func (e *Engine) FinishRun() {
	e.runID = 0
	e.processed = xsync.NewMap[int64, struct{}]()
}

// Close ends the current pass. The database handle belongs to the caller
// and stays open.
func (e *Engine) Close() error {
	e.FinishRun()
	return nil
}

// Ingest writes one batch of snapshots. Malformed snapshots and repos
// already processed in this pass are dropped. All writes for the batch
// execute in a single transaction; on error the batch rolls back and
// previously committed batches remain durable.
func (e *Engine) Ingest(batch []Snapshot) error {
	runID, err := e.BeginRun(time.Now().UTC())
	if err != nil {
		return err
	}

	fresh := make([]Snapshot, 0, len(batch))
	for _, s := range batch {
		if s.ID <= 0 || strings.TrimSpace(s.NameWithOwner) == "" {
			continue
		}
		if _, dup := e.processed.LoadOrStore(s.ID, struct{}{}); dup {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil
	}

	// Intern languages and topics up front, outside the batch
	// transaction. Both tables are append-only, so rows surviving a
	// failed batch are harmless.
	langID := make(map[int64]sql.NullInt64, len(fresh))
	topicIDs := make(map[int64][]int64, len(fresh))
	for _, s := range fresh {
		var lid sql.NullInt64
		if s.PrimaryLanguage != nil {
			id, err := e.languageID(*s.PrimaryLanguage)
			if err != nil {
				return err
			}
			lid = sql.NullInt64{Int64: id, Valid: true}
		}
		langID[s.ID] = lid

		for _, name := range s.Topics {
			id, err := e.topicID(name)
			if err != nil {
				return err
			}
			topicIDs[s.ID] = append(topicIDs[s.ID], id)
		}
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("ingest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := resolveNameConflicts(tx, fresh); err != nil {
		return err
	}
	if err := upsertRepos(tx, fresh); err != nil {
		return err
	}

	ids := make([]int64, 0, len(fresh))
	for _, s := range fresh {
		ids = append(ids, s.ID)
	}
	existing, err := fetchLatestMetrics(tx, ids)
	if err != nil {
		return err
	}

	if err := writeMetrics(tx, runID, fresh, existing, langID); err != nil {
		return err
	}
	if err := refreshTopics(tx, fresh, topicIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ingest: commit batch: %w", err)
	}
	log.Printf("[ingest] run=%d batch committed: %d repos", runID, len(fresh))
	return nil
}

// resolveNameConflicts disassociates any existing repo that holds a
// batch snapshot's nameWithOwner under a different id: its latest and
// topic rows are deleted and its name is rewritten to
// "{old}-renamed-{id}". Historical segments stay under the losing id.
func resolveNameConflicts(tx *sql.Tx, fresh []Snapshot) error {
	delLatest, err := tx.Prepare(`DELETE FROM repo_latest
		WHERE repo_id IN (SELECT id FROM repo WHERE name_with_owner = ? AND id != ?)`)
	if err != nil {
		return fmt.Errorf("ingest: prepare conflict latest delete: %w", err)
	}
	defer delLatest.Close()

	delTopics, err := tx.Prepare(`DELETE FROM repo_topic_latest
		WHERE repo_id IN (SELECT id FROM repo WHERE name_with_owner = ? AND id != ?)`)
	if err != nil {
		return fmt.Errorf("ingest: prepare conflict topic delete: %w", err)
	}
	defer delTopics.Close()

	rename, err := tx.Prepare(`UPDATE repo
		SET name_with_owner = name_with_owner || '-renamed-' || id
		WHERE name_with_owner = ? AND id != ?`)
	if err != nil {
		return fmt.Errorf("ingest: prepare conflict rename: %w", err)
	}
	defer rename.Close()

	for _, s := range fresh {
		if _, err := delLatest.Exec(s.NameWithOwner, s.ID); err != nil {
			return fmt.Errorf("ingest: conflict latest delete %q: %w", s.NameWithOwner, err)
		}
		if _, err := delTopics.Exec(s.NameWithOwner, s.ID); err != nil {
			return fmt.Errorf("ingest: conflict topic delete %q: %w", s.NameWithOwner, err)
		}
		if _, err := rename.Exec(s.NameWithOwner, s.ID); err != nil {
			return fmt.Errorf("ingest: conflict rename %q: %w", s.NameWithOwner, err)
		}
	}
	return nil
}

func upsertRepos(tx *sql.Tx, fresh []Snapshot) error {
	// created_at is set once at insertion and never updated on rename.
	stmt, err := tx.Prepare(`INSERT INTO repo(id, name_with_owner, created_at, description, homepage_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name_with_owner = excluded.name_with_owner,
			description     = excluded.description,
			homepage_url    = excluded.homepage_url`)
	if err != nil {
		return fmt.Errorf("ingest: prepare repo upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range fresh {
		if _, err := stmt.Exec(s.ID, s.NameWithOwner, nullInt(s.CreatedAt), nullStr(s.Description), nullStr(s.HomepageURL)); err != nil {
			return fmt.Errorf("ingest: repo upsert %q: %w", s.NameWithOwner, err)
		}
	}
	return nil
}

// latestRow is the subset of repo_latest needed for change detection.
type latestRow struct {
	historyStartRunID int64
	stars             int64
	forks             int64
	watchers          int64
	diskUsage         sql.NullInt64
}

func fetchLatestMetrics(tx *sql.Tx, ids []int64) (map[int64]latestRow, error) {
	out := make(map[int64]latestRow, len(ids))
	for chunk := range chunks(ids, inClauseChunk) {
		q := fmt.Sprintf(`SELECT repo_id, history_start_run_id, stars, forks, watchers, disk_usage
			FROM repo_latest WHERE repo_id IN (%s)`, placeholders(len(chunk)))
		rows, err := tx.Query(q, int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("ingest: fetch latest: %w", err)
		}
		for rows.Next() {
			var id int64
			var lr latestRow
			if err := rows.Scan(&id, &lr.historyStartRunID, &lr.stars, &lr.forks, &lr.watchers, &lr.diskUsage); err != nil {
				rows.Close()
				return nil, fmt.Errorf("ingest: scan latest: %w", err)
			}
			out[id] = lr
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ingest: iterate latest: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

// writeMetrics diffs each snapshot against repo_latest and either opens
// a new history segment or extends the current one, then upserts the
// latest row.
func writeMetrics(tx *sql.Tx, runID int64, fresh []Snapshot, existing map[int64]latestRow, langID map[int64]sql.NullInt64) error {
	insertHist, err := tx.Prepare(`INSERT INTO repo_metrics_hist(
			repo_id, start_run_id, end_run_id, stars, forks, watchers, disk_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ingest: prepare hist insert: %w", err)
	}
	defer insertHist.Close()

	extendHist, err := tx.Prepare(`UPDATE repo_metrics_hist
		SET end_run_id = ? WHERE repo_id = ? AND start_run_id = ?`)
	if err != nil {
		return fmt.Errorf("ingest: prepare hist extend: %w", err)
	}
	defer extendHist.Close()

	upsertLatest, err := tx.Prepare(`INSERT INTO repo_latest(
			repo_id, run_id, history_start_run_id,
			stars, forks, watchers, disk_usage,
			updated_at, pushed_at, is_archived, primary_language_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			run_id               = excluded.run_id,
			history_start_run_id = excluded.history_start_run_id,
			stars                = excluded.stars,
			forks                = excluded.forks,
			watchers             = excluded.watchers,
			disk_usage           = excluded.disk_usage,
			updated_at           = excluded.updated_at,
			pushed_at            = excluded.pushed_at,
			is_archived          = excluded.is_archived,
			primary_language_id  = excluded.primary_language_id`)
	if err != nil {
		return fmt.Errorf("ingest: prepare latest upsert: %w", err)
	}
	defer upsertLatest.Close()

	for _, s := range fresh {
		disk := nullInt(s.DiskUsage)

		historyStart := runID
		old, found := existing[s.ID]
		if !found || metricsChanged(old, s, disk) {
			if _, err := insertHist.Exec(s.ID, runID, runID, s.Stars, s.Forks, s.Watchers, disk); err != nil {
				return fmt.Errorf("ingest: hist insert repo=%d: %w", s.ID, err)
			}
		} else {
			historyStart = old.historyStartRunID
			if _, err := extendHist.Exec(runID, s.ID, historyStart); err != nil {
				return fmt.Errorf("ingest: hist extend repo=%d: %w", s.ID, err)
			}
		}

		archived := 0
		if s.IsArchived {
			archived = 1
		}
		if _, err := upsertLatest.Exec(
			s.ID, runID, historyStart,
			s.Stars, s.Forks, s.Watchers, disk,
			nullInt(s.UpdatedAt), nullInt(s.PushedAt), archived, langID[s.ID],
		); err != nil {
			return fmt.Errorf("ingest: latest upsert repo=%d: %w", s.ID, err)
		}
	}
	return nil
}

// metricsChanged reports whether the metric quadruple differs from the
// stored latest row. Two absent disk usages compare equal.
func metricsChanged(old latestRow, s Snapshot, disk sql.NullInt64) bool {
	return old.stars != s.Stars ||
		old.forks != s.Forks ||
		old.watchers != s.Watchers ||
		old.diskUsage != disk
}

// refreshTopics replaces the current topic set for every repo in the
// batch. Delete precedes re-insert so removed topics do not linger.
func refreshTopics(tx *sql.Tx, fresh []Snapshot, topicIDs map[int64][]int64) error {
	ids := make([]int64, 0, len(fresh))
	for _, s := range fresh {
		ids = append(ids, s.ID)
	}
	for chunk := range chunks(ids, inClauseChunk) {
		q := fmt.Sprintf("DELETE FROM repo_topic_latest WHERE repo_id IN (%s)", placeholders(len(chunk)))
		if _, err := tx.Exec(q, int64Args(chunk)...); err != nil {
			return fmt.Errorf("ingest: topic delete: %w", err)
		}
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO repo_topic_latest(repo_id, topic_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("ingest: prepare topic insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range fresh {
		for _, tid := range topicIDs[s.ID] {
			if _, err := stmt.Exec(s.ID, tid); err != nil {
				return fmt.Errorf("ingest: topic insert repo=%d topic=%d: %w", s.ID, tid, err)
			}
		}
	}
	return nil
}

// languageID interns a language name and returns its id.
func (e *Engine) languageID(name string) (int64, error) {
	if id, ok := e.langIDs.Load(name); ok {
		return id, nil
	}
	id, err := internName(e.db, "language", name)
	if err != nil {
		return 0, err
	}
	e.langIDs.Store(name, id)
	return id, nil
}

// topicID interns a topic name and returns its id.
func (e *Engine) topicID(name string) (int64, error) {
	if id, ok := e.topicIDs.Load(name); ok {
		return id, nil
	}
	id, err := internName(e.db, "topic", name)
	if err != nil {
		return 0, err
	}
	e.topicIDs.Store(name, id)
	return id, nil
}

func internName(db *sql.DB, table, name string) (int64, error) {
	if _, err := db.Exec(fmt.Sprintf("INSERT OR IGNORE INTO %s(name) VALUES (?)", table), name); err != nil {
		return 0, fmt.Errorf("ingest: intern %s %q: %w", table, name, err)
	}
	var id int64
	if err := db.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("ingest: lookup %s %q: %w", table, name, err)
	}
	return id, nil
}

// --- small helpers ---

func chunks(ids []int64, n int) func(func([]int64) bool) {
	return func(yield func([]int64) bool) {
		for i := 0; i < len(ids); i += n {
			end := min(i+n, len(ids))
			if !yield(ids[i:end]) {
				return
			}
		}
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullStr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
