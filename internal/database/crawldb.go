package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/dataroma/internal/model"
)

// DBFileName is the journal file name inside the database directory.
const DBFileName = "dataroma.db"

// CrawlDB is the crawl journal: one row per run, the checkpoints written
// during it and the pages it requested.
//
// The journal is an audit trail. The records themselves live in the
// structured JSON cache; losing the journal loses history, not data.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the journal in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		managers INTEGER DEFAULT 0,
		holdings INTEGER DEFAULT 0,
		activities INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		duration_seconds REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		managers_processed INTEGER NOT NULL,
		holdings INTEGER NOT NULL,
		activities INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id);

	-- One row per page request; the cache key identifies the logical page.
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		cache_key TEXT,
		status_code INTEGER,
		failure TEXT,
		retries INTEGER DEFAULT 0,
		from_cache INTEGER DEFAULT 0,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_run ON fetches(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one journal row.
type Run struct {
	ID              string          `json:"id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at,omitzero"`
	Status          model.RunStatus `json:"status"`
	Managers        int             `json:"managers"`
	Holdings        int             `json:"holdings"`
	Activities      int             `json:"activities"`
	Errors          int             `json:"errors"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// Finished reports whether the run has a finish time.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Checkpoint is one checkpoint row.
type Checkpoint struct {
	ID                int64     `json:"id"`
	RunID             string    `json:"run_id"`
	ManagersProcessed int       `json:"managers_processed"`
	Holdings          int       `json:"holdings"`
	Activities        int       `json:"activities"`
	Errors            int       `json:"errors"`
	CreatedAt         time.Time `json:"created_at"`
}

// StartRun records the start of a run.
func (cdb *CrawlDB) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	query := `INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`

	if _, err := cdb.db.ExecContext(ctx, query, runID, formatTimestamp(startedAt), model.RunRunning); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// RecordCheckpoint stores a checkpoint and refreshes the run's counters.
func (cdb *CrawlDB) RecordCheckpoint(ctx context.Context, runID string, p model.Progress, at time.Time) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	insert := `
	INSERT INTO checkpoints (run_id, managers_processed, holdings, activities, errors, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert,
		runID,
		p.ManagersProcessed,
		p.HoldingsFound,
		p.ActivitiesFound,
		p.ErrorsEncountered,
		formatTimestamp(at),
	); err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	if err := updateCounters(ctx, tx, runID, p); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishRun stamps the run's final status and counters.
func (cdb *CrawlDB) FinishRun(ctx context.Context, runID string, status model.RunStatus, p model.Progress, finishedAt time.Time) error {
	query := `UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`

	result, err := cdb.db.ExecContext(ctx, query, status, formatTimestamp(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: %w: %s", ErrRunNotFound, runID)
	}
	return updateCounters(ctx, cdb.db, runID, p)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateCounters(ctx context.Context, db execer, runID string, p model.Progress) error {
	query := `
	UPDATE runs SET managers = ?, holdings = ?, activities = ?, errors = ?, duration_seconds = ?
	WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query,
		p.ManagersProcessed,
		p.HoldingsFound,
		p.ActivitiesFound,
		p.ErrorsEncountered,
		p.DurationSeconds,
		runID,
	); err != nil {
		return fmt.Errorf("failed to update run counters: %w", err)
	}
	return nil
}

// RecordFetch appends a page request to the run's fetch log.
func (cdb *CrawlDB) RecordFetch(ctx context.Context, runID string, ev model.FetchEvent) error {
	query := `
	INSERT INTO fetches (run_id, url, cache_key, status_code, failure, retries, from_cache, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := cdb.db.ExecContext(ctx, query,
		runID,
		ev.URL,
		ev.CacheKey,
		ev.StatusCode,
		ev.Failure,
		ev.Retries,
		ev.FromCache,
		formatTimestamp(ev.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if there is none.
func (cdb *CrawlDB) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `
	SELECT id, started_at, COALESCE(finished_at, ''), status, managers, holdings, activities, errors, duration_seconds
	FROM runs WHERE id = ?
	`

	run, err := scanRun(cdb.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (cdb *CrawlDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, started_at, COALESCE(finished_at, ''), status, managers, holdings, activities, errors, duration_seconds
	FROM runs
	ORDER BY started_at DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished string
		status   string
	)
	err := row.Scan(
		&run.ID,
		&started,
		&finished,
		&status,
		&run.Managers,
		&run.Holdings,
		&run.Activities,
		&run.Errors,
		&run.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(started)
	run.FinishedAt = parseTimestamp(finished)
	run.Status = model.RunStatus(status)
	return &run, nil
}

// ListCheckpoints returns a run's checkpoints in the order they were written.
func (cdb *CrawlDB) ListCheckpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	query := `
	SELECT id, run_id, managers_processed, holdings, activities, errors, created_at
	FROM checkpoints WHERE run_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var created string
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.ManagersProcessed, &cp.Holdings, &cp.Activities, &cp.Errors, &created); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp.CreatedAt = parseTimestamp(created)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// ListFetches returns a run's fetch log in request order.
func (cdb *CrawlDB) ListFetches(ctx context.Context, runID string) ([]model.FetchEvent, error) {
	query := `
	SELECT url, COALESCE(cache_key, ''), status_code, COALESCE(failure, ''), retries, from_cache, fetched_at
	FROM fetches WHERE run_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetches: %w", err)
	}
	defer rows.Close()

	var events []model.FetchEvent
	for rows.Next() {
		var ev model.FetchEvent
		var at string
		if err := rows.Scan(&ev.URL, &ev.CacheKey, &ev.StatusCode, &ev.Failure, &ev.Retries, &ev.FromCache, &at); err != nil {
			return nil, fmt.Errorf("failed to scan fetch: %w", err)
		}
		ev.At = parseTimestamp(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FetchSummary returns request, failure and cache-hit totals for a run.
func (cdb *CrawlDB) FetchSummary(ctx context.Context, runID string) (model.FetchStats, error) {
	query := `
	SELECT COUNT(*),
		COALESCE(SUM(retries), 0),
		COALESCE(SUM(CASE WHEN failure <> '' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(from_cache), 0)
	FROM fetches WHERE run_id = ?
	`

	var stats model.FetchStats
	err := cdb.db.QueryRowContext(ctx, query, runID).Scan(&stats.Requests, &stats.Retries, &stats.Failures, &stats.CacheHits)
	if err != nil {
		return stats, fmt.Errorf("failed to summarize fetches: %w", err)
	}
	return stats, nil
}

// timestampFormats contains the formats SQLite and this package write.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",     // SQLite CURRENT_TIMESTAMP
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// storedTimestampLayout is fixed-width so that text ordering is time ordering.
const storedTimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampLayout)
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
