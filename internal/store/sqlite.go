package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a posting lookup matches no row.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

const schema = `
CREATE TABLE IF NOT EXISTS postings (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT NOT NULL UNIQUE,
	source          TEXT NOT NULL,
	title           TEXT NOT NULL,
	company         TEXT NOT NULL,
	location        TEXT,
	matched_keyword TEXT,
	deadline        TEXT,
	employment_type TEXT,
	published_at    TEXT,
	description     TEXT,
	summary         TEXT,
	external_id     TEXT,
	status          TEXT NOT NULL DEFAULT 'ACTIVE',
	first_seen_at   TEXT NOT NULL,
	last_checked_at TEXT,
	expire_at       TEXT,
	is_hidden       INTEGER NOT NULL DEFAULT 0,
	is_favorite     INTEGER NOT NULL DEFAULT 0,
	applied         INTEGER NOT NULL DEFAULT 0,
	applied_at      TEXT,
	notes           TEXT
);
CREATE INDEX IF NOT EXISTS idx_postings_source ON postings(source);
CREATE INDEX IF NOT EXISTS idx_postings_status ON postings(status);
CREATE INDEX IF NOT EXISTS idx_postings_first_seen ON postings(first_seen_at);

CREATE TABLE IF NOT EXISTS irrelevant_urls (
	url         TEXT PRIMARY KEY,
	reason      TEXT,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	source                TEXT PRIMARY KEY,
	last_sync_at          TEXT NOT NULL,
	continuation_token    TEXT,
	jobs_added_last_run   INTEGER NOT NULL DEFAULT 0,
	jobs_removed_last_run INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore persists postings, the irrelevant-URL cache and per-source sync
// state in a single SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// schema exists. The database runs in WAL mode behind a single connection, so
// writers from concurrent runs queue instead of failing with SQLITE_BUSY.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
