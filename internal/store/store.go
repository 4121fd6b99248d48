// Package store persists cleaning runs to an embedded sqlite database:
// run rows, structure hints, ledgers, document text snapshots, AI call
// records, and run metrics. Everything a resumed run needs lives here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the run database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the run database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: one writer, and in-memory databases are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	input_path  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	cursor      TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hints (
	run_id     TEXT PRIMARY KEY REFERENCES runs(run_id) ON DELETE CASCADE,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledgers (
	run_id     TEXT PRIMARY KEY REFERENCES runs(run_id) ON DELETE CASCADE,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS texts (
	run_id     TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	label      TEXT NOT NULL,
	body       TEXT NOT NULL,
	words      INTEGER NOT NULL DEFAULT 0,
	lines      INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (run_id, label)
);

CREATE TABLE IF NOT EXISTS ai_calls (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	document_id       TEXT NOT NULL DEFAULT '',
	phase             TEXT NOT NULL DEFAULT '',
	stage             TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	request_id        TEXT NOT NULL DEFAULT '',
	timestamp         TEXT NOT NULL,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	attempts          INTEGER NOT NULL DEFAULT 0,
	response          TEXT NOT NULL DEFAULT '',
	truncated         INTEGER NOT NULL DEFAULT 0,
	success           INTEGER NOT NULL DEFAULT 0,
	error_type        TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ai_calls_run ON ai_calls(run_id);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id     TEXT PRIMARY KEY REFERENCES runs(run_id) ON DELETE CASCADE,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// tx runs fn inside a transaction.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
