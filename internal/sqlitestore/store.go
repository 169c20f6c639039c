// Package sqlitestore implements jobstore.Store on a SQLite database, so job
// records survive the process and can be inspected by `dungeonjob status`.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id       TEXT PRIMARY KEY,
	state    TEXT NOT NULL,
	outcome  TEXT NOT NULL DEFAULT '',
	reason   TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL,
	created  TEXT NOT NULL,
	updated  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_updated ON jobs(updated);
`

const upsert = `
INSERT INTO jobs (id, state, outcome, reason, document, created, updated)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	outcome = excluded.outcome,
	reason = excluded.reason,
	document = excluded.document,
	updated = excluded.updated
`

// Store is a SQLite-backed jobstore.Store.
type Store struct {
	db *sql.DB
}

var _ jobstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-process database.
func Open(ctx context.Context, path string) (*Store, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Opening job database.", "path", path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database '%s': %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping job database '%s': %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply job database schema: %w", err)
	}
	logger.Debug("Job database ready.", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save implements jobstore.Store.
func (s *Store) Save(ctx context.Context, r *jobstore.Record) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("cannot save a job record without an id")
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode job '%s': %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, upsert,
		r.ID, r.State, r.Outcome, r.Reason, string(doc),
		r.Created.UTC().Format(time.RFC3339Nano), r.Updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save job '%s': %w", r.ID, err)
	}
	return nil
}

// Get implements jobstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*jobstore.Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM jobs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job '%s': %w", id, jobstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job '%s': %w", id, err)
	}
	var r jobstore.Record
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("failed to decode job '%s': %w", id, err)
	}
	return &r, nil
}

// Recent returns up to limit records, most recently updated first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*jobstore.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM jobs ORDER BY updated DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobstore.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		var r jobstore.Record
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("failed to decode job row: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
