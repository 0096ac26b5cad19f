// Package store provides a SQLite-backed ingestion manifest. It remembers
// the digest of every document the pipeline has ingested so that unchanged
// files can be skipped on the next run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry records one ingested document.
type Entry struct {
	// Source is the document id (its base file name).
	Source string
	// Digest identifies the extracted text together with the chunking
	// policy it was split with.
	Digest string
	// Chunks is the number of chunk records stored for the document.
	Chunks int
	// IngestedAt is when the document was last fully ingested.
	IngestedAt time.Time
}

// SQLiteManifest is a manifest backed by a local SQLite database.
// It is safe for concurrent use.
type SQLiteManifest struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the manifest database.
// It resolves to ~/.ragctx/manifest.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragctx")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "manifest.db"), nil
}

// Open opens (or creates) a SQLiteManifest at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteManifest, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteManifest{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteManifest) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    source       TEXT    PRIMARY KEY,
    digest       TEXT    NOT NULL,
    chunks       INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record inserts or replaces the entry for e.Source. A zero IngestedAt is
// set to the current time.
func (s *SQLiteManifest) Record(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now()
	}
	const q = `
INSERT INTO documents (source, digest, chunks, ingested_at) VALUES (?, ?, ?, ?)
ON CONFLICT(source) DO UPDATE SET
    digest = excluded.digest,
    chunks = excluded.chunks,
    ingested_at = excluded.ingested_at`
	if _, err := s.db.ExecContext(ctx, q, e.Source, e.Digest, e.Chunks, e.IngestedAt.Unix()); err != nil {
		return fmt.Errorf("store: record %s: %w", e.Source, err)
	}
	return nil
}

// Lookup returns the entry for source. The boolean is false when the
// document has never been recorded.
func (s *SQLiteManifest) Lookup(ctx context.Context, source string) (Entry, bool, error) {
	const q = `SELECT source, digest, chunks, ingested_at FROM documents WHERE source = ?`

	var e Entry
	var ts int64
	err := s.db.QueryRowContext(ctx, q, source).Scan(&e.Source, &e.Digest, &e.Chunks, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: lookup %s: %w", source, err)
	}
	e.IngestedAt = time.Unix(ts, 0)
	return e, true, nil
}

// List returns every recorded entry ordered by source.
func (s *SQLiteManifest) List(ctx context.Context) ([]Entry, error) {
	const q = `SELECT source, digest, chunks, ingested_at FROM documents ORDER BY source ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Source, &e.Digest, &e.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		e.IngestedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return entries, nil
}

// Forget removes the entry for source so the next run re-ingests it.
func (s *SQLiteManifest) Forget(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source); err != nil {
		return fmt.Errorf("store: forget %s: %w", source, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteManifest) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
