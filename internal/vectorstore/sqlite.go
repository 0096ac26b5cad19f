package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragctx-go/internal/rag"
)

// SQLitePages is a PageSource backed by a local SQLite database. Vectors are
// stored as little-endian float32 blobs and similarity is computed in Go, so
// it suits small and medium indexes without any external service.
type SQLitePages struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default index path, ~/.ragctx/index.db,
// creating the directory if needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sqlite: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragctx")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sqlite: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// OpenSQLite opens (or creates) the index at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLitePages, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w: %w", path, rag.ErrStore, err)
	}
	// Limit to a single connection to avoid SQLITE_BUSY under concurrent
	// writes; it also keeps a ":memory:" database shared.
	db.SetMaxOpenConns(1)

	s := &SQLitePages{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLitePages) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
    id         TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}'
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("sqlite: migrate: %w: %w", rag.ErrStore, err)
	}
	return nil
}

// Upsert inserts rec or replaces the row with the same id.
func (s *SQLitePages) Upsert(ctx context.Context, rec rag.Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w: %w", rag.ErrStore, err)
	}
	const q = `
INSERT INTO records (id, embedding, metadata) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, encodeVector(rec.Vector), string(meta)); err != nil {
		return fmt.Errorf("sqlite: upsert %q: %w: %w", rec.ID, rag.ErrStore, err)
	}
	return nil
}

// FetchPage scans rows in id order after req.After and returns the first
// req.Limit whose cosine similarity reaches req.Threshold.
func (s *SQLitePages) FetchPage(ctx context.Context, req PageRequest) ([]rag.Match, error) {
	const q = `SELECT id, embedding, metadata FROM records WHERE id > ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, req.After)
	if err != nil {
		return nil, fmt.Errorf("sqlite: page: %w: %w", rag.ErrStore, err)
	}
	defer rows.Close()

	var page []rag.Match
	for rows.Next() && len(page) < req.Limit {
		var (
			id   string
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, fmt.Errorf("sqlite: page scan: %w: %w", rag.ErrStore, err)
		}
		score := cosine(req.Vector, decodeVector(blob))
		if score < req.Threshold {
			continue
		}
		m := rag.Match{ID: id, Score: score}
		if req.IncludeMetadata {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: decode metadata of %q: %w: %w", id, rag.ErrStore, err)
			}
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: page rows: %w: %w", rag.ErrStore, err)
	}
	return page, nil
}

// Delete removes the rows with the given ids in one transaction.
func (s *SQLitePages) Delete(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w: %w", rag.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: delete %q: %w: %w", id, rag.ErrStore, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: delete commit: %w: %w", rag.ErrStore, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLitePages) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w: %w", rag.ErrStore, err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLitePages) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLitePages) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
