package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// PGVectorConfig configures the Postgres pgvector page source.
type PGVectorConfig struct {
	// DSN is the Postgres connection string.
	DSN string
	// Dimensions is the vector column width used when creating the table.
	Dimensions int
	// Debug logs every SQL statement through bundebug.
	Debug bool
}

// pgRecord is the rag_records row.
type pgRecord struct {
	bun.BaseModel `bun:"table:rag_records,alias:r"`

	ID        string            `bun:"id,pk"`
	Embedding pgvector.Vector   `bun:"embedding,type:vector,notnull"`
	Metadata  map[string]string `bun:"metadata,type:jsonb,notnull"`
}

// pgMatch is one row of a page query.
type pgMatch struct {
	ID       string            `bun:"id"`
	Score    float32           `bun:"score"`
	Metadata map[string]string `bun:"metadata,type:jsonb"`
}

// PGVectorPages is a PageSource backed by Postgres with the pgvector
// extension. Similarity is 1 - cosine distance, computed by the database.
type PGVectorPages struct {
	db *bun.DB
}

// OpenPGVector connects to Postgres and ensures the extension and the
// rag_records table exist.
func OpenPGVector(ctx context.Context, cfg *PGVectorConfig) (*PGVectorPages, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: DSN is required: %w", rag.ErrInvalidInput)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions must be positive, got %d: %w", cfg.Dimensions, rag.ErrInvalidInput)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	s := &PGVectorPages{db: db}
	if err := s.migrate(ctx, cfg.Dimensions); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the extension and table if they do not already exist.
func (s *PGVectorPages) migrate(ctx context.Context, dims int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("pgvector: create extension: %w: %w", rag.ErrStore, err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS rag_records (
    id         TEXT PRIMARY KEY,
    embedding  vector(%d) NOT NULL,
    metadata   JSONB NOT NULL DEFAULT '{}'
)`, dims)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: create table: %w: %w", rag.ErrStore, err)
	}
	return nil
}

// Upsert inserts rec or replaces the row with the same id.
func (s *PGVectorPages) Upsert(ctx context.Context, rec rag.Record) error {
	row := &pgRecord{
		ID:        rec.ID,
		Embedding: pgvector.NewVector(rec.Vector),
		Metadata:  rec.Metadata,
	}
	if row.Metadata == nil {
		row.Metadata = map[string]string{}
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("embedding = EXCLUDED.embedding").
		Set("metadata = EXCLUDED.metadata").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: upsert %q: %w: %w", rec.ID, rag.ErrStore, err)
	}
	return nil
}

// FetchPage returns up to req.Limit rows after req.After, in id order, whose
// similarity reaches req.Threshold.
func (s *PGVectorPages) FetchPage(ctx context.Context, req PageRequest) ([]rag.Match, error) {
	vec := pgvector.NewVector(req.Vector)

	q := s.db.NewSelect().
		Model((*pgRecord)(nil)).
		ColumnExpr("r.id").
		ColumnExpr("1 - (r.embedding <=> ?) AS score", vec).
		Where("1 - (r.embedding <=> ?) >= ?", vec, req.Threshold).
		OrderExpr("r.id ASC").
		Limit(req.Limit)
	if req.After != "" {
		q = q.Where("r.id > ?", req.After)
	}
	if req.IncludeMetadata {
		q = q.ColumnExpr("r.metadata")
	}

	var rows []pgMatch
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("pgvector: page: %w: %w", rag.ErrStore, err)
	}

	page := make([]rag.Match, 0, len(rows))
	for _, r := range rows {
		page = append(page, rag.Match{ID: r.ID, Score: r.Score, Metadata: r.Metadata})
	}
	return page, nil
}

// Delete removes the rows with the given ids.
func (s *PGVectorPages) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*pgRecord)(nil)).
		Where("r.id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: delete: %w: %w", rag.ErrStore, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PGVectorPages) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PGVectorPages) Close() error {
	return s.db.Close()
}
