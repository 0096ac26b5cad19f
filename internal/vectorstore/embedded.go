package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// EmbeddedConfig configures the in-process chromem-go store.
type EmbeddedConfig struct {
	// Path persists the index to a directory. Empty keeps it in memory.
	Path string
	// Compress gzips persisted documents. Ignored when Path is empty.
	Compress bool
	// Collection is the collection name (default "ragctx").
	Collection string
}

// EmbeddedStore is the single-call strategy backed by an in-process chromem-go
// database. It needs no external service and suits local indexes and tests.
type EmbeddedStore struct {
	coll *chromem.Collection
}

// errNoEmbedFunc is returned if chromem is ever asked to embed on its own.
// Records always arrive with a precomputed vector.
var errNoEmbedFunc = errors.New("embedded store: documents must carry a precomputed vector")

// NewEmbeddedStore opens (or creates) the chromem-go database and collection.
func NewEmbeddedStore(cfg *EmbeddedConfig) (*EmbeddedStore, error) {
	name := cfg.Collection
	if name == "" {
		name = "ragctx"
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("embedded store: open %s: %w: %w", cfg.Path, rag.ErrStore, err)
		}
	}

	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedFunc }
	coll, err := db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("embedded store: collection %q: %w: %w", name, rag.ErrStore, err)
	}
	return &EmbeddedStore{coll: coll}, nil
}

// Upsert writes rec, replacing any document with the same id.
func (s *EmbeddedStore) Upsert(ctx context.Context, rec rag.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        rec.ID,
		Metadata:  copyMetadata(rec.Metadata),
		Embedding: append([]float32(nil), rec.Vector...),
		Content:   rec.Metadata[rag.ContentKey],
	}
	if err := s.coll.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("embedded store: upsert %q: %w: %w", rec.ID, rag.ErrStore, err)
	}
	return nil
}

// Query returns up to q.TopK matches ordered by descending cosine similarity.
// TopK is clamped to the collection size; an empty collection yields no
// matches.
func (s *EmbeddedStore) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	n := min(q.TopK, s.coll.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := s.coll.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("embedded store: query: %w: %w", rag.ErrStore, err)
	}

	matches := make([]rag.Match, 0, len(results))
	for _, r := range results {
		m := rag.Match{ID: r.ID, Score: r.Similarity}
		if q.IncludeMetadata {
			m.Metadata = copyMetadata(r.Metadata)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Delete removes the documents with the given ids. Unknown ids are ignored.
func (s *EmbeddedStore) Delete(ctx context.Context, ids []string) error {
	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.coll.GetByID(ctx, id); err == nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := s.coll.Delete(ctx, nil, nil, present...); err != nil {
		return fmt.Errorf("embedded store: delete: %w: %w", rag.ErrStore, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *EmbeddedStore) Count() int { return s.coll.Count() }

// Ping always succeeds; the store is in-process.
func (s *EmbeddedStore) Ping(context.Context) error { return nil }

// Close is a no-op. Persistent stores write through on every upsert.
func (s *EmbeddedStore) Close() error { return nil }
