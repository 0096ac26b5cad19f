package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/ragctx-go/internal/rag"
)

func TestEmbeddedStore_QueryOrdersByScore(t *testing.T) {
	t.Parallel()

	s, err := NewEmbeddedStore(&EmbeddedConfig{})
	if err != nil {
		t.Fatalf("NewEmbeddedStore: %v", err)
	}
	ctx := context.Background()

	recs := []rag.Record{
		{ID: "far", Vector: []float32{0, 1}, Metadata: map[string]string{"content": "far"}},
		{ID: "near", Vector: []float32{1, 0.05}, Metadata: map[string]string{"content": "near"}},
		{ID: "mid", Vector: []float32{1, 1}, Metadata: map[string]string{"content": "mid"}},
	}
	for _, r := range recs {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := s.Query(ctx, rag.Query{Vector: []float32{1, 0}, TopK: 2, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "near" || got[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v < %v", got[0].Score, got[1].Score)
	}
	if got[0].Metadata["content"] != "near" {
		t.Errorf("metadata missing: %+v", got[0])
	}
}

func TestEmbeddedStore_TopKClampedAndEmpty(t *testing.T) {
	t.Parallel()

	s, err := NewEmbeddedStore(&EmbeddedConfig{})
	if err != nil {
		t.Fatalf("NewEmbeddedStore: %v", err)
	}
	ctx := context.Background()

	got, err := s.Query(ctx, rag.Query{Vector: []float32{1, 0}, TopK: 5})
	if err != nil || len(got) != 0 {
		t.Fatalf("empty collection: want no matches and no error, got %v / %v", got, err)
	}

	if err := s.Upsert(ctx, rag.Record{ID: "only", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err = s.Query(ctx, rag.Query{Vector: []float32{1, 0}, TopK: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Metadata != nil {
		t.Errorf("want one match without metadata, got %+v", got)
	}
}

func TestEmbeddedStore_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := NewEmbeddedStore(&EmbeddedConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("NewEmbeddedStore: %v", err)
	}
	ctx := context.Background()

	for _, content := range []string{"v1", "v1", "v2"} {
		rec := rag.Record{ID: "doc_chunk_0", Vector: []float32{0.3, 0.4}, Metadata: map[string]string{"content": content}}
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if s.Count() != 1 {
		t.Errorf("want 1 document, got %d", s.Count())
	}
	got, err := s.Query(ctx, rag.Query{Vector: []float32{0.3, 0.4}, TopK: 1, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].Metadata["content"] != "v2" {
		t.Errorf("want latest content, got %q", got[0].Metadata["content"])
	}
}

func TestEmbeddedStore_RejectsInvalid(t *testing.T) {
	t.Parallel()

	s, err := NewEmbeddedStore(&EmbeddedConfig{})
	if err != nil {
		t.Fatalf("NewEmbeddedStore: %v", err)
	}
	if err := s.Upsert(context.Background(), rag.Record{ID: "x"}); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("no vector: want ErrInvalidInput, got %v", err)
	}
	if _, err := s.Query(context.Background(), rag.Query{TopK: 1}); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("no query vector: want ErrInvalidInput, got %v", err)
	}
}

func TestEmbeddedStore_Delete(t *testing.T) {
	t.Parallel()

	s, err := NewEmbeddedStore(&EmbeddedConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("NewEmbeddedStore: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"doc_chunk_0", "doc_chunk_1"} {
		if err := s.Upsert(ctx, rag.Record{ID: id, Vector: []float32{0.3, 0.4}, Metadata: map[string]string{"content": id}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := s.Delete(ctx, []string{"doc_chunk_1", "doc_chunk_9"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("want 1 document left, got %d", s.Count())
	}
	if err := s.Delete(ctx, []string{"doc_chunk_9"}); err != nil {
		t.Errorf("deleting only unknown ids should succeed: %v", err)
	}
}
