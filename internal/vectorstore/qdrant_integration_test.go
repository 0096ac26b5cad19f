//go:build integration

package vectorstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// TestQdrantStore_Integration runs the single-call strategy against a real
// Qdrant instance. A throwaway collection is created per run.
//
// Prerequisites:
//
//	docker run -d -p 6334:6334 qdrant/qdrant
//
// Run with:
//
//	QDRANT_HOST=localhost go test -tags=integration -run TestQdrantStore_Integration ./internal/vectorstore/
//
// Set QDRANT_PORT if gRPC is not on 6334.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port := 6334
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			t.Fatalf("QDRANT_PORT: %v", err)
		}
		port = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := "ragctx_it_" + uuid.NewString()[:8]
	s, err := NewQdrantStore(ctx, &QdrantConfig{Host: host, Port: port, Collection: collection, VectorSize: 3})
	if err != nil {
		t.Fatalf("NewQdrantStore() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.DeleteCollection(context.Background(), collection)
		_ = s.Close()
	})

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	recs := []rag.Record{
		{ID: "leave.txt_chunk_0", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"content": "Leave: 12 days"}},
		{ID: "leave.txt_chunk_1", Vector: []float32{1, 0.3, 0}, Metadata: map[string]string{"content": "Notice: 30 days"}},
		{ID: "it.txt_chunk_0", Vector: []float32{0, 0, 1}, Metadata: map[string]string{"content": "VPN"}},
	}
	for range 2 {
		for _, r := range recs {
			if err := s.Upsert(ctx, r); err != nil {
				t.Fatalf("Upsert(%s): %v", r.ID, err)
			}
		}
	}

	got, err := s.Query(ctx, rag.Query{Vector: []float32{1, 0, 0}, TopK: 10, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("repeated upserts should not duplicate points: got %d matches", len(got))
	}
	if got[0].ID != "leave.txt_chunk_0" || got[0].Metadata["content"] != "Leave: 12 days" {
		t.Errorf("best match: %+v", got[0])
	}
	if _, ok := got[0].Metadata[RecordIDKey]; ok {
		t.Errorf("%s leaked into metadata", RecordIDKey)
	}

	bare, err := s.Query(ctx, rag.Query{Vector: []float32{1, 0, 0}, TopK: 1})
	if err != nil {
		t.Fatalf("Query without metadata: %v", err)
	}
	if bare[0].ID != "leave.txt_chunk_0" || bare[0].Metadata != nil {
		t.Errorf("want the record id and no metadata, got %+v", bare[0])
	}

	if err := s.Delete(ctx, []string{"leave.txt_chunk_1", "never-stored"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.Query(ctx, rag.Query{Vector: []float32{1, 0, 0}, TopK: 10})
	if err != nil {
		t.Fatalf("Query after delete: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("want 2 points after delete, got %d", len(got))
	}
}
