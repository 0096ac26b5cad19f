// Package vectorstore provides the rag.VectorStore backends. Three retrieval
// strategies are supported: single-call nearest neighbour (Qdrant, embedded
// chromem-go), cursor-paginated threshold search (SQLite, pgvector, Weaviate)
// and a plain REST index. Every backend failure wraps rag.ErrStore.
package vectorstore

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// RecordIDKey is the payload key under which backends that require UUID
// point ids keep the original record id.
const RecordIDKey = "record_id"

// pointNamespace seeds the name-based UUIDs derived from record ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/ragctx-go/records"))

// PointID maps a record id onto a stable UUIDv5. Ids that already parse as a
// UUID are returned unchanged so callers may address points directly.
func PointID(recordID string) string {
	if u, err := uuid.Parse(recordID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// validateRecord rejects records that no backend can store.
func validateRecord(rec rag.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("vectorstore: record id is empty: %w", rag.ErrInvalidInput)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("vectorstore: record %q has no vector: %w", rec.ID, rag.ErrInvalidInput)
	}
	return nil
}

// validateQuery rejects queries with no vector or a non-positive TopK.
func validateQuery(q rag.Query) error {
	if len(q.Vector) == 0 {
		return fmt.Errorf("vectorstore: query vector is empty: %w", rag.ErrInvalidInput)
	}
	if q.TopK <= 0 {
		return fmt.Errorf("vectorstore: topK must be positive, got %d: %w", q.TopK, rag.ErrInvalidInput)
	}
	return nil
}

// copyMetadata returns a shallow copy of m, or nil when m is empty.
func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
