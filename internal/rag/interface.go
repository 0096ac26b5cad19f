// Package rag defines the shared data model and interfaces for the retrieval
// pipeline: vector records, nearest-neighbour queries, and embedding.
// Concrete implementations (Qdrant, SQLite, pgvector, Weaviate, REST, etc.)
// satisfy these interfaces so the ingestion pipeline and the context assembler
// never depend on a specific backend.
package rag

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported by every component. Callers classify failures with
// errors.Is; concrete errors wrap one of these with backend detail.
var (
	// ErrInvalidInput reports a missing or malformed argument or a missing
	// required configuration value. It is never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedding reports that the embedding call was rejected, failed in
	// transport, or timed out.
	ErrEmbedding = errors.New("embedding failure")

	// ErrStore reports that an upsert or query against the vector store was
	// rejected, failed in transport, timed out, or returned malformed data.
	ErrStore = errors.New("store failure")
)

// ContentKey is the metadata key under which ingestion stores chunk text.
const ContentKey = "content"

// Record is the persisted unit in a vector store.
type Record struct {
	// ID uniquely addresses one chunk, e.g. "handbook.txt_chunk_3".
	// Upserting the same ID replaces the previous record.
	ID string

	// Vector is the embedding of the chunk text.
	Vector []float32

	// Metadata is the payload stored alongside the vector. The chunk text
	// lives under ContentKey.
	Metadata map[string]string
}

// Query describes a nearest-neighbour lookup.
type Query struct {
	// Vector is the query embedding.
	Vector []float32

	// TopK is the maximum number of matches to return.
	TopK int

	// IncludeMetadata requests the stored payload with each match.
	IncludeMetadata bool
}

// Match is one scored result of a Query.
type Match struct {
	// ID is the record identifier.
	ID string

	// Score is the similarity to the query vector; higher is closer.
	Score float32

	// Metadata is the stored payload. Nil when metadata was not requested.
	Metadata map[string]string
}

// VectorStore is the common capability of every backend strategy.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert writes or overwrites the record keyed by rec.ID.
	Upsert(ctx context.Context, rec Record) error

	// Query returns up to q.TopK matches ordered by the backend's notion of
	// relevance (descending score for single-call backends, fetch order for
	// paginated ones).
	Query(ctx context.Context, q Query) ([]Match, error)

	// Close releases any resources held by the store.
	Close() error
}

// Deleter is implemented by stores that can remove records by id. Deleting
// an id that is not stored is not an error.
type Deleter interface {
	Delete(ctx context.Context, ids []string) error
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text with e. Any failure, including an empty
// response, is reported as ErrEmbedding.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", ErrEmbedding)
	}
	return vecs[0], nil
}
