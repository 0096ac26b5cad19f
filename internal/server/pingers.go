package server

import (
	"context"
	"fmt"

	"github.com/54b3r/ragctx-go/internal/embedder"
	"github.com/54b3r/ragctx-go/internal/rag"
	"github.com/54b3r/ragctx-go/internal/vectorstore"
)

// StorePinger checks a vector store using its native health check when the
// backend has one. It satisfies the Pinger interface and is used by
// GET /api/ready.
type StorePinger struct {
	// store is the vector store to check.
	store rag.VectorStore
	// name identifies the backend in readiness responses (e.g. "qdrant").
	name string
}

// NewStorePinger constructs a StorePinger for the given store and backend name.
func NewStorePinger(store rag.VectorStore, name string) *StorePinger {
	return &StorePinger{store: store, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping checks the store. Backends without a health check always succeed.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := vectorstore.Ping(ctx, p.store); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger checks an embedding backend. Only backends that expose a
// free health check (Ollama) are checked; hosted APIs are never called, so a
// readiness check spends no tokens.
type EmbedderPinger struct {
	// embedder is the embedding backend to check.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping runs the embedder's health check if it has one.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if err := embedder.Ping(ctx, p.embedder); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}
