package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// LangchainEmbedder implements rag.Embedder on top of a langchaingo
// embeddings.Embedder, which adds batching and newline stripping.
type LangchainEmbedder struct {
	inner embeddings.Embedder
}

// LangchainConfig selects the langchaingo client that backs the embedder.
type LangchainConfig struct {
	// Provider is "openai" or "ollama".
	Provider string
	// BaseURL is the API base for openai or the server URL for ollama.
	BaseURL string
	// APIKey is required for openai.
	APIKey string
	// Model is the embedding model name.
	Model string
	// BatchSize bounds the texts sent per request. 0 uses the library default.
	BatchSize int
}

// NewLangchainEmbedder builds a langchaingo client for cfg.Provider and
// wraps it in an embeddings.EmbedderImpl.
func NewLangchainEmbedder(cfg *LangchainConfig) (*LangchainEmbedder, error) {
	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("langchain embedder: openai requires an API key: %w", rag.ErrInvalidInput)
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("langchain embedder: create openai client: %w", err)
		}
		client = llm
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("langchain embedder: create ollama client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("langchain embedder: unknown provider %q: %w", cfg.Provider, rag.ErrInvalidInput)
	}
	return newLangchainFromClient(client, cfg.BatchSize)
}

// newLangchainFromClient wraps any langchaingo EmbedderClient.
func newLangchainFromClient(client embeddings.EmbedderClient, batchSize int) (*LangchainEmbedder, error) {
	var opts []embeddings.Option
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	// Chunk text is embedded verbatim so ingest and query see the same input.
	opts = append(opts, embeddings.WithStripNewLines(false))

	inner, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain embedder: %w", err)
	}
	return &LangchainEmbedder{inner: inner}, nil
}

// Embed implements rag.Embedder.
func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("langchain embedder: %w: %w", rag.ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("langchain embedder: expected %d embeddings, got %d: %w", len(texts), len(vecs), rag.ErrEmbedding)
	}
	return vecs, nil
}
