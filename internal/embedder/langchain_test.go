package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/54b3r/ragctx-go/internal/rag"
)

func TestLangchainEmbedder_Batches(t *testing.T) {
	t.Parallel()

	var batches [][]string
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		batches = append(batches, texts)
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s))}
		}
		return out, nil
	})

	e, err := newLangchainFromClient(client, 2)
	if err != nil {
		t.Fatalf("newLangchainFromClient: %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc\nd"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(batches) != 2 {
		t.Errorf("want 2 batches of at most 2 texts, got %d", len(batches))
	}
	if len(vecs) != 3 || vecs[2][0] != 5 {
		t.Errorf("unexpected vectors %v (newlines must be preserved)", vecs)
	}
}

func TestLangchainEmbedder_ErrorIsClassified(t *testing.T) {
	t.Parallel()

	client := embeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("upstream down")
	})
	e, err := newLangchainFromClient(client, 0)
	if err != nil {
		t.Fatalf("newLangchainFromClient: %v", err)
	}
	if _, err := e.Embed(context.Background(), []string{"x"}); !errors.Is(err, rag.ErrEmbedding) {
		t.Errorf("want ErrEmbedding, got %v", err)
	}
}

func TestNewLangchainEmbedder_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewLangchainEmbedder(&LangchainConfig{Provider: "openai"}); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("missing key: want ErrInvalidInput, got %v", err)
	}
	if _, err := NewLangchainEmbedder(&LangchainConfig{Provider: "cohere"}); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("unknown provider: want ErrInvalidInput, got %v", err)
	}
}
