package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// RESTConfig configures a RESTStore.
type RESTConfig struct {
	// BaseURL is the index service root, e.g. "https://vectors.example.com".
	BaseURL string
	// Index is the index name.
	Index string
	// APIKey is sent as the Api-Key header when set.
	APIKey string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// RESTStore is the single-call strategy for index services that expose a
// plain JSON query endpoint.
type RESTStore struct {
	base   string
	index  string
	header http.Header
	client *http.Client
}

// NewRESTStore validates cfg and returns a RESTStore.
func NewRESTStore(cfg *RESTConfig) (*RESTStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest store: base URL is required: %w", rag.ErrInvalidInput)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("rest store: index name is required: %w", rag.ErrInvalidInput)
	}
	h := http.Header{}
	if cfg.APIKey != "" {
		h.Set("Api-Key", cfg.APIKey)
	}
	return &RESTStore{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		index:  cfg.Index,
		header: h,
		client: defaultHTTPClient(cfg.HTTPClient),
	}, nil
}

type restQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"top_k"`
	IncludeMetadata bool      `json:"include_metadata"`
}

type restQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type restVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type restUpsertRequest struct {
	Vectors []restVector `json:"vectors"`
}

func (s *RESTStore) endpoint(path string) string {
	return s.base + "/indexes/" + url.PathEscape(s.index) + path
}

// Upsert writes rec through the index's upsert endpoint.
func (s *RESTStore) Upsert(ctx context.Context, rec rag.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	body := restUpsertRequest{Vectors: []restVector{{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}}}
	if err := doJSON(ctx, s.client, http.MethodPost, s.endpoint("/vectors/upsert"), s.header, body, nil); err != nil {
		return fmt.Errorf("rest store: upsert %q: %w", rec.ID, err)
	}
	return nil
}

// Query returns the service's matches in the order it reports them.
func (s *RESTStore) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var resp restQueryResponse
	req := restQueryRequest{Vector: q.Vector, TopK: q.TopK, IncludeMetadata: q.IncludeMetadata}
	if err := doJSON(ctx, s.client, http.MethodPost, s.endpoint("/query"), s.header, req, &resp); err != nil {
		return nil, fmt.Errorf("rest store: query: %w", err)
	}

	matches := make([]rag.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.ID == "" {
			return nil, fmt.Errorf("rest store: query: match without id: %w", rag.ErrStore)
		}
		matches = append(matches, rag.Match{ID: m.ID, Score: m.Score, Metadata: stringify(m.Metadata)})
	}
	return matches, nil
}

// Close releases idle connections.
func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
