package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// DefaultWeaviateProperties are the object properties read back with each
// match. They mirror the metadata written by the ingestion pipeline.
var DefaultWeaviateProperties = []string{rag.ContentKey, "source", "title", "doc_type", "chunk_index"}

// WeaviateConfig configures a WeaviatePages source.
type WeaviateConfig struct {
	// BaseURL is the Weaviate root, e.g. "http://localhost:8080".
	BaseURL string
	// Class is the object class holding the records.
	Class string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Properties lists the properties returned as match metadata.
	// Defaults to DefaultWeaviateProperties.
	Properties []string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// WeaviatePages is a PageSource that talks to Weaviate over its REST and
// GraphQL endpoints. Records are stored as objects whose UUID is derived
// from the record id with PointID.
type WeaviatePages struct {
	base   string
	class  string
	props  []string
	header http.Header
	client *http.Client
}

// NewWeaviatePages validates cfg and returns a WeaviatePages.
func NewWeaviatePages(cfg *WeaviateConfig) (*WeaviatePages, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("weaviate: base URL is required: %w", rag.ErrInvalidInput)
	}
	if cfg.Class == "" {
		return nil, fmt.Errorf("weaviate: class is required: %w", rag.ErrInvalidInput)
	}
	props := cfg.Properties
	if len(props) == 0 {
		props = DefaultWeaviateProperties
	}
	h := http.Header{}
	if cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &WeaviatePages{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		class:  cfg.Class,
		props:  props,
		header: h,
		client: defaultHTTPClient(cfg.HTTPClient),
	}, nil
}

type weaviateObject struct {
	Class      string         `json:"class"`
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Vector     []float32      `json:"vector"`
}

// Upsert replaces the object for rec, creating it when it does not exist.
func (w *WeaviatePages) Upsert(ctx context.Context, rec rag.Record) error {
	id := PointID(rec.ID)
	props := make(map[string]any, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		props[k] = v
	}
	props[RecordIDKey] = rec.ID
	obj := weaviateObject{Class: w.class, ID: id, Properties: props, Vector: rec.Vector}

	putURL := w.base + "/v1/objects/" + url.PathEscape(w.class) + "/" + id
	err := doJSON(ctx, w.client, http.MethodPut, putURL, w.header, obj, nil)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		err = doJSON(ctx, w.client, http.MethodPost, w.base+"/v1/objects", w.header, obj, nil)
	}
	if err != nil {
		return fmt.Errorf("weaviate: upsert %q: %w", rec.ID, err)
	}
	return nil
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data struct {
		Get map[string][]map[string]any `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchPage runs one nearVector query with a certainty threshold. Weaviate
// rejects its after cursor in combination with nearVector, so pages are
// addressed with req.Offset and req.After is ignored.
func (w *WeaviatePages) FetchPage(ctx context.Context, req PageRequest) ([]rag.Match, error) {
	var resp graphQLResponse
	body := graphQLRequest{Query: w.pageQuery(req)}
	if err := doJSON(ctx, w.client, http.MethodPost, w.base+"/v1/graphql", w.header, body, &resp); err != nil {
		return nil, fmt.Errorf("weaviate: page: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: page: %s: %w", resp.Errors[0].Message, rag.ErrStore)
	}

	objs := resp.Data.Get[w.class]
	page := make([]rag.Match, 0, len(objs))
	for _, obj := range objs {
		m, err := w.toMatch(obj, req.IncludeMetadata)
		if err != nil {
			return nil, err
		}
		page = append(page, m)
	}
	return page, nil
}

// pageQuery renders the GraphQL Get query for req.
func (w *WeaviatePages) pageQuery(req PageRequest) string {
	var b strings.Builder
	b.WriteString("{ Get { ")
	b.WriteString(w.class)
	b.WriteString("(nearVector: {vector: [")
	for i, f := range req.Vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteString("], certainty: ")
	b.WriteString(strconv.FormatFloat(float64(req.Threshold), 'g', -1, 32))
	b.WriteString("}, limit: ")
	b.WriteString(strconv.Itoa(req.Limit))
	if req.Offset > 0 {
		b.WriteString(", offset: ")
		b.WriteString(strconv.Itoa(req.Offset))
	}
	b.WriteString(") { ")
	b.WriteString(RecordIDKey)
	if req.IncludeMetadata {
		for _, p := range w.props {
			b.WriteByte(' ')
			b.WriteString(p)
		}
	}
	b.WriteString(" _additional { id certainty } } } }")
	return b.String()
}

// toMatch converts one GraphQL object into a match. The match id is the
// stored record id, falling back to the object UUID.
func (w *WeaviatePages) toMatch(obj map[string]any, withMeta bool) (rag.Match, error) {
	var extra struct {
		ID        string  `json:"id"`
		Certainty float32 `json:"certainty"`
	}
	raw, err := json.Marshal(obj["_additional"])
	if err == nil {
		err = json.Unmarshal(raw, &extra)
	}
	if err != nil || extra.ID == "" {
		return rag.Match{}, fmt.Errorf("weaviate: object without _additional.id: %w", rag.ErrStore)
	}

	m := rag.Match{ID: extra.ID, Score: extra.Certainty}
	if rid, ok := obj[RecordIDKey].(string); ok && rid != "" {
		m.ID = rid
	}
	if withMeta {
		props := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "_additional" && k != RecordIDKey {
				props[k] = v
			}
		}
		m.Metadata = stringify(props)
	}
	return m, nil
}

// Ping calls the readiness endpoint.
func (w *WeaviatePages) Ping(ctx context.Context) error {
	if err := doJSON(ctx, w.client, http.MethodGet, w.base+"/v1/.well-known/ready", w.header, nil, nil); err != nil {
		return fmt.Errorf("weaviate: ready: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (w *WeaviatePages) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
