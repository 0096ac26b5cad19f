package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore is the single-call strategy backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it with cosine distance if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required: %w", rag.ErrInvalidInput)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w: %w", rag.ErrStore, err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w: %w", rag.ErrStore, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w: %w", s.cfg.Collection, rag.ErrStore, err)
	}

	return nil
}

// Upsert writes rec as a single point. The point id is derived from rec.ID
// with PointID; the original id is kept in the payload under RecordIDKey.
func (s *QdrantStore) Upsert(ctx context.Context, rec rag.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	payload := make(map[string]any, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		payload[k] = v
	}
	payload[RecordIDKey] = rec.ID

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(PointID(rec.ID)),
			Vectors: qdrant.NewVectorsDense(rec.Vector),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w: %w", rag.ErrStore, err)
	}

	return nil
}

// Query performs a cosine similarity search and returns up to q.TopK matches
// ordered by descending score.
func (s *QdrantStore) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	// Without metadata only the record id is fetched back.
	payload := qdrant.NewWithPayloadInclude(RecordIDKey)
	if q.IncludeMetadata {
		payload = qdrant.NewWithPayload(true)
	}

	limit := uint64(q.TopK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQueryDense(q.Vector),
		Limit:          &limit,
		WithPayload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %w", rag.ErrStore, err)
	}

	matches := make([]rag.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, matchFromPoint(r, q.IncludeMetadata))
	}

	return matches, nil
}

// matchFromPoint converts a scored point into a match. The record id comes
// from the RecordIDKey payload field and falls back to the point UUID for
// points written by other tools. RecordIDKey never appears in the metadata.
func matchFromPoint(p *qdrant.ScoredPoint, withMetadata bool) rag.Match {
	m := rag.Match{ID: p.GetId().GetUuid(), Score: p.GetScore()}
	payload := p.GetPayload()
	if v, ok := payload[RecordIDKey]; ok && v.GetStringValue() != "" {
		m.ID = v.GetStringValue()
	}
	if !withMetadata {
		return m
	}
	for k, v := range payload {
		if k == RecordIDKey {
			continue
		}
		if m.Metadata == nil {
			m.Metadata = make(map[string]string, len(payload))
		}
		m.Metadata[k] = v.GetStringValue()
	}
	return m
}

// Delete removes records from the collection by their record ids.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(PointID(id)))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w: %w", rag.ErrStore, err)
	}

	return nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
