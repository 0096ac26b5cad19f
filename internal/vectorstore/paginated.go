package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// Defaults for the cursor-paginated strategy.
const (
	DefaultThreshold  = 0.8
	DefaultBatchSize  = 5
	DefaultMaxBatches = 20
)

// PageRequest asks a PageSource for one batch of matches whose similarity to
// Vector is at least Threshold, ordered by id, starting strictly after the
// After cursor (empty for the first page).
type PageRequest struct {
	Vector    []float32
	Threshold float32
	Limit     int
	// After is the id of the last record already returned. Sources that
	// order by id resume after it.
	After string
	// Offset is the number of matches already returned. Sources that order
	// by similarity and cannot combine a vector search with an id cursor
	// skip that many instead.
	Offset          int
	IncludeMetadata bool
}

// PageSource is a backend that can serve threshold-filtered pages keyed by a
// record-id cursor.
type PageSource interface {
	FetchPage(ctx context.Context, req PageRequest) ([]rag.Match, error)
	Upsert(ctx context.Context, rec rag.Record) error
	Close() error
}

// Paginated is the cursor-paginated strategy. Query keeps requesting pages
// until one comes back empty and returns every batch concatenated in fetch
// order. The loop is bounded by MaxBatches and stops early if the cursor
// fails to advance.
type Paginated struct {
	Source PageSource

	// BatchSize is the page size. Zero falls back to Query.TopK, then 5.
	BatchSize int
	// Threshold is the minimum similarity. Zero means DefaultThreshold.
	Threshold float32
	// MaxBatches bounds the number of pages. Zero means DefaultMaxBatches.
	MaxBatches int

	Logger *slog.Logger
}

// Upsert delegates to the page source.
func (p *Paginated) Upsert(ctx context.Context, rec rag.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	return p.Source.Upsert(ctx, rec)
}

// Query runs the page loop. Results are in fetch order, not score order.
func (p *Paginated) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("paginated: query vector is empty: %w", rag.ErrInvalidInput)
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = q.TopK
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	maxBatches := p.MaxBatches
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		out    []rag.Match
		cursor string
	)
	for batch := 0; ; batch++ {
		if batch == maxBatches {
			log.WarnContext(ctx, "paginated: batch limit reached, returning partial results",
				slog.Int("batches", batch),
				slog.Int("matches", len(out)),
			)
			return out, nil
		}

		page, err := p.Source.FetchPage(ctx, PageRequest{
			Vector:          q.Vector,
			Threshold:       threshold,
			Limit:           batchSize,
			After:           cursor,
			Offset:          len(out),
			IncludeMetadata: q.IncludeMetadata,
		})
		if err != nil {
			return nil, fmt.Errorf("paginated: batch %d: %w", batch, err)
		}
		if len(page) == 0 {
			return out, nil
		}
		// A source that ignores the cursor repeats the page it already sent.
		next := page[len(page)-1].ID
		if next == cursor {
			log.WarnContext(ctx, "paginated: cursor did not advance, stopping",
				slog.String("cursor", cursor),
				slog.Int("matches", len(out)),
			)
			return out, nil
		}
		out = append(out, page...)
		cursor = next
	}
}

// Delete forwards to the page source when it can delete records.
func (p *Paginated) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	d, ok := p.Source.(rag.Deleter)
	if !ok {
		return fmt.Errorf("paginated: %T cannot delete records: %w", p.Source, errors.ErrUnsupported)
	}
	return d.Delete(ctx, ids)
}

// Ping checks the page source when it supports it.
func (p *Paginated) Ping(ctx context.Context) error {
	if pp, ok := p.Source.(interface{ Ping(context.Context) error }); ok {
		return pp.Ping(ctx)
	}
	return nil
}

// Close closes the page source.
func (p *Paginated) Close() error {
	return p.Source.Close()
}
