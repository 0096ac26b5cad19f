package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// timeoutStore bounds each call of the wrapped store with a deadline.
type timeoutStore struct {
	next    rag.VectorStore
	timeout time.Duration
}

// WithTimeout wraps next so each Upsert and Query is cancelled after d. A
// timeout surfaces as rag.ErrStore. A non-positive d returns next unchanged.
func WithTimeout(next rag.VectorStore, d time.Duration) rag.VectorStore {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, timeout: d}
}

func (t *timeoutStore) Upsert(ctx context.Context, rec rag.Record) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Upsert(ctx, rec))
}

func (t *timeoutStore) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	m, err := t.next.Query(ctx, q)
	return m, classify(err)
}

func (t *timeoutStore) Delete(ctx context.Context, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	err := Delete(ctx, t.next, ids)
	if errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	return classify(err)
}

// Ping forwards to the wrapped store when it supports a health check.
func (t *timeoutStore) Ping(ctx context.Context) error {
	return Ping(ctx, t.next)
}

func (t *timeoutStore) Close() error { return t.next.Close() }

// classify wraps errors that carry no kind yet as rag.ErrStore.
func classify(err error) error {
	if err == nil || errors.Is(err, rag.ErrStore) || errors.Is(err, rag.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("vectorstore: %w: %w", rag.ErrStore, err)
}

// Pinger is implemented by stores that can be checked for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Delete removes ids from s. It fails with an error wrapping
// errors.ErrUnsupported when s cannot delete records.
func Delete(ctx context.Context, s rag.VectorStore, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	d, ok := s.(rag.Deleter)
	if !ok {
		return fmt.Errorf("vectorstore: %T cannot delete records: %w", s, errors.ErrUnsupported)
	}
	return d.Delete(ctx, ids)
}

// Ping checks s when it implements Pinger and succeeds otherwise.
func Ping(ctx context.Context, s rag.VectorStore) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
