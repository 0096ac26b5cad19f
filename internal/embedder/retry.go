package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// StatusError is a non-2xx answer from an embedding endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Unwrap classifies every status error as an embedding failure.
func (e *StatusError) Unwrap() error { return rag.ErrEmbedding }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// isTransient reports whether err may succeed on a later attempt.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// RetryConfig bounds the retry loop of WithRetry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff delay.
	MaxInterval time.Duration
	// Logger receives one warning per retry. Optional.
	Logger *slog.Logger
}

// DefaultRetryConfig is used by NewFromEnv.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     4 * time.Second,
}

// retryEmbedder retries transient failures with exponential backoff.
type retryEmbedder struct {
	next rag.Embedder
	cfg  RetryConfig
}

// WithRetry wraps next so transient failures (network errors, timeouts, 429
// and 5xx) are retried with exponential backoff. Other failures return on the
// first attempt.
func WithRetry(next rag.Embedder, cfg RetryConfig) rag.Embedder {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultRetryConfig.MaxInterval
	}
	return &retryEmbedder{next: next, cfg: cfg}
}

// Embed implements rag.Embedder.
func (r *retryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, r.cfg.MaxRetries)
	b = backoff.WithContext(b, ctx)

	var out [][]float32
	op := func() error {
		vecs, err := r.next.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil || !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("embedder: retrying after transient failure",
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if errors.Is(err, rag.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("embedder: %w: %w", rag.ErrEmbedding, err)
	}
	return out, nil
}

// timeoutEmbedder bounds each call with a deadline.
type timeoutEmbedder struct {
	next    rag.Embedder
	timeout time.Duration
}

// WithTimeout wraps next so every Embed call is cancelled after d. A timeout
// is reported as rag.ErrEmbedding. A non-positive d returns next unchanged.
func WithTimeout(next rag.Embedder, d time.Duration) rag.Embedder {
	if d <= 0 {
		return next
	}
	return &timeoutEmbedder{next: next, timeout: d}
}

// Embed implements rag.Embedder.
func (t *timeoutEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	vecs, err := t.next.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, rag.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("embedder: %w: %w", rag.ErrEmbedding, err)
	}
	return vecs, nil
}

// Pinger is implemented by embedders with a zero-cost health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks e when it, or the embedder it decorates, implements Pinger.
// Embedders without a health check succeed.
func Ping(ctx context.Context, e rag.Embedder) error {
	if p, ok := e.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Ping forwards to the wrapped embedder.
func (r *retryEmbedder) Ping(ctx context.Context) error { return Ping(ctx, r.next) }

// Ping forwards to the wrapped embedder under the call timeout.
func (t *timeoutEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return Ping(ctx, t.next)
}
