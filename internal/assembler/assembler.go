// Package assembler turns a user query into a prompt-ready context block.
//
// Assemble embeds the query, fetches the nearest chunks from the vector
// store, cleans and concatenates their content in match order and measures
// the result against the caller's budget. It never truncates the
// concatenated text; TooLong tells the caller that it overflowed.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/ragctx-go/internal/budget"
	"github.com/54b3r/ragctx-go/internal/rag"
	"github.com/54b3r/ragctx-go/internal/tracing"
)

// DefaultTopK is the number of matches requested when Config.TopK is zero.
const DefaultTopK = 5

// Config holds the assembler options. The zero value is usable.
type Config struct {
	// TopK is the number of matches requested from the store.
	// Defaults to DefaultTopK if zero.
	TopK int

	// ContentKeys lists the metadata keys holding chunk text, in priority
	// order. Defaults to rag.DefaultContentKeys.
	ContentKeys []string

	// MaxPerMatch, when positive, truncates each cleaned match content to
	// this many Counter units before concatenation.
	MaxPerMatch int

	// Counter measures Length. Defaults to budget.Chars.
	Counter budget.Counter

	// EmbedTimeout and StoreTimeout bound the embedding and store calls.
	// Zero means no extra deadline beyond the caller's context.
	EmbedTimeout time.Duration
	StoreTimeout time.Duration

	// FailOnStoreError returns store failures to the caller. By default a
	// store failure degrades to an empty context with Result.Degraded set.
	FailOnStoreError bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Request is one assembly request.
type Request struct {
	// Query is the user's question. It must contain a non-space character.
	Query string
	// Topic, when set, is prepended as "{topic} - {query}" before embedding.
	Topic string
	// TokenBudget is the maximum Length before TooLong is set.
	TokenBudget int
}

// Result is the assembled context.
type Result struct {
	// Text is the cleaned match content concatenated without separator.
	Text string
	// Length is Text measured by the configured counter.
	Length int
	// TooLong is true iff Length > TokenBudget.
	TooLong bool
	// Degraded is true when the store failed and the empty context was
	// returned in its place.
	Degraded bool
	// Matches is the number of matches returned by the store.
	Matches int
	// Used is the number of matches that contributed content.
	Used int

	docs []scoredContent
}

type scoredContent struct {
	id      string
	score   float32
	content string
	meta    map[string]string
}

// Assembler builds context blocks from an embedder and a vector store.
// It holds no mutable state and is safe for concurrent use.
type Assembler struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      Config
	log      *slog.Logger
}

// New constructs an Assembler from the given dependencies and config.
func New(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Assembler, error) {
	if embedder == nil {
		return nil, fmt.Errorf("assembler: embedder must not be nil: %w", rag.ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("assembler: store must not be nil: %w", rag.ErrInvalidInput)
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.TopK < 0 {
		return nil, fmt.Errorf("assembler: topK must not be negative, got %d: %w", c.TopK, rag.ErrInvalidInput)
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if len(c.ContentKeys) == 0 {
		c.ContentKeys = rag.DefaultContentKeys
	}
	if c.Counter == nil {
		c.Counter = budget.Chars{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Assembler{embedder: embedder, store: store, cfg: c, log: c.Logger}, nil
}

// Assemble embeds the (topic-prefixed) query, fetches up to TopK matches and
// returns their cleaned content concatenated in match order.
//
// An empty query or a negative budget is rag.ErrInvalidInput. An embedding
// failure is returned as rag.ErrEmbedding. A store failure either degrades to
// an empty Result with Degraded set, or is returned as rag.ErrStore when
// FailOnStoreError is configured.
func (a *Assembler) Assemble(ctx context.Context, req Request) (res *Result, err error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("assembler: query must not be empty: %w", rag.ErrInvalidInput)
	}
	if req.TokenBudget < 0 {
		return nil, fmt.Errorf("assembler: token budget must not be negative, got %d: %w", req.TokenBudget, rag.ErrInvalidInput)
	}

	ctx, span := tracing.StartAssembleSpan(ctx, a.cfg.TopK, req.TokenBudget)
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.RecordAssembly(span, res.Matches, res.Used, res.Length, res.TooLong, res.Degraded)
		}
		span.End()
	}()

	vec, err := a.embed(ctx, queryText(req))
	if err != nil {
		return nil, err
	}

	matches, err := a.query(ctx, vec)
	if err != nil {
		if a.cfg.FailOnStoreError {
			return nil, err
		}
		a.log.Warn("assembler: vector store unavailable, continuing without context",
			slog.String("error", err.Error()),
		)
		return &Result{Degraded: true}, nil
	}

	return a.build(matches, req.TokenBudget), nil
}

// queryText applies the topic hint.
func queryText(req Request) string {
	if t := strings.TrimSpace(req.Topic); t != "" {
		return t + " - " + req.Query
	}
	return req.Query
}

func (a *Assembler) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracing.StartEmbedSpan(ctx, 1)
	defer span.End()
	if a.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.EmbedTimeout)
		defer cancel()
	}
	vec, err := rag.EmbedOne(ctx, a.embedder, text)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("assembler: embed query: %w", err)
	}
	return vec, nil
}

func (a *Assembler) query(ctx context.Context, vec []float32) ([]rag.Match, error) {
	ctx, span := tracing.StartStoreSpan(ctx, "query")
	defer span.End()
	if a.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.StoreTimeout)
		defer cancel()
	}
	matches, err := a.store.Query(ctx, rag.Query{Vector: vec, TopK: a.cfg.TopK, IncludeMetadata: true})
	if err != nil {
		tracing.RecordError(span, err)
		if !errors.Is(err, rag.ErrStore) {
			err = fmt.Errorf("%w: %w", rag.ErrStore, err)
		}
		return nil, fmt.Errorf("assembler: query store: %w", err)
	}
	return matches, nil
}

// build concatenates cleaned match content in match order.
func (a *Assembler) build(matches []rag.Match, tokenBudget int) *Result {
	res := &Result{Matches: len(matches)}
	var b strings.Builder
	for _, m := range matches {
		raw, ok := rag.ContentOf(m, a.cfg.ContentKeys)
		if !ok {
			a.log.Debug("assembler: match has no content, skipping", slog.String("id", m.ID))
			continue
		}
		content := rag.Clean(raw)
		if a.cfg.MaxPerMatch > 0 {
			content = budget.Truncate(content, a.cfg.MaxPerMatch, a.cfg.Counter)
		}
		b.WriteString(content)
		res.Used++
		res.docs = append(res.docs, scoredContent{id: m.ID, score: m.Score, content: content, meta: m.Metadata})
	}
	res.Text = b.String()
	res.Length = a.cfg.Counter.Count(res.Text)
	res.TooLong = res.Length > tokenBudget
	return res
}
