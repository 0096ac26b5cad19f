package assembler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/54b3r/ragctx-go/internal/budget"
	"github.com/54b3r/ragctx-go/internal/rag"
)

// recordingEmbedder returns a fixed vector and remembers the last text.
type recordingEmbedder struct {
	last string
	err  error
}

func (e *recordingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.last = texts[0]
	return [][]float32{{1, 0}}, nil
}

// fixedStore returns canned matches and remembers the last query.
type fixedStore struct {
	matches []rag.Match
	err     error
	last    rag.Query
	delay   time.Duration
}

func (s *fixedStore) Upsert(context.Context, rag.Record) error { return nil }

func (s *fixedStore) Query(ctx context.Context, q rag.Query) ([]rag.Match, error) {
	s.last = q
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.matches, s.err
}

func (s *fixedStore) Close() error { return nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func content(id, text string) rag.Match {
	return rag.Match{ID: id, Score: 0.9, Metadata: map[string]string{rag.ContentKey: text}}
}

func newTestAssembler(t *testing.T, e rag.Embedder, s rag.VectorStore, cfg Config) *Assembler {
	t.Helper()
	cfg.Logger = quietLogger()
	a, err := New(e, s, &cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAssemble_LeavePolicyScenario(t *testing.T) {
	t.Parallel()

	emb := &recordingEmbedder{}
	store := &fixedStore{matches: []rag.Match{content("h_chunk_0", "Leave: 12 days\r\n")}}
	a := newTestAssembler(t, emb, store, Config{})

	res, err := a.Assemble(context.Background(), Request{Query: "leave policy", TokenBudget: 1000})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Text != "Leave: 12 days" || res.Length != 14 || res.TooLong {
		t.Errorf("got {%q, %d, %v}", res.Text, res.Length, res.TooLong)
	}
	if emb.last != "leave policy" {
		t.Errorf("embedded %q, want the raw query", emb.last)
	}
	if store.last.TopK != DefaultTopK || !store.last.IncludeMetadata {
		t.Errorf("store query: %+v", store.last)
	}
}

func TestAssemble_EmptyMatchSet(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t, &recordingEmbedder{}, &fixedStore{}, Config{})
	for _, b := range []int{0, 10} {
		res, err := a.Assemble(context.Background(), Request{Query: "anything", TokenBudget: b})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if res.Text != "" || res.Length != 0 || res.TooLong || res.Degraded {
			t.Errorf("budget %d: want empty result, got %+v", b, res)
		}
	}
}

func TestAssemble_OrderCleaningAndSkips(t *testing.T) {
	t.Parallel()

	store := &fixedStore{matches: []rag.Match{
		content("a", "First+line\n"),
		{ID: "no-meta", Score: 0.8},
		{ID: "legacy", Score: 0.7, Metadata: map[string]string{"chunkContent": "Legacy\r\nkey"}},
		{ID: "blank", Score: 0.6, Metadata: map[string]string{rag.ContentKey: ""}},
		content("b", " last."),
	}}
	a := newTestAssembler(t, &recordingEmbedder{}, store, Config{})

	res, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 100})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Text != "FirstlineLegacykey last." {
		t.Errorf("text: got %q", res.Text)
	}
	if res.Matches != 5 || res.Used != 3 {
		t.Errorf("matches/used: got %d/%d, want 5/3", res.Matches, res.Used)
	}
	if strings.ContainsAny(res.Text, "\n+") {
		t.Errorf("text not cleaned: %q", res.Text)
	}
}

func TestAssemble_TooLongBoundary(t *testing.T) {
	t.Parallel()

	store := &fixedStore{matches: []rag.Match{content("a", "12345")}}
	a := newTestAssembler(t, &recordingEmbedder{}, store, Config{})

	tests := []struct {
		budget int
		want   bool
	}{
		{budget: 6, want: false},
		{budget: 5, want: false},
		{budget: 4, want: true},
		{budget: 0, want: true},
	}
	for _, tt := range tests {
		res, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: tt.budget})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if res.TooLong != tt.want {
			t.Errorf("budget %d: TooLong = %v, want %v", tt.budget, res.TooLong, tt.want)
		}
		if res.Text != "12345" {
			t.Errorf("budget %d: text must never be truncated, got %q", tt.budget, res.Text)
		}
	}
}

func TestAssemble_TopicHint(t *testing.T) {
	t.Parallel()

	emb := &recordingEmbedder{}
	a := newTestAssembler(t, emb, &fixedStore{}, Config{})
	if _, err := a.Assemble(context.Background(), Request{Query: "how many days?", Topic: "leave", TokenBudget: 10}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if emb.last != "leave - how many days?" {
		t.Errorf("embedded %q", emb.last)
	}
}

func TestAssemble_InvalidInput(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t, &recordingEmbedder{}, &fixedStore{}, Config{})
	for _, req := range []Request{
		{Query: "", TokenBudget: 10},
		{Query: " \t\n", TokenBudget: 10},
		{Query: "ok", TokenBudget: -1},
	} {
		if _, err := a.Assemble(context.Background(), req); !errors.Is(err, rag.ErrInvalidInput) {
			t.Errorf("%+v: want ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestAssemble_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	emb := &recordingEmbedder{err: errors.New("connection refused")}
	store := &fixedStore{matches: []rag.Match{content("a", "x")}}
	a := newTestAssembler(t, emb, store, Config{})

	_, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 10})
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Errorf("want ErrEmbedding, got %v", err)
	}
}

func TestAssemble_StoreFailurePolicy(t *testing.T) {
	t.Parallel()

	storeErr := fmt.Errorf("index: %w", rag.ErrStore)

	t.Run("degrade by default", func(t *testing.T) {
		t.Parallel()
		a := newTestAssembler(t, &recordingEmbedder{}, &fixedStore{err: storeErr}, Config{})
		res, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 10})
		if err != nil {
			t.Fatalf("want degraded result, got error %v", err)
		}
		if !res.Degraded || res.Text != "" || res.Length != 0 || res.TooLong {
			t.Errorf("unexpected degraded result: %+v", res)
		}
	})

	t.Run("fail when configured", func(t *testing.T) {
		t.Parallel()
		a := newTestAssembler(t, &recordingEmbedder{}, &fixedStore{err: errors.New("boom")}, Config{FailOnStoreError: true})
		_, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 10})
		if !errors.Is(err, rag.ErrStore) {
			t.Errorf("want ErrStore, got %v", err)
		}
	})

	t.Run("timeout is a store failure", func(t *testing.T) {
		t.Parallel()
		store := &fixedStore{delay: time.Second}
		a := newTestAssembler(t, &recordingEmbedder{}, store, Config{StoreTimeout: 10 * time.Millisecond, FailOnStoreError: true})
		_, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 10})
		if !errors.Is(err, rag.ErrStore) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("want ErrStore wrapping DeadlineExceeded, got %v", err)
		}
	})
}

func TestAssemble_MaxPerMatchAndCounter(t *testing.T) {
	t.Parallel()

	store := &fixedStore{matches: []rag.Match{
		content("a", "abcdefgh"),
		content("b", "12345678"),
	}}
	a := newTestAssembler(t, &recordingEmbedder{}, store, Config{MaxPerMatch: 3})
	res, err := a.Assemble(context.Background(), Request{Query: "q", TokenBudget: 100})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Text != "abc123" || res.Length != 6 {
		t.Errorf("got %q (%d)", res.Text, res.Length)
	}

	est := newTestAssembler(t, &recordingEmbedder{}, store, Config{Counter: budget.EstimateCounter{}})
	res, err = est.Assemble(context.Background(), Request{Query: "q", TokenBudget: 3})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Length != 4 || !res.TooLong {
		t.Errorf("estimate counter: got length %d tooLong %v", res.Length, res.TooLong)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fixedStore{}, nil); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("nil embedder: got %v", err)
	}
	if _, err := New(&recordingEmbedder{}, nil, nil); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("nil store: got %v", err)
	}
	if _, err := New(&recordingEmbedder{}, &fixedStore{}, &Config{TopK: -1}); !errors.Is(err, rag.ErrInvalidInput) {
		t.Errorf("negative topK: got %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	store := &fixedStore{matches: []rag.Match{
		{ID: "a", Score: 0.91, Metadata: map[string]string{rag.ContentKey: "Alpha\n", "source": "a.txt"}},
		{ID: "skip", Score: 0.85},
		{ID: "b", Score: 0.8, Metadata: map[string]string{rag.ContentKey: "Beta"}},
	}}
	a := newTestAssembler(t, &recordingEmbedder{}, store, Config{})

	docs, err := a.Retrieve(context.Background(), "q", retriever.WithTopK(2))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.last.TopK != 2 {
		t.Errorf("WithTopK not applied: %d", store.last.TopK)
	}
	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.ID + "=" + d.Content
	}
	if diff := cmp.Diff([]string{"a=Alpha", "b=Beta"}, got); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}
	if s := docs[0].Score(); s < 0.909 || s > 0.911 {
		t.Errorf("score: got %v", s)
	}
	if docs[0].MetaData["source"] != "a.txt" {
		t.Errorf("metadata not carried: %v", docs[0].MetaData)
	}
}

func TestResultMessage(t *testing.T) {
	t.Parallel()

	if (&Result{}).Message() != nil {
		t.Error("empty context should render no message")
	}
	msg := (&Result{Text: "Leave: 12 days"}).Message()
	if msg == nil || msg.Role != schema.System || !strings.HasSuffix(msg.Content, "Leave: 12 days") {
		t.Errorf("unexpected message: %+v", msg)
	}
}
