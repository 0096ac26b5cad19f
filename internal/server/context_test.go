package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/ragctx-go/internal/assembler"
	"github.com/54b3r/ragctx-go/internal/rag"
)

func postContext(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleContext(w, req)
	return w
}

func TestHandleContext_OK(t *testing.T) {
	t.Parallel()

	fa := &fakeAssembler{res: &assembler.Result{Text: "Leave: 12 days", Length: 14, Matches: 1, Used: 1}}
	s := newTestServer()
	s.assembler = fa

	w := postContext(s, `{"query":"leave policy","topic":"hr","tokenBudget":1000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}

	var resp contextResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "Leave: 12 days" || resp.Length != 14 || resp.TooLong || resp.Degraded {
		t.Errorf("unexpected response: %+v", resp)
	}
	if fa.last != (assembler.Request{Query: "leave policy", Topic: "hr", TokenBudget: 1000}) {
		t.Errorf("unexpected request: %+v", fa.last)
	}
	if got := testutil.ToFloat64(s.metrics.contextRequestsTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("ok counter: got %v", got)
	}
}

func TestHandleContext_BudgetDefaultAndZero(t *testing.T) {
	t.Parallel()

	fa := &fakeAssembler{}
	s := newTestServer()
	s.assembler = fa
	s.cfg.DefaultBudget = 250

	postContext(s, `{"query":"q"}`)
	if fa.last.TokenBudget != 250 {
		t.Errorf("missing budget should use the default, got %d", fa.last.TokenBudget)
	}

	postContext(s, `{"query":"q","tokenBudget":0}`)
	if fa.last.TokenBudget != 0 {
		t.Errorf("explicit zero budget must be kept, got %d", fa.last.TokenBudget)
	}
}

func TestHandleContext_TooLongAndDegraded(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.assembler = &fakeAssembler{res: &assembler.Result{Text: "12345", Length: 5, TooLong: true}}
	w := postContext(s, `{"query":"q","tokenBudget":4}`)
	var resp contextResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || !resp.TooLong || resp.Text != "12345" {
		t.Errorf("too long: code %d resp %+v", w.Code, resp)
	}
	if got := testutil.ToFloat64(s.metrics.contextTooLongTotal); got != 1 {
		t.Errorf("too_long counter: got %v", got)
	}

	s.assembler = &fakeAssembler{res: &assembler.Result{Degraded: true}}
	w = postContext(s, `{"query":"q"}`)
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || !resp.Degraded || resp.Text != "" {
		t.Errorf("degraded: code %d resp %+v", w.Code, resp)
	}
	if got := testutil.ToFloat64(s.metrics.contextRequestsTotal.WithLabelValues(outcomeDegraded)); got != 1 {
		t.Errorf("degraded counter: got %v", got)
	}
}

func TestHandleContext_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("assembler: query must not be empty: %w", rag.ErrInvalidInput), http.StatusBadRequest},
		{"embedding", fmt.Errorf("embedder: %w: boom", rag.ErrEmbedding), http.StatusBadGateway},
		{"store", fmt.Errorf("vectorstore: %w: refused", rag.ErrStore), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("%w: %w", rag.ErrStore, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			s.assembler = &fakeAssembler{err: tc.err}
			w := postContext(s, `{"query":"q"}`)
			if w.Code != tc.want {
				t.Fatalf("want %d, got %d", tc.want, w.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestHandleContext_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	for _, body := range []string{"", "{not json", `{"query":` + strings.Repeat(`"x`, maxRequestBytes) + `"}`} {
		if w := postContext(s, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %.20q: want 400, got %d", body, w.Code)
		}
	}
}
