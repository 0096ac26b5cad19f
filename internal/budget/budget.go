// Package budget measures assembled context against a length budget.
// The assembler reports Length and TooLong using one of the counters here.
// Chars counts runes and is the default. EstimateCounter applies the
// conservative 1 token ≈ 4 characters heuristic. TiktokenCounter counts
// real BPE tokens for OpenAI models.
package budget

import (
	"fmt"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation.
	charsPerToken = 4

	// DefaultEncoding is the tiktoken encoding used by the OpenAI embedding
	// and chat models.
	DefaultEncoding = "cl100k_base"
)

// Counter names accepted by CounterFor.
const (
	CounterChars    = "chars"
	CounterEstimate = "estimate"
	CounterTiktoken = "tiktoken"
)

// Counter measures the length of a string in budget units.
type Counter interface {
	Count(s string) int
}

// Chars counts Unicode code points.
type Chars struct{}

// Count returns the number of runes in s.
func (Chars) Count(s string) int { return utf8.RuneCountInString(s) }

// EstimateCounter counts approximate tokens with Estimate.
type EstimateCounter struct{}

// Count returns Estimate(s).
func (EstimateCounter) Count(s string) int { return Estimate(s) }

// TiktokenCounter counts BPE tokens.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding. The BPE ranks are fetched and
// cached by tiktoken-go on first use, so this may perform network I/O.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("budget: load encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in s.
func (t *TiktokenCounter) Count(s string) int { return len(t.enc.EncodeOrdinary(s)) }

// CounterFor returns the counter registered under name. An empty name
// selects Chars.
func CounterFor(name string) (Counter, error) {
	switch name {
	case "", CounterChars:
		return Chars{}, nil
	case CounterEstimate:
		return EstimateCounter{}, nil
	case CounterTiktoken:
		return NewTiktokenCounter(DefaultEncoding)
	default:
		return nil, fmt.Errorf("budget: unknown counter %q, valid values: chars, estimate, tiktoken", name)
	}
}

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	runes := utf8.RuneCountInString(s)
	n := runes / charsPerToken
	if n == 0 && runes > 0 {
		return 1
	}
	return n
}

// Truncate returns the longest rune prefix of s whose length under c does
// not exceed limit. A non-positive limit yields the empty string.
func Truncate(s string, limit int, c Counter) string {
	if limit <= 0 {
		return ""
	}
	if c.Count(s) <= limit {
		return s
	}
	if _, ok := c.(Chars); ok {
		return prefix(s, limit)
	}

	// Binary search on the rune length of the prefix.
	lo, hi := 0, utf8.RuneCountInString(s)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.Count(prefix(s, mid)) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return prefix(s, lo)
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}
