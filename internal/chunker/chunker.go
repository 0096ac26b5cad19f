// Package chunker splits raw document text into bounded, overlapping chunks
// along sentence-like boundaries. It is a pure, synchronous transform with
// no I/O; sizes are measured in runes, not bytes.
package chunker

import (
	"fmt"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// Default chunking policy used by the ingestion pipeline.
const (
	// DefaultMaxSize is the maximum number of runes per chunk.
	DefaultMaxSize = 2000
	// DefaultMinOverlap is the number of runes carried over from the tail of
	// the previous chunk.
	DefaultMinOverlap = 300
)

// Chunk is one contiguous segment of a document.
type Chunk struct {
	// Index is the zero-based position of the chunk in the document.
	Index int

	// Text is the chunk content, including any leading overlap.
	Text string

	// Overlap is the number of leading runes of Text copied from the tail of
	// the previous chunk. Always zero for the first chunk.
	Overlap int
}

// Novel returns the part of the chunk that is not repeated from its
// predecessor.
func (c Chunk) Novel() string {
	r := []rune(c.Text)
	return string(r[c.Overlap:])
}

// Split breaks text into chunks of at most maxSize runes, seeding each new
// chunk with up to minOverlap runes from the end of the previous one.
//
// Units are runs of text ending in one or more terminators ('.', '?', '!',
// '\n'); a trailing remainder without a terminator is its own unit. Units are
// never split: a unit longer than maxSize becomes a chunk of its own with no
// overlap. The seed is shortened when needed so that seed plus the pending
// unit still fits in maxSize.
//
// Empty input yields a single empty chunk so callers never silently drop a
// document. minOverlap must be smaller than maxSize.
func Split(text string, maxSize, minOverlap int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunker: max size must be positive, got %d: %w", maxSize, rag.ErrInvalidInput)
	}
	if minOverlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d: %w", minOverlap, rag.ErrInvalidInput)
	}
	if minOverlap >= maxSize {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than max size %d: %w", minOverlap, maxSize, rag.ErrInvalidInput)
	}
	if text == "" {
		return []Chunk{{Index: 0, Text: ""}}, nil
	}

	var (
		chunks  []Chunk
		buf     []rune
		overlap int
	)

	for _, unit := range units(text) {
		u := []rune(unit)
		if len(buf) > 0 && len(buf)+len(u) > maxSize {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(buf), Overlap: overlap})

			seed := min(minOverlap, maxSize-len(u), len(buf))
			seed = max(seed, 0)
			buf = append([]rune(nil), buf[len(buf)-seed:]...)
			overlap = seed
		}
		buf = append(buf, u...)
	}

	if len(buf) > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(buf), Overlap: overlap})
	}

	return chunks, nil
}

// Texts returns the text of each chunk in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// units splits text into sentence-like units. Concatenating the result
// reproduces text exactly.
func units(text string) []string {
	var out []string
	start := 0
	inTerm := false
	for i, r := range text {
		term := isTerminator(r)
		if inTerm && !term {
			out = append(out, text[start:i])
			start = i
		}
		inTerm = term
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// isTerminator reports whether r ends a sentence-like unit.
func isTerminator(r rune) bool {
	switch r {
	case '.', '?', '!', '\n':
		return true
	}
	return false
}
