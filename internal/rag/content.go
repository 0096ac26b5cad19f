package rag

import "strings"

// DefaultContentKeys lists the metadata keys consulted for match content, in
// priority order. Ingestion writes "content"; older indexes use "chunkContent".
var DefaultContentKeys = []string{ContentKey, "chunkContent"}

// cleaner strips the transport artifacts found in stored chunk text.
// "\r\n" is listed before "\n" so a CRLF pair is removed as one unit.
var cleaner = strings.NewReplacer("\r\n", "", "\n", "", "+", "")

// Clean removes CRLF and LF sequences and literal '+' characters.
// The output never contains '\n' or '+', so Clean is idempotent.
func Clean(s string) string {
	return cleaner.Replace(s)
}

// ContentOf returns the first non-empty metadata value among keys, and
// whether one was found.
func ContentOf(m Match, keys []string) (string, bool) {
	if m.Metadata == nil {
		return "", false
	}
	for _, k := range keys {
		if v := m.Metadata[k]; v != "" {
			return v, true
		}
	}
	return "", false
}
