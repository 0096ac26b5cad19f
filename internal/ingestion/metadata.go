package ingestion

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FileMetadata holds the document type and display title inferred from a
// file path. Both are stored on every chunk record of the file.
type FileMetadata struct {
	// DocType classifies the source format (text, markdown, pdf, word, spreadsheet).
	DocType string
	// Title is a human-readable name derived from the file name.
	Title string
}

// docTypes maps a lower-case extension to its doc_type label.
var docTypes = map[string]string{
	".txt":  "text",
	".md":   "markdown",
	".pdf":  "pdf",
	".docx": "word",
	".xlsx": "spreadsheet",
}

// InferMetadata inspects path and returns best-effort metadata. Unknown
// extensions get the doc type "text".
//
// The title is the base name without its extension, with underscores,
// hyphens and dots turned into spaces and each word capitalised:
//
//	docs/employee_handbook-2024.pdf  ->  "Employee Handbook 2024"
func InferMetadata(path string) FileMetadata {
	base := filepath.Base(path)
	ext := filepath.Ext(base)

	m := FileMetadata{DocType: "text"}
	if dt, ok := docTypes[strings.ToLower(ext)]; ok {
		m.DocType = dt
	}

	stem := strings.TrimSuffix(base, ext)
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	for i, w := range words {
		words[i] = capitalise(w)
	}
	m.Title = strings.Join(words, " ")
	if m.Title == "" {
		m.Title = base
	}
	return m
}

func capitalise(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
