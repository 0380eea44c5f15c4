// Package extract pulls indexable text out of uploaded files. Each file
// format is handled by a strategy registered with the Registry; extraction
// failures degrade to empty content rather than failing the caller.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
)

// MaxContentChars caps the amount of text kept per file. Anything beyond
// this is not useful for ranking and bloats the index.
const MaxContentChars = 10000

// Extractor converts one family of file formats to plain text
type Extractor interface {
	// CanExtract reports whether this strategy handles the given file
	CanExtract(mimeType, filename string) bool

	// Extract returns the plain text content of the file at path
	Extract(path string) (string, error)
}

// Registry dispatches extraction to the first matching strategy
type Registry struct {
	extractors []Extractor
	logger     *logging.Logger
}

// NewRegistry creates a registry with the default strategies installed
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	r := &Registry{
		logger: logger.WithComponent("extract"),
	}
	r.Register(NewTextExtractor())
	r.Register(NewPDFExtractor())
	r.Register(NewOfficeExtractor())
	r.Register(NewArchiveExtractor())
	return r
}

// Register appends a strategy. Strategies are consulted in registration
// order and the first match wins.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Extract returns indexable text for the file at path, capped at
// MaxContentChars. It never fails: unknown formats and extraction errors
// both yield an empty string so the file is still indexed by name.
func (r *Registry) Extract(path, mimeType string) string {
	for _, e := range r.extractors {
		if !e.CanExtract(mimeType, path) {
			continue
		}

		text, err := e.Extract(path)
		if err != nil {
			r.logger.Debug("content extraction failed", map[string]interface{}{
				"path":  path,
				"mime":  mimeType,
				"error": err.Error(),
			})
			return ""
		}
		return Truncate(text)
	}
	return ""
}

// Truncate caps text at MaxContentChars runes and trims surrounding
// whitespace.
func Truncate(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxContentChars {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:MaxContentChars]))
}
