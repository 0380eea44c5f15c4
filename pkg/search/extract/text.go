package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// textExtensions are plain-text file types indexed by content even when
// the stored MIME type is generic.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".log":  true,
	".json": true,
	".xml":  true,
	".yaml": true,
	".yml":  true,
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
	".py":   true,
	".go":   true,
	".sh":   true,
	".ini":  true,
	".cfg":  true,
	".conf": true,
}

// TextExtractor reads plain-text files, falling back through common
// legacy encodings when the bytes are not valid UTF-8.
type TextExtractor struct{}

// NewTextExtractor creates a plain-text extractor
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// CanExtract reports whether the file looks like plain text
func (e *TextExtractor) CanExtract(mimeType, filename string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-yaml", "application/javascript":
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extract reads the file and decodes it to UTF-8. Only the first chunk of
// the file is read since content is capped anyway.
func (e *TextExtractor) Extract(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// 4 bytes per rune covers the worst UTF-8 case up to the cap
	buf := make([]byte, MaxContentChars*4)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	data := buf[:n]

	if utf8.Valid(data) {
		return string(data), nil
	}

	// Windows-1252 decodes any byte sequence and covers Latin-1 text too
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode file: %w", err)
	}
	return string(decoded), nil
}
