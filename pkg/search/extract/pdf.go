package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFPages bounds how deep into a document extraction goes. Large PDFs
// rarely add ranking value past the first pages.
const maxPDFPages = 10

// PDFExtractor extracts text from PDF documents
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// CanExtract reports whether the file is a PDF
func (e *PDFExtractor) CanExtract(mimeType, filename string) bool {
	return mimeType == "application/pdf" ||
		strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// Extract reads text from up to maxPDFPages pages. Pages that fail to
// decode are skipped so a single corrupt page does not lose the rest.
func (e *PDFExtractor) Extract(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")

		if sb.Len() >= MaxContentChars*4 {
			break
		}
	}

	return sb.String(), nil
}
