package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// officeMimeTypes maps OOXML MIME types to the zip entries holding their
// text content.
var officeMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

var officeExtensions = map[string]bool{
	".docx": true,
	".xlsx": true,
	".pptx": true,
}

// OfficeExtractor extracts text from OOXML documents (docx, xlsx, pptx).
// OOXML files are zip archives of XML parts; the text lives in character
// data under <w:t>, <t> and <a:t> elements.
type OfficeExtractor struct{}

// NewOfficeExtractor creates an OOXML extractor
func NewOfficeExtractor() *OfficeExtractor {
	return &OfficeExtractor{}
}

// CanExtract reports whether the file is an OOXML document
func (e *OfficeExtractor) CanExtract(mimeType, filename string) bool {
	if officeMimeTypes[mimeType] {
		return true
	}
	return officeExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extract opens the document as a zip archive and collects text from the
// XML parts that carry it.
func (e *OfficeExtractor) Extract(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer zr.Close()

	parts := textParts(zr)
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in document")
	}

	var sb strings.Builder
	for _, part := range parts {
		rc, err := part.Open()
		if err != nil {
			continue
		}
		appendXMLText(&sb, rc)
		rc.Close()

		if sb.Len() >= MaxContentChars*4 {
			break
		}
	}

	return sb.String(), nil
}

// textParts returns the zip entries that hold document text, in reading
// order.
func textParts(zr *zip.ReadCloser) []*zip.File {
	var parts []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml": // docx body
			parts = append(parts, f)
		case f.Name == "xl/sharedStrings.xml": // xlsx cell strings
			parts = append(parts, f)
		case strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml"):
			parts = append(parts, f)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	return parts
}

// appendXMLText streams the XML and collects character data inside text
// elements, inserting breaks at paragraph and row boundaries.
func appendXMLText(sb *strings.Builder, r io.Reader) {
	decoder := xml.NewDecoder(r)

	inText := false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p", "row", "si":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
				sb.WriteString(" ")
			}
		}
	}
}
