package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxArchiveEntries bounds how many member names are indexed per archive
const maxArchiveEntries = 500

// ArchiveExtractor indexes archives by their member file names. Member
// contents are not expanded; knowing what is inside is enough to find the
// archive.
type ArchiveExtractor struct{}

// NewArchiveExtractor creates an archive extractor
func NewArchiveExtractor() *ArchiveExtractor {
	return &ArchiveExtractor{}
}

// CanExtract reports whether the file is a supported archive
func (e *ArchiveExtractor) CanExtract(mimeType, filename string) bool {
	switch mimeType {
	case "application/zip", "application/x-zip-compressed",
		"application/x-tar", "application/gzip", "application/x-gzip":
		return true
	}

	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".zip") ||
		strings.HasSuffix(name, ".tar") ||
		strings.HasSuffix(name, ".tar.gz") ||
		strings.HasSuffix(name, ".tgz")
}

// Extract lists archive member names, one per line
func (e *ArchiveExtractor) Extract(path string) (string, error) {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return listZip(path)
	case strings.HasSuffix(name, ".tar"):
		return listTar(path, false)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return listTar(path, true)
	}

	// MIME matched without a recognized extension; try zip first
	if text, err := listZip(path); err == nil {
		return text, nil
	}
	return listTar(path, true)
}

func listZip(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
		if len(names) >= maxArchiveEntries {
			break
		}
	}
	return memberText(names), nil
}

func listTar(path string, gzipped bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read tar entry: %w", err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		names = append(names, hdr.Name)
		if len(names) >= maxArchiveEntries {
			break
		}
	}
	return memberText(names), nil
}

// memberText joins member names with their bare base names so both full
// paths and plain file names are searchable.
func memberText(names []string) string {
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		if base := filepath.Base(n); base != n {
			sb.WriteString(" ")
			sb.WriteString(base)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
