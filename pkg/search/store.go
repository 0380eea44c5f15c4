package search

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	regexpchar "github.com/blevesearch/bleve/v2/analysis/char/regexp"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// filenameAnalyzer is a custom analyzer for file names. Underscores, dots
// and dashes bind words together under Unicode segmentation, so
// "report_q1.pdf" would index as one token; replacing separators with
// spaces first lets "report" match it.
const filenameAnalyzer = "filename"

// openOrCreateIndex opens an existing Bleve index or creates a new one at
// the configured path.
func openOrCreateIndex(indexPath string) (bleve.Index, error) {
	if dir := filepath.Dir(indexPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	index, err := bleve.Open(indexPath)
	if err == nil {
		return index, nil
	}

	if err == bleve.ErrorIndexPathDoesNotExist {
		indexMapping, err := buildIndexMapping()
		if err != nil {
			return nil, fmt.Errorf("failed to build index mapping: %w", err)
		}
		index, err = bleve.New(indexPath, indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create new index: %w", err)
		}
		return index, nil
	}

	return nil, fmt.Errorf("failed to open index: %w", err)
}

// buildIndexMapping creates the Bleve index mapping for file documents
func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomCharFilter("filename_separators", map[string]interface{}{
		"type":    regexpchar.Name,
		"regexp":  `[_\-.]+`,
		"replace": " ",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register char filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(filenameAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"char_filters":  []string{"filename_separators"},
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register filename analyzer: %w", err)
	}

	fileMapping := bleve.NewDocumentMapping()

	// Filename fields - tokenized so "report_jan.txt" matches "report",
	// stored for display and highlighting
	filenameField := bleve.NewTextFieldMapping()
	filenameField.Store = true
	filenameField.Index = true
	filenameField.IncludeTermVectors = true
	filenameField.Analyzer = filenameAnalyzer
	fileMapping.AddFieldMappingsAt("filename", filenameField)
	fileMapping.AddFieldMappingsAt("original_filename", filenameField)

	// Content field - stemmed, stored only for highlight fragments
	contentField := bleve.NewTextFieldMapping()
	contentField.Store = true
	contentField.Index = true
	contentField.IncludeTermVectors = true
	contentField.Analyzer = en.AnalyzerName
	fileMapping.AddFieldMappingsAt("content", contentField)

	// Metadata text - stemmed, not stored
	metadataField := bleve.NewTextFieldMapping()
	metadataField.Store = false
	metadataField.Index = true
	metadataField.Analyzer = en.AnalyzerName
	fileMapping.AddFieldMappingsAt("metadata", metadataField)

	// Tags - tokenized, stored
	tagsField := bleve.NewTextFieldMapping()
	tagsField.Store = true
	tagsField.Index = true
	tagsField.Analyzer = standard.Name
	fileMapping.AddFieldMappingsAt("tags", tagsField)

	// Owner username - searchable, stored
	usernameField := bleve.NewTextFieldMapping()
	usernameField.Store = true
	usernameField.Index = true
	usernameField.Analyzer = standard.Name
	fileMapping.AddFieldMappingsAt("owner_username", usernameField)

	// Exact-match keyword fields
	ownerField := bleve.NewTextFieldMapping()
	ownerField.Store = true
	ownerField.Index = true
	ownerField.Analyzer = "keyword"
	fileMapping.AddFieldMappingsAt("owner_id", ownerField)
	fileMapping.AddFieldMappingsAt("mime_type", ownerField)
	fileMapping.AddFieldMappingsAt("parent_directory", ownerField)
	fileMapping.AddFieldMappingsAt("file_hash", ownerField)

	// Numeric fields - range filters and popularity sorting
	sizeField := bleve.NewNumericFieldMapping()
	sizeField.Store = true
	sizeField.Index = true
	fileMapping.AddFieldMappingsAt("file_size", sizeField)
	fileMapping.AddFieldMappingsAt("download_count", sizeField)

	// Boolean flags
	boolField := bleve.NewBooleanFieldMapping()
	boolField.Store = true
	boolField.Index = true
	fileMapping.AddFieldMappingsAt("is_public", boolField)
	fileMapping.AddFieldMappingsAt("is_directory", boolField)

	// Timestamps - date range filters, sortable
	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true
	dateField.Index = true
	fileMapping.AddFieldMappingsAt("created_at", dateField)
	fileMapping.AddFieldMappingsAt("updated_at", dateField)

	indexMapping.AddDocumentMapping("file", fileMapping)
	indexMapping.DefaultType = "file"
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping, nil
}
