package search

import (
	"errors"
	"time"

	"github.com/shareloft/shareloft/pkg/files"
)

// Search errors
var (
	// ErrUnscopedSearch is returned when a request has neither an owner
	// scope nor the public-only flag and did not opt into a global search.
	ErrUnscopedSearch = errors.New("search request has no access scope; set OwnerID, PublicOnly or Unscoped")

	// ErrEngineClosed is returned when an operation is attempted after Close
	ErrEngineClosed = errors.New("search engine is closed")
)

// Config holds search engine settings
type Config struct {
	// IndexPath is the on-disk location of the index
	IndexPath string

	// DefaultResults is the page size used when a request does not set one
	DefaultResults int

	// MaxResults caps the page size of any single request
	MaxResults int

	// CacheSize is the maximum number of cached search responses
	CacheSize int

	// CacheTTL is how long cached responses stay valid
	CacheTTL time.Duration
}

// DefaultConfig returns the default search engine configuration
func DefaultConfig() Config {
	return Config{
		IndexPath:      "search.bleve",
		DefaultResults: 50,
		MaxResults:     1000,
		CacheSize:      1000,
		CacheTTL:       15 * time.Minute,
	}
}

// normalized fills in defaults and clamps limits
func (c Config) normalized() Config {
	if c.DefaultResults <= 0 {
		c.DefaultResults = 50
	}
	if c.MaxResults < c.DefaultResults {
		c.MaxResults = c.DefaultResults
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 1000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	return c
}

// Request describes one search query
type Request struct {
	// Query is the free-text query string. Empty matches everything in scope.
	Query string `json:"query"`

	// OwnerID scopes results to files owned by this user
	OwnerID string `json:"owner_id,omitempty"`

	// IncludePublic widens an owner scope to also return other users'
	// public files. Ignored without OwnerID.
	IncludePublic bool `json:"include_public,omitempty"`

	// PublicOnly restricts results to public files regardless of owner
	PublicOnly bool `json:"public_only,omitempty"`

	// Unscoped opts into searching across all files with no access
	// filter. Administrative use only; without it a request must carry
	// OwnerID or PublicOnly.
	Unscoped bool `json:"-"`

	// Filters narrow the result set
	Filters Filters `json:"filters,omitempty"`

	// Limit is the page size; 0 uses the configured default
	Limit int `json:"limit,omitempty"`

	// Offset is the number of results to skip
	Offset int `json:"offset,omitempty"`
}

// Filters are optional result constraints
type Filters struct {
	// MimeType matches the exact stored MIME type
	MimeType string `json:"mime_type,omitempty"`

	// SizeMin and SizeMax bound the file size in bytes (inclusive)
	SizeMin *int64 `json:"size_min,omitempty"`
	SizeMax *int64 `json:"size_max,omitempty"`

	// DateFrom and DateTo bound the creation time
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	// IncludeDirectories keeps directory entries in the results
	IncludeDirectories bool `json:"include_directories,omitempty"`
}

// Result is a single search hit
type Result struct {
	ID               string              `json:"id"`
	Filename         string              `json:"filename"`
	OriginalFilename string              `json:"original_filename,omitempty"`
	MimeType         string              `json:"mime_type,omitempty"`
	FileSize         int64               `json:"file_size"`
	FileHash         string              `json:"file_hash,omitempty"`
	OwnerID          string              `json:"owner_id,omitempty"`
	OwnerUsername    string              `json:"owner_username,omitempty"`
	ParentDirectory  string              `json:"parent_directory,omitempty"`
	IsDirectory      bool                `json:"is_directory"`
	IsPublic         bool                `json:"is_public"`
	Tags             []string            `json:"tags,omitempty"`
	DownloadCount    int64               `json:"download_count"`
	CreatedAt        time.Time           `json:"created_at,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at,omitempty"`
	Score            float64             `json:"score"`
	Highlights       map[string][]string `json:"highlights,omitempty"`
}

// Response is the outcome of one search. A failed query yields empty
// Results with Error set rather than failing the caller.
type Response struct {
	Query       string   `json:"query"`
	Results     []Result `json:"results"`
	Total       int      `json:"total"`
	Limit       int      `json:"limit"`
	Offset      int      `json:"offset"`
	Filters     Filters  `json:"filters"`
	HasMore     bool     `json:"has_more"`
	TimeTakenMS int64    `json:"time_taken_ms"`
	Error       string   `json:"error,omitempty"`
	cached      bool
}

// Cached reports whether this response was served from the result cache
func (r *Response) Cached() bool {
	return r.cached
}

// IndexStats summarizes the index state
type IndexStats struct {
	DocumentCount  int64     `json:"document_count"`
	IndexSizeBytes int64     `json:"index_size_bytes"`
	IndexSizeHuman string    `json:"index_size_human"`
	IndexedFiles   int64     `json:"indexed_files"`
	IndexErrors    int64     `json:"index_errors"`
	SearchQueries  int64     `json:"search_queries"`
	AvgSearchMS    float64   `json:"avg_search_ms"`
	LastIndexTime  time.Time `json:"last_index_time,omitempty"`
	CacheSize      int       `json:"cache_size"`
}

// EventSink receives index change notifications. The notify package
// provides a websocket-backed implementation; a nil sink disables events.
type EventSink interface {
	Publish(event string, payload interface{})
}

// document is the shape stored in the index for one file
func document(f *files.File, content string) map[string]interface{} {
	doc := map[string]interface{}{
		"filename":          f.Filename,
		"original_filename": f.OriginalFilename,
		"content":           content,
		"mime_type":         f.MimeType,
		"file_size":         f.FileSize,
		"file_hash":         f.FileHash,
		"download_count":    f.DownloadCount,
		"owner_id":          f.OwnerID,
		"owner_username":    f.OwnerUsername,
		"parent_directory":  f.ParentDirectory,
		"is_directory":      f.IsDirectory,
		"is_public":         f.IsPublic,
		"created_at":        f.CreatedAt,
		"updated_at":        f.UpdatedAt,
	}
	if len(f.Tags) > 0 {
		doc["tags"] = f.Tags
	}
	if len(f.Metadata) > 0 {
		doc["metadata"] = metadataText(f.Metadata)
	}
	return doc
}

// metadataText flattens metadata values into one searchable string
func metadataText(metadata map[string]string) string {
	text := ""
	for k, v := range metadata {
		if text != "" {
			text += " "
		}
		text += k + " " + v
	}
	return text
}
