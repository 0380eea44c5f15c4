package files

import (
	"time"
)

// File is a stored file record. It is the unit the search index is built
// from: a subset of its fields becomes the indexed document, the rest is
// carried along for API responses.
type File struct {
	ID               string            `json:"id"`
	Filename         string            `json:"filename"`
	OriginalFilename string            `json:"original_filename"`
	FilePath         string            `json:"file_path"`
	FileSize         int64             `json:"file_size"`
	MimeType         string            `json:"mime_type"`
	FileHash         string            `json:"file_hash,omitempty"`
	OwnerID          string            `json:"owner_id"`
	OwnerUsername    string            `json:"owner_username,omitempty"`
	ParentDirectory  string            `json:"parent_directory"`
	IsDirectory      bool              `json:"is_directory"`
	IsPublic         bool              `json:"is_public"`
	Tags             []string          `json:"tags,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	DownloadCount    int64             `json:"download_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// StoreStats summarizes the file store contents
type StoreStats struct {
	TotalFiles  int64 `json:"total_files"`
	TotalBytes  int64 `json:"total_bytes"`
	Directories int64 `json:"directories"`
	PublicFiles int64 `json:"public_files"`
}
