package files

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a file record does not exist
var ErrNotFound = errors.New("file not found")

// Store provides access to file records. The search service reads records
// to build index documents and never writes file content itself.
type Store interface {
	// Get returns a single file record by ID
	Get(ctx context.Context, id string) (*File, error)

	// Put inserts or replaces a file record
	Put(ctx context.Context, f *File) error

	// Delete removes a file record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all file records, directories included, in no
	// particular order. Used for full reindexing.
	List(ctx context.Context) ([]*File, error)

	// ListByOwner returns all file records owned by the given user
	ListByOwner(ctx context.Context, ownerID string) ([]*File, error)

	// ListPublic returns all file records marked public
	ListPublic(ctx context.Context) ([]*File, error)

	// ListByDirectory returns file records under the given parent
	// directory for one owner, or the public records there when ownerID
	// is empty.
	ListByDirectory(ctx context.Context, ownerID, parentDirectory string) ([]*File, error)

	// Stats returns aggregate counts over the store
	Stats(ctx context.Context) (*StoreStats, error)

	// Close releases store resources
	Close() error
}
