package files

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for standalone deployments and tests
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*File
}

// NewMemoryStore creates an empty in-memory file store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*File),
	}
}

// Get returns a file record by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// Put inserts or replaces a file record
func (s *MemoryStore) Put(ctx context.Context, f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *f
	s.files[f.ID] = &cp
	return nil
}

// Delete removes a file record
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, id)
	return nil
}

// List returns all file records
func (s *MemoryStore) List(ctx context.Context) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*File, 0, len(s.files))
	for _, f := range s.files {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

// ListByOwner returns file records owned by the given user
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*File
	for _, f := range s.files {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListPublic returns all file records marked public
func (s *MemoryStore) ListPublic(ctx context.Context) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*File
	for _, f := range s.files {
		if f.IsPublic {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListByDirectory returns file records under the given parent directory.
// With an empty ownerID only public records are returned.
func (s *MemoryStore) ListByDirectory(ctx context.Context, ownerID, parentDirectory string) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*File
	for _, f := range s.files {
		if f.ParentDirectory != parentDirectory {
			continue
		}
		if ownerID == "" && !f.IsPublic {
			continue
		}
		if ownerID != "" && f.OwnerID != ownerID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

// Stats returns aggregate counts over the store
func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StoreStats{}
	for _, f := range s.files {
		stats.TotalFiles++
		stats.TotalBytes += f.FileSize
		if f.IsDirectory {
			stats.Directories++
		}
		if f.IsPublic {
			stats.PublicFiles++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
