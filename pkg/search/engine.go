// Package search provides full-text indexing and querying for uploaded
// files. The Engine is the single entry point: it owns the Bleve index,
// extracts content from files on disk, and serves scoped queries with
// highlighting and prefix suggestions.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/shareloft/shareloft/pkg/files"
	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
	"github.com/shareloft/shareloft/pkg/search/extract"
)

// reindexBatchSize is how many documents go into one Bleve batch during a
// full reindex.
const reindexBatchSize = 100

// Deps are the collaborators an Engine is built from. Store and Events
// are optional; without a Store the bulk reindex operations are
// unavailable, without Events no notifications are published.
type Deps struct {
	Logger    *logging.Logger
	Store     files.Store
	Events    EventSink
	Extractor *extract.Registry
}

// Engine indexes file records and answers search queries
type Engine struct {
	config    Config
	logger    *logging.Logger
	index     bleve.Index
	extractor *extract.Registry
	store     files.Store
	events    EventSink
	cache     *resultCache

	// writeMu serializes index writes; Bleve reads stay concurrent
	writeMu sync.Mutex

	stateMu sync.RWMutex
	closed  bool

	metrics engineMetrics
}

type engineMetrics struct {
	mu            sync.Mutex
	indexedFiles  int64
	indexErrors   int64
	searchQueries int64
	avgSearchMS   float64
	lastIndexTime time.Time
}

// Open opens or creates the index at config.IndexPath and returns a ready
// engine.
func Open(config Config, deps Deps) (*Engine, error) {
	config = config.normalized()
	if config.IndexPath == "" {
		return nil, fmt.Errorf("index path is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	logger = logger.WithComponent("search")

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.NewRegistry(logger)
	}

	index, err := openOrCreateIndex(config.IndexPath)
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocCount()
	logger.Info("search index opened", map[string]interface{}{
		"path":      config.IndexPath,
		"documents": docCount,
	})

	return &Engine{
		config:    config,
		logger:    logger,
		index:     index,
		extractor: extractor,
		store:     deps.Store,
		events:    deps.Events,
		cache:     newResultCache(config.CacheSize, config.CacheTTL),
	}, nil
}

// Close flushes and closes the index. Further calls on the engine return
// ErrEngineClosed.
func (e *Engine) Close() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.index.Close(); err != nil {
		return fmt.Errorf("failed to close search index: %w", err)
	}
	return nil
}

// checkOpen returns ErrEngineClosed after Close
func (e *Engine) checkOpen() error {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

// IndexFile adds or replaces one file in the index. Content extraction is
// best-effort: files whose content cannot be read are still indexed by
// name and metadata.
func (e *Engine) IndexFile(ctx context.Context, f *files.File) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if f == nil || f.ID == "" {
		return fmt.Errorf("file record with ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content := ""
	if !f.IsDirectory && f.FilePath != "" {
		content = e.extractor.Extract(f.FilePath, f.MimeType)
	}

	e.writeMu.Lock()
	err := e.index.Index(f.ID, document(f, content))
	e.writeMu.Unlock()
	if err != nil {
		e.recordIndexError()
		return fmt.Errorf("failed to index file %s: %w", f.ID, err)
	}

	e.recordIndexed(1)
	e.cache.clear()
	e.publish("file_indexed", map[string]interface{}{
		"id":       f.ID,
		"filename": f.Filename,
	})

	e.logger.Debug("indexed file", map[string]interface{}{
		"id":            f.ID,
		"filename":      f.Filename,
		"content_chars": len(content),
	})
	return nil
}

// UpdateFile re-indexes a file after its record changed. Indexing is an
// upsert, so this is IndexFile under a name that matches the caller's
// intent.
func (e *Engine) UpdateFile(ctx context.Context, f *files.File) error {
	return e.IndexFile(ctx, f)
}

// DeleteFile removes a file from the index. Deleting an ID that was never
// indexed is not an error.
func (e *Engine) DeleteFile(ctx context.Context, id string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("file ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.writeMu.Lock()
	err := e.index.Delete(id)
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete file %s from index: %w", id, err)
	}

	e.cache.clear()
	e.publish("file_removed", map[string]interface{}{"id": id})
	return nil
}

// IndexDirectory indexes every file record under the given parent
// directory for one owner, or the public records there when ownerID is
// empty. Per-file failures are logged and skipped; the returned count is
// the number of files successfully indexed.
func (e *Engine) IndexDirectory(ctx context.Context, ownerID, parentDirectory string) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.store == nil {
		return 0, fmt.Errorf("no file store configured")
	}

	records, err := e.store.ListByDirectory(ctx, ownerID, parentDirectory)
	if err != nil {
		return 0, fmt.Errorf("failed to list directory %s: %w", parentDirectory, err)
	}

	return e.indexRecords(ctx, records), nil
}

// IndexOwner reindexes every record owned by the given user, or every
// public record when ownerID is empty. Per-record failures are logged
// and skipped.
func (e *Engine) IndexOwner(ctx context.Context, ownerID string) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.store == nil {
		return 0, fmt.Errorf("no file store configured")
	}

	var records []*files.File
	var err error
	if ownerID == "" {
		records, err = e.store.ListPublic(ctx)
	} else {
		records, err = e.store.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list records for reindex: %w", err)
	}

	indexed := e.indexRecords(ctx, records)

	e.publish("reindex_complete", map[string]interface{}{
		"owner_id": ownerID,
		"indexed":  indexed,
		"total":    len(records),
	})
	return indexed, nil
}

// IndexAll rebuilds the index from every record in the file store. It is
// best-effort: records that fail to index are counted and skipped.
func (e *Engine) IndexAll(ctx context.Context) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.store == nil {
		return 0, fmt.Errorf("no file store configured")
	}

	records, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list file records: %w", err)
	}

	indexed := e.indexRecords(ctx, records)

	e.publish("reindex_complete", map[string]interface{}{
		"indexed": indexed,
		"total":   len(records),
	})
	e.logger.Info("reindex complete", map[string]interface{}{
		"indexed": indexed,
		"total":   len(records),
	})
	return indexed, nil
}

// indexRecords indexes a set of records in batches, swallowing per-record
// failures.
func (e *Engine) indexRecords(ctx context.Context, records []*files.File) int {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	indexed := 0
	batch := e.index.NewBatch()

	flush := func() {
		if batch.Size() == 0 {
			return
		}
		if err := e.index.Batch(batch); err != nil {
			e.recordIndexError()
			e.logger.Error("failed to apply index batch", map[string]interface{}{
				"error": err.Error(),
				"size":  batch.Size(),
			})
			indexed -= batch.Size()
		}
		batch = e.index.NewBatch()
	}

	for _, f := range records {
		if ctx.Err() != nil {
			break
		}
		if f.ID == "" {
			continue
		}

		content := ""
		if !f.IsDirectory && f.FilePath != "" {
			content = e.extractor.Extract(f.FilePath, f.MimeType)
		}

		if err := batch.Index(f.ID, document(f, content)); err != nil {
			e.recordIndexError()
			e.logger.Warn("skipping unindexable file", map[string]interface{}{
				"id":    f.ID,
				"error": err.Error(),
			})
			continue
		}
		indexed++

		if batch.Size() >= reindexBatchSize {
			flush()
		}
	}
	flush()

	if indexed < 0 {
		indexed = 0
	}
	e.recordIndexed(int64(indexed))
	e.cache.clear()
	return indexed
}

// Optimize forces internal index housekeeping. Bleve merges segments on
// its own, so this only drops the result cache and reports current state.
func (e *Engine) Optimize() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	e.cache.clear()
	return nil
}

// Stats returns index statistics
func (e *Engine) Stats() (*IndexStats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	docCount, err := e.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get document count: %w", err)
	}

	e.metrics.mu.Lock()
	stats := &IndexStats{
		DocumentCount: int64(docCount),
		IndexedFiles:  e.metrics.indexedFiles,
		IndexErrors:   e.metrics.indexErrors,
		SearchQueries: e.metrics.searchQueries,
		AvgSearchMS:   e.metrics.avgSearchMS,
		LastIndexTime: e.metrics.lastIndexTime,
	}
	e.metrics.mu.Unlock()

	stats.IndexSizeBytes = dirSize(e.config.IndexPath)
	stats.IndexSizeHuman = formatBytes(stats.IndexSizeBytes)
	stats.CacheSize = e.cache.size()

	return stats, nil
}

func (e *Engine) publish(event string, payload interface{}) {
	if e.events != nil {
		e.events.Publish(event, payload)
	}
}

func (e *Engine) recordIndexed(n int64) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	e.metrics.indexedFiles += n
	e.metrics.lastIndexTime = time.Now()
}

func (e *Engine) recordIndexError() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	e.metrics.indexErrors++
}

func (e *Engine) recordSearch(duration time.Duration) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.searchQueries++
	ms := float64(duration.Milliseconds())
	if e.metrics.avgSearchMS == 0 {
		e.metrics.avgSearchMS = ms
	} else {
		n := float64(e.metrics.searchQueries)
		e.metrics.avgSearchMS = (e.metrics.avgSearchMS*(n-1) + ms) / n
	}
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
