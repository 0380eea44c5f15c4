// Package watch keeps the search index in step with the upload root. It
// listens for filesystem changes and triggers debounced reindexing, with
// an optional periodic sweep as a safety net for missed events.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
)

// Reindexer rebuilds the search index from the file store
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// ReindexFunc adapts a function to the Reindexer interface
type ReindexFunc func(ctx context.Context) (int, error)

// Reindex calls f
func (f ReindexFunc) Reindex(ctx context.Context) (int, error) {
	return f(ctx)
}

// Config holds watcher settings
type Config struct {
	// Root is the directory tree to watch
	Root string

	// Debounce is the quiet period after the last filesystem event
	// before a reindex runs
	Debounce time.Duration

	// ReindexInterval triggers a periodic reindex regardless of events;
	// zero disables it
	ReindexInterval time.Duration
}

// Watcher watches the upload root and reindexes on changes
type Watcher struct {
	config    Config
	reindexer Reindexer
	logger    *logging.Logger
	watcher   *fsnotify.Watcher

	mu           sync.Mutex
	watchedPaths map[string]bool
	debounce     *time.Timer
	started      bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher for the configured root
func New(config Config, reindexer Reindexer, logger *logging.Logger) (*Watcher, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("watch root is required")
	}
	if reindexer == nil {
		return nil, fmt.Errorf("reindexer is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		config:       config,
		reindexer:    reindexer,
		logger:       logger.WithComponent("watch"),
		watcher:      fsWatcher,
		watchedPaths: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}, nil
}

// Start registers the root tree and begins processing events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("watcher already started")
	}

	if err := w.addTree(w.config.Root); err != nil {
		return err
	}
	w.started = true

	go w.eventLoop()

	w.logger.Info("watching upload root", map[string]interface{}{
		"root":     w.config.Root,
		"debounce": w.config.Debounce.String(),
	})
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		w.cancel()
		return w.watcher.Close()
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	w.cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	<-w.done
	return nil
}

// addTree registers path and every subdirectory. Caller holds w.mu.
func (w *Watcher) addTree(root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("watch root does not exist: %w", err)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() || ignored(path) {
			return nil
		}
		if w.watchedPaths[path] {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.watchedPaths[path] = true
		return nil
	})
}

// eventLoop processes filesystem events until Stop
func (w *Watcher) eventLoop() {
	defer close(w.done)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if w.config.ReindexInterval > 0 {
		ticker = time.NewTicker(w.config.ReindexInterval)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", map[string]interface{}{
				"error": err.Error(),
			})

		case <-tick:
			w.reindex("periodic")
		}
	}
}

// handleEvent reacts to one filesystem event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}

	// New subdirectories join the watch set
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", map[string]interface{}{
					"path":  event.Name,
					"error": err.Error(),
				})
			}
			w.mu.Unlock()
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.scheduleReindex()
}

// scheduleReindex arms the debounce timer. Every further event during the
// quiet period pushes the reindex back.
func (w *Watcher) scheduleReindex() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.config.Debounce, func() {
		w.reindex("filesystem change")
	})
}

// reindex runs one full reindex
func (w *Watcher) reindex(reason string) {
	if w.ctx.Err() != nil {
		return
	}

	indexed, err := w.reindexer.Reindex(w.ctx)
	if err != nil {
		w.logger.Error("reindex failed", map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
		return
	}

	w.logger.Info("reindex triggered", map[string]interface{}{
		"reason":  reason,
		"indexed": indexed,
	})
}

// ignored filters out hidden files and editor temp files
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp")
}
