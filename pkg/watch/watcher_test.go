package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReindexer records how many reindex runs happened
type countingReindexer struct {
	count atomic.Int64
}

func (r *countingReindexer) Reindex(ctx context.Context) (int, error) {
	r.count.Add(1)
	return 0, nil
}

func TestWatcherRequiresRoot(t *testing.T) {
	_, err := New(Config{}, &countingReindexer{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Root: t.TempDir()}, nil, nil)
	assert.Error(t, err)
}

func TestWatcherRejectsMissingRoot(t *testing.T) {
	w, err := New(Config{Root: "/nonexistent/uploads"}, &countingReindexer{}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Start())
}

func TestWatcherReindexesOnChange(t *testing.T) {
	root := t.TempDir()

	// funcs adapt directly, the way scoped reindexers are wired up
	var count atomic.Int64
	reindexer := ReindexFunc(func(ctx context.Context) (int, error) {
		count.Add(1)
		return 0, nil
	})

	w, err := New(Config{Root: root, Debounce: 50 * time.Millisecond}, reindexer, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "upload.txt"), []byte("data"), 0644))

	require.Eventually(t, func() bool {
		return count.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	reindexer := &countingReindexer{}

	w, err := New(Config{Root: root, Debounce: 150 * time.Millisecond}, reindexer, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// a burst of writes inside one debounce window
	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "burst.txt")
		require.NoError(t, os.WriteFile(name, []byte{byte(i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return reindexer.count.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	// the burst collapses into far fewer runs than events
	assert.LessOrEqual(t, reindexer.count.Load(), int64(2))
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	reindexer := &countingReindexer{}

	w, err := New(Config{Root: root, Debounce: 50 * time.Millisecond}, reindexer, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))

	// give the watcher time to register the new directory
	require.Eventually(t, func() bool {
		return reindexer.count.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	before := reindexer.count.Load()
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("data"), 0644))

	require.Eventually(t, func() bool {
		return reindexer.count.Load() > before
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherStopIsClean(t *testing.T) {
	root := t.TempDir()
	reindexer := &countingReindexer{}

	w, err := New(Config{Root: root, Debounce: 50 * time.Millisecond}, reindexer, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
}
