package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// fakeTarget records the changes the watcher applies
type fakeTarget struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
}

func (f *fakeTarget) IngestFile(ctx context.Context, path string) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	return &indexer.Result{Document: &types.Document{SourcePath: path}, ChunksCreated: 1}, nil
}

func (f *fakeTarget) DeleteBySource(ctx context.Context, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	if filepath.Base(path) == "never-indexed.txt" {
		return nil, fmt.Errorf("lookup: %w", types.ErrNotFound)
	}
	return []string{"chunk_1"}, nil
}

func (f *fakeTarget) counts(path string) (ingested, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.ingested {
		if p == path {
			ingested++
		}
	}
	for _, p := range f.deleted {
		if p == path {
			deleted++
		}
	}
	return ingested, deleted
}

func (f *fakeTarget) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingested) + len(f.deleted)
}

const (
	testDebounce = 20 * time.Millisecond
	waitFor      = 3 * time.Second
	tick         = 10 * time.Millisecond
)

// startWatcher runs a watcher on a fresh directory until the test ends
func startWatcher(t *testing.T) (string, *fakeTarget) {
	t.Helper()
	dir := t.TempDir()
	target := &fakeTarget{}

	w, err := New(dir, target, testDebounce, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("watcher did not stop")
		}
	})
	return w.Dir(), target
}

func TestWatcher_CreateModifyRemove(t *testing.T) {
	dir, target := startWatcher(t)
	path := filepath.Join(dir, "notes.txt")

	require.NoError(t, os.WriteFile(path, []byte("first version"), 0o644))
	assert.Eventually(t, func() bool {
		n, _ := target.counts(path)
		return n == 1
	}, waitFor, tick)

	require.NoError(t, os.WriteFile(path, []byte("second version"), 0o644))
	assert.Eventually(t, func() bool {
		n, _ := target.counts(path)
		return n == 2
	}, waitFor, tick)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, n := target.counts(path)
		return n == 1
	}, waitFor, tick)
}

func TestWatcher_IgnoresHiddenAndUnsupported(t *testing.T) {
	dir, target := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draft.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cache", "x.txt"), []byte("x"), 0o644))

	marker := filepath.Join(dir, "marker.md")
	require.NoError(t, os.WriteFile(marker, []byte("# marker"), 0o644))
	assert.Eventually(t, func() bool {
		n, _ := target.counts(marker)
		return n >= 1
	}, waitFor, tick)

	time.Sleep(5 * testDebounce)
	ingested, _ := target.counts(marker)
	assert.Equal(t, ingested, target.total(), "only the marker was processed")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir, target := startWatcher(t)

	sub := filepath.Join(dir, "reports", "2024")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	path := filepath.Join(sub, "q1.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>revenue</p>"), 0o644))

	assert.Eventually(t, func() bool {
		n, _ := target.counts(path)
		return n >= 1
	}, waitFor, tick)
}

func TestWatcher_DebounceCoalesces(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	w, err := New(dir, target, 50*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	path := filepath.Join(w.Dir(), "burst.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.schedule(ctx, path)
	}

	assert.Eventually(t, func() bool {
		n, _ := target.counts(path)
		return n == 1
	}, waitFor, tick)
	time.Sleep(150 * time.Millisecond)
	n, _ := target.counts(path)
	assert.Equal(t, 1, n)
}

func TestWatcher_ApplyMissingFile(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	w, err := New(dir, target, -1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx := context.Background()
	gone := filepath.Join(w.Dir(), "never-indexed.txt")
	w.apply(ctx, gone)
	_, deleted := target.counts(gone)
	assert.Equal(t, 1, deleted)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	w.apply(cancelled, gone)
	_, deleted = target.counts(gone)
	assert.Equal(t, 1, deleted, "cancelled context skips the change")
}

func TestWatcher_SkipsDeletedSource(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx := indexer.New(store, nil, indexer.Config{})

	dir := t.TempDir()
	w, err := New(dir, idx, -1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	path := filepath.Join(w.Dir(), "solar.txt")
	content := []byte("Solar panels convert sunlight into electricity using photovoltaic cells.")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	w.apply(ctx, path)
	doc, err := store.GetDocumentBySource(ctx, path)
	require.NoError(t, err)

	_, err = idx.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)

	// Same content again: the file stays out
	require.NoError(t, os.WriteFile(path, content, 0o644))
	w.apply(ctx, path)
	_, err = store.GetDocumentBySource(ctx, path)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// New content is ingested
	require.NoError(t, os.WriteFile(path, append(content, " Output drops in winter."...), 0o644))
	w.apply(ctx, path)
	_, err = store.GetDocumentBySource(ctx, path)
	assert.NoError(t, err)
}

func TestWatcher_CloseStopsPending(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	w, err := New(dir, target, time.Hour, nil)
	require.NoError(t, err)

	path := filepath.Join(w.Dir(), "slow.txt")
	w.schedule(context.Background(), path)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	w.schedule(context.Background(), path)
	assert.Zero(t, target.total())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &fakeTarget{}, 0, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file, &fakeTarget{}, 0, nil)
	assert.Error(t, err)
}
