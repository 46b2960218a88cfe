// Package watcher keeps the knowledge base in step with a directory.
//
// File system events are debounced per path. When a path settles the
// watcher looks at the file itself: if it exists it is ingested (unchanged
// content is skipped by the indexer), otherwise its document is deleted.
// Editors that save through rename or several writes therefore cause a
// single re-index.
//
// Subdirectories are watched recursively; hidden entries and unsupported
// extensions are ignored. Files whose document was deleted by a user stay
// out until their content changes. Files already present when the watcher starts are
// not indexed; run a directory index first.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/chunker"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// DefaultDebounce is the quiet period before a changed path is processed
const DefaultDebounce = 500 * time.Millisecond

// Target applies settled changes. *indexer.Indexer implements it.
type Target interface {
	IngestFile(ctx context.Context, path string) (*indexer.Result, error)
	DeleteBySource(ctx context.Context, path string) ([]string, error)
}

// Watcher drives a Target from file system events under one directory
type Watcher struct {
	dir      string
	debounce time.Duration
	target   Target
	logger   *zap.Logger
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// New watches dir and its subdirectories. A zero debounce selects
// DefaultDebounce; a negative one processes events immediately.
func New(dir string, target Target, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	switch {
	case debounce == 0:
		debounce = DefaultDebounce
	case debounce < 0:
		debounce = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		dir:      root,
		debounce: debounce,
		target:   target,
		logger:   logger,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
	}
	if err := w.addTree(context.Background(), root, false); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Dir returns the absolute watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes events until ctx is done, then waits for in-flight
// changes and releases the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()

	w.logger.Info("watching directory",
		zap.String("dir", w.dir),
		zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops pending timers, waits for running changes and closes the
// underlying watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if hidden(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files written before the watch was added produce no events
			if err := w.addTree(ctx, ev.Name, true); err != nil {
				w.logger.Warn("failed to watch new directory",
					zap.String("dir", ev.Name),
					zap.Error(err))
			}
			return
		}
	}

	if !chunker.Supported(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.schedule(ctx, ev.Name)
	}
}

// addTree watches root and every non-hidden directory below it, optionally
// scheduling the supported files found on the way
func (w *Watcher) addTree(ctx context.Context, root string, scheduleFiles bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if scheduleFiles && chunker.Supported(path) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

// schedule (re)starts the debounce timer of path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[path]; ok && t.Stop() {
		w.wg.Done()
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		w.apply(ctx, path)
	})
	w.timers[path] = t
}

// apply ingests path if it exists and deletes its document otherwise
func (w *Watcher) apply(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		res, err := w.target.IngestFile(ctx, path)
		if errors.Is(err, indexer.ErrSourceBlocked) {
			w.logger.Debug("ignoring change to deleted source", zap.String("path", path))
			return
		}
		if err != nil {
			w.logger.Warn("failed to index changed file",
				zap.String("path", path),
				zap.Error(err))
			return
		}
		if !res.Skipped {
			w.logger.Info("file indexed",
				zap.String("path", path),
				zap.Int("chunks", res.ChunksCreated))
		}

	case errors.Is(err, fs.ErrNotExist):
		if _, err := w.target.DeleteBySource(ctx, path); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				w.logger.Debug("removed file was not indexed", zap.String("path", path))
				return
			}
			w.logger.Warn("failed to delete removed file",
				zap.String("path", path),
				zap.Error(err))
			return
		}
		w.logger.Info("file removed", zap.String("path", path))

	default:
		w.logger.Warn("failed to stat changed file",
			zap.String("path", path),
			zap.Error(err))
	}
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
