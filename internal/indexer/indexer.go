package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/chunker"
	"github.com/pdfkb/pdfkb-search/internal/embedder"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

const (
	// DefaultBatchSize is the number of chunk texts per embedding request
	DefaultBatchSize = 32
	// DefaultEmbedWorkers bounds concurrent embedding requests per document
	DefaultEmbedWorkers = 4
)

var (
	// ErrIndexingInProgress is returned when a directory run is already active
	ErrIndexingInProgress = errors.New("indexing already in progress")
	// ErrNoContent is returned when a document yields no chunks
	ErrNoContent = errors.New("document has no indexable text")
	// ErrSourceBlocked is returned by IngestFile for a file whose document
	// was deleted by a user and whose content has not changed since
	ErrSourceBlocked = errors.New("source was deleted and is blocked from re-ingestion")
)

// Notifier receives chunk changes after they are committed to storage.
// *searcher.Searcher implements it.
type Notifier interface {
	NotifyChunkAdded(ctx context.Context, chunk *types.Chunk) error
	NotifyChunkRemoved(ctx context.Context, chunkID string) error
}

// Indexer coordinates the ingestion pipeline: extract -> chunk -> embed -> store -> notify
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	notifier Notifier
	chunker  *chunker.Chunker
	cfg      Config
	logger   *zap.Logger
	activity *activity.Log
	lock     IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	Workers      int // Files ingested concurrently by IndexDirectory (default: runtime.NumCPU())
	BatchSize    int // Texts per embedding request (default: 32)
	EmbedWorkers int // Concurrent embedding requests per document (default: 4)
	Chunking     chunker.Config
}

// IngestRequest is an uploaded document
type IngestRequest struct {
	Filename   string    // Display name; .md and .html names select that extraction
	Content    string    // Text content; form feeds separate pages
	Title      string    // Optional, overrides the extracted title
	UploadedAt time.Time // Zero means now
}

// Result describes one ingested document
type Result struct {
	Document      *types.Document
	ChunksCreated int
	ChunksRemoved int  // Chunks of the replaced previous version
	Skipped       bool // Content unchanged since the last ingest
	Duration      time.Duration
}

// Statistics contains statistics about a directory run
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	FilesBlocked  int // Files whose document was deleted by a user
	FilesRemoved  int // Documents whose source file disappeared
	ChunksCreated int
	Duration      time.Duration
	ErrorMessages []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithNotifier sets the receiver of chunk change notifications
func WithNotifier(n Notifier) Option {
	return func(idx *Indexer) {
		idx.notifier = n
	}
}

// WithActivity records ingest events in log
func WithActivity(log *activity.Log) Option {
	return func(idx *Indexer) {
		idx.activity = log
	}
}

// New creates a new Indexer. A nil embedder stores chunks without vectors.
func New(store storage.Storage, emb embedder.Embedder, cfg Config, opts ...Option) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = DefaultEmbedWorkers
	}

	idx := &Indexer{
		storage:  store,
		embedder: emb,
		chunker:  chunker.New(cfg.Chunking),
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Indexing reports whether a directory run is active
func (idx *Indexer) Indexing() bool {
	return idx.lock.Held()
}

// IngestText indexes uploaded text as a new document. Chunk IDs are keyed
// by the new document ID, so identical uploads stay separate documents.
func (idx *Indexer) IngestText(ctx context.Context, req IngestRequest) (*Result, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrNoContent)
	}
	name := filepath.Base(req.Filename)
	if req.Filename == "" {
		name = "untitled.txt"
	}

	format, err := chunker.DetectFormat(name)
	if err != nil {
		format = chunker.FormatText
	}
	data := []byte(req.Content)
	ex, err := chunker.ExtractFormat(format, data)
	if err != nil {
		return nil, err
	}

	uploadedAt := req.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	doc := &types.Document{
		ID:          uuid.NewString(),
		Filename:    name,
		Title:       req.Title,
		ContentHash: sha256.Sum256(data),
		SizeBytes:   int64(len(data)),
		Status:      types.StatusPending,
		UploadedAt:  uploadedAt,
	}
	return idx.ingest(ctx, doc, doc.ID, ex)
}

// IngestFile indexes a file by its absolute path. Unchanged content is
// skipped; changed content replaces the previous version in place, keeping
// its document ID. A file whose document was deleted by a user returns
// ErrSourceBlocked until its content changes or it is unblocked.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ex, err := chunker.Extract(abs, data)
	if err != nil {
		idx.activity.Record(activity.Event{
			Filename:   filepath.Base(abs),
			SourcePath: abs,
			SizeBytes:  int64(len(data)),
			Status:     activity.StatusFailed,
			Error:      err.Error(),
		})
		return nil, err
	}
	hash := sha256.Sum256(data)

	existing, err := idx.storage.GetDocumentBySource(ctx, abs)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if existing != nil && existing.Status == types.StatusCompleted && existing.ContentHash == hash {
		idx.logger.Debug("document unchanged",
			zap.String("path", abs),
			zap.String("document_id", existing.ID))
		return &Result{Document: existing, Skipped: true}, nil
	}
	if existing == nil {
		if err := idx.checkBlocked(ctx, abs, hash, int64(len(data))); err != nil {
			return nil, err
		}
	}

	doc := &types.Document{
		ID:          uuid.NewString(),
		Filename:    filepath.Base(abs),
		SourcePath:  abs,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		Status:      types.StatusPending,
		UploadedAt:  time.Now(),
	}
	if existing != nil {
		doc.ID = existing.ID
	}
	return idx.ingest(ctx, doc, abs, ex)
}

func (idx *Indexer) ingest(ctx context.Context, doc *types.Document, key string, ex *chunker.Extracted) (*Result, error) {
	start := time.Now()
	eventID := idx.activity.Start(doc.Filename, doc.SourcePath, doc.SizeBytes)
	chunked := idx.chunker.Process(key, doc.Filename, ex)
	if doc.Title == "" {
		doc.Title = chunked.Title
	}
	doc.NumPages = chunked.NumPages

	doc.Status = types.StatusProcessing
	if err := idx.storage.UpsertDocument(ctx, doc); err != nil {
		err = fmt.Errorf("failed to save document: %w", err)
		idx.activity.Fail(eventID, err)
		return nil, err
	}

	removed, err := idx.store(ctx, doc, chunked.Chunks)
	if err != nil {
		idx.markFailed(ctx, doc, err)
		idx.activity.Fail(eventID, err)
		return nil, err
	}
	idx.activity.Complete(eventID, doc.ID, len(chunked.Chunks))
	idx.notify(ctx, removed, chunked.Chunks)

	res := &Result{
		Document:      doc,
		ChunksCreated: len(chunked.Chunks),
		ChunksRemoved: len(removed),
		Duration:      time.Since(start),
	}
	idx.logger.Info("document indexed",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", res.ChunksCreated),
		zap.Int("replaced_chunks", res.ChunksRemoved),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// store embeds the chunks, then writes document, chunks and embeddings in
// one transaction. The document row is recreated inside the transaction so
// a previous version's chunks and embeddings cascade away. It returns the
// IDs of those removed chunks.
func (idx *Indexer) store(ctx context.Context, doc *types.Document, chunks []*types.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	for _, c := range chunks {
		c.DocumentID = doc.ID
		c.Metadata.UploadedAt = doc.UploadedAt
	}

	embeddings, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := tx.DeleteDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear previous version: %w", err)
	}

	now := time.Now()
	done := *doc
	done.Status = types.StatusCompleted
	done.NumChunks = len(chunks)
	done.ErrorMessage = ""
	done.ProcessedAt = &now
	if err := tx.UpsertDocument(ctx, &done); err != nil {
		return nil, err
	}
	if doc.SourcePath != "" {
		// Changed or unblocked content lifts the block
		if err := tx.UnblockSource(ctx, doc.SourcePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	for i, c := range chunks {
		if err := tx.UpsertChunk(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to store chunk: %w", err)
		}
		if embeddings != nil {
			if err := tx.UpsertEmbedding(ctx, embeddings[i]); err != nil {
				return nil, fmt.Errorf("failed to store embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	*doc = done
	return removed, nil
}

// embedChunks generates vectors in batches, at most EmbedWorkers requests
// at a time. The result is aligned with chunks.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk) ([]*storage.Embedding, error) {
	if idx.embedder == nil {
		return nil, nil
	}

	out := make([]*storage.Embedding, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.EmbedWorkers)

	for start := 0; start < len(chunks); start += idx.cfg.BatchSize {
		end := min(start+idx.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Content)
			}

			resp, err := idx.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(resp.Embeddings) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
			}

			for i, e := range resp.Embeddings {
				out[start+i] = &storage.Embedding{
					ChunkID:   chunks[start+i].ID,
					Vector:    e.Vector,
					Dimension: e.Dimension,
					Provider:  e.Provider,
					Model:     e.Model,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// markFailed records the failure even when ctx is already cancelled
func (idx *Indexer) markFailed(ctx context.Context, doc *types.Document, cause error) {
	doc.Status = types.StatusFailed
	doc.ErrorMessage = cause.Error()
	if err := idx.storage.UpsertDocument(context.WithoutCancel(ctx), doc); err != nil {
		idx.logger.Warn("failed to record document failure",
			zap.String("document_id", doc.ID),
			zap.Error(err))
	}
	idx.logger.Error("document indexing failed",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Error(cause))
}

// notify forwards committed changes. Index errors are logged, never
// returned: storage is the source of truth and the searcher repairs itself.
func (idx *Indexer) notify(ctx context.Context, removed []string, added []*types.Chunk) {
	if idx.notifier == nil {
		return
	}
	for _, id := range removed {
		if err := idx.notifier.NotifyChunkRemoved(ctx, id); err != nil {
			idx.logger.Warn("chunk removal not applied to index",
				zap.String("chunk_id", id),
				zap.Error(err))
		}
	}
	for _, c := range added {
		if err := idx.notifier.NotifyChunkAdded(ctx, c); err != nil {
			idx.logger.Warn("chunk not added to index",
				zap.String("chunk_id", c.ID),
				zap.Error(err))
		}
	}
}

// IndexDirectory ingests every supported file under dir and removes
// documents whose source file under dir no longer exists. Only one run may
// be active at a time. A file that fails is recorded in the statistics and
// does not stop the run.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	files, err := discoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	var indexed, skipped, blocked, failed, chunks atomic.Int32
	var mu sync.Mutex
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := idx.IngestFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if errors.Is(err, ErrSourceBlocked) {
					blocked.Add(1)
					return nil
				}
				failed.Add(1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				return nil
			}
			if res.Skipped {
				skipped.Add(1)
				return nil
			}
			indexed.Add(1)
			chunks.Add(int32(res.ChunksCreated))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	removed, err := idx.pruneMissing(ctx, root, files)
	if err != nil {
		return nil, err
	}

	sort.Strings(stats.ErrorMessages)
	stats.FilesIndexed = int(indexed.Load())
	stats.FilesSkipped = int(skipped.Load())
	stats.FilesFailed = int(failed.Load())
	stats.FilesBlocked = int(blocked.Load())
	stats.FilesRemoved = removed
	stats.ChunksCreated = int(chunks.Load())
	stats.Duration = time.Since(start)

	idx.logger.Info("directory indexed",
		zap.String("dir", root),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("failed", stats.FilesFailed),
		zap.Int("blocked", stats.FilesBlocked),
		zap.Int("removed", stats.FilesRemoved),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// discoverFiles lists supported files, skipping hidden files and directories
func discoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !chunker.Supported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// pruneMissing deletes documents under root that were not found on disk
func (idx *Indexer) pruneMissing(ctx context.Context, root string, found []string) (int, error) {
	present := make(map[string]bool, len(found))
	for _, f := range found {
		present[f] = true
	}

	docs, err := idx.storage.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	prefix := root + string(filepath.Separator)
	removed := 0
	for _, doc := range docs {
		if doc.SourcePath == "" || !strings.HasPrefix(doc.SourcePath, prefix) || present[doc.SourcePath] {
			continue
		}
		if _, err := idx.remove(ctx, doc, activity.StatusRemoved); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DeleteDocument removes a document with its chunks and embeddings and
// returns the removed chunk IDs. A document indexed from a file also blocks
// that file, so later directory runs and the watcher leave it out.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return idx.remove(ctx, doc, activity.StatusDeleted)
}

// remove deletes doc in one transaction. A user deletion also records the
// block; a file that disappeared does not.
func (idx *Indexer) remove(ctx context.Context, doc *types.Document, reason activity.Status) ([]string, error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := tx.DeleteDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
	}
	block := reason == activity.StatusDeleted && doc.SourcePath != ""
	if block {
		err := tx.BlockSource(ctx, &types.BlockedSource{
			SourcePath:  doc.SourcePath,
			Filename:    doc.Filename,
			DocumentID:  doc.ID,
			ContentHash: doc.ContentHash,
			SizeBytes:   doc.SizeBytes,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	idx.notify(ctx, removed, nil)

	idx.activity.Record(activity.Event{
		Filename:   doc.Filename,
		SourcePath: doc.SourcePath,
		SizeBytes:  doc.SizeBytes,
		Status:     reason,
		DocumentID: doc.ID,
		NumChunks:  len(removed),
	})
	idx.logger.Info("document deleted",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(removed)),
		zap.Bool("source_blocked", block))
	return removed, nil
}

// DeleteBySource removes the document indexed from path
func (idx *Indexer) DeleteBySource(ctx context.Context, path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	doc, err := idx.storage.GetDocumentBySource(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to find document for %s: %w", abs, err)
	}
	return idx.remove(ctx, doc, activity.StatusRemoved)
}
