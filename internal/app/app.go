// Package app wires the knowledge base together: storage, embedder, corpus
// index, searcher, indexer and the optional directory watcher. Every driving
// surface (MCP, HTTP, CLI) talks to a single *App.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/chunker"
	"github.com/pdfkb/pdfkb-search/internal/config"
	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/embedder"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/internal/searcher"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/internal/watcher"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// App owns the long-lived components of one knowledge base
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	searcher *searcher.Searcher
	indexer  *indexer.Indexer
	activity *activity.Log
	started  time.Time
}

// New opens the database under cfg.DataDir, builds the components and loads
// the corpus index from the stored chunks
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := newEmbedder(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	searchCfg, err := searcherConfig(cfg.Search)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}
	index := corpus.NewIndex(corpus.BM25Params{K1: cfg.Search.BM25K1, B: cfg.Search.BM25B})
	srch, err := searcher.New(index, emb, store, searchCfg,
		searcher.WithLogger(logger.Named("searcher")),
		searcher.WithChunkRepository(store))
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	events := activity.New(activity.DefaultCapacity)
	idx := indexer.New(store, emb, indexer.Config{
		Workers:      cfg.Indexing.Workers,
		BatchSize:    cfg.Embedding.BatchSize,
		EmbedWorkers: cfg.Embedding.Workers,
		Chunking: chunker.Config{
			ChunkSize:         cfg.Chunking.ChunkSize,
			MinParagraphChars: cfg.Chunking.MinParagraphChars,
		},
	}, indexer.WithNotifier(srch),
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithActivity(events))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		embedder: emb,
		searcher: srch,
		indexer:  idx,
		activity: events,
		started:  time.Now(),
	}

	if _, err := srch.RebuildIndex(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load corpus index: %w", err)
	}

	logger.Info("knowledge base opened",
		zap.String("database", dbPath),
		zap.String("embedder", emb.Provider()),
		zap.String("model", emb.Model()),
		zap.String("build_mode", storage.BuildMode))
	return a, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedder.Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = embedder.DetectProvider()
	}
	return embedder.New(embedder.Config{
		Provider:          provider,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		CacheSize:         cfg.CacheSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout.Duration,
	})
}

func searcherConfig(cfg config.SearchConfig) (searcher.Config, error) {
	fusion, err := types.ParseFusionMethod(cfg.Fusion)
	if err != nil {
		return searcher.Config{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return searcher.Config{
		DefaultSemanticWeight: types.Float64Ptr(cfg.SemanticWeight),
		DefaultFusion:         fusion,
		MaxTopK:               cfg.MaxTopK,
		RRFK:                  cfg.RRFK,
		CandidateMultiplier:   cfg.CandidateMultiplier,
		SemanticTimeout:       cfg.SemanticTimeout.Duration,
		CacheSize:             cfg.CacheSize,
		CacheTTL:              cfg.CacheTTL.Duration,
	}, nil
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger
func (a *App) Logger() *zap.Logger { return a.logger }

// Searcher returns the ranking engine
func (a *App) Searcher() *searcher.Searcher { return a.searcher }

// Indexer returns the ingestion pipeline
func (a *App) Indexer() *indexer.Indexer { return a.indexer }

// Search runs a query. A zero TopK selects the configured default.
func (a *App) Search(ctx context.Context, q types.SearchQuery) (*types.SearchResponse, error) {
	if q.TopK == 0 {
		q.TopK = a.cfg.Search.DefaultTopK
	}
	return a.searcher.Search(ctx, q)
}

// IngestText indexes uploaded content
func (a *App) IngestText(ctx context.Context, req indexer.IngestRequest) (*indexer.Result, error) {
	return a.indexer.IngestText(ctx, req)
}

// IngestFile indexes one file, skipping unchanged content
func (a *App) IngestFile(ctx context.Context, path string) (*indexer.Result, error) {
	return a.indexer.IngestFile(ctx, path)
}

// IndexDirectory indexes every supported file below dir
func (a *App) IndexDirectory(ctx context.Context, dir string) (*indexer.Statistics, error) {
	return a.indexer.IndexDirectory(ctx, dir)
}

// DeleteDocument removes a document and its chunks from storage and index.
// A document indexed from a file blocks that file from re-ingestion.
func (a *App) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	return a.indexer.DeleteDocument(ctx, id)
}

// BlockedSources lists files whose documents were deleted by hand
func (a *App) BlockedSources(ctx context.Context) ([]*types.BlockedSource, error) {
	return a.indexer.BlockedSources(ctx)
}

// ReprocessDeleted unblocks paths, or every blocked file when empty, and
// ingests those still present
func (a *App) ReprocessDeleted(ctx context.Context, paths []string) ([]indexer.ReprocessResult, error) {
	return a.indexer.ReprocessDeleted(ctx, paths)
}

// Activity returns the recent ingest events, newest first
func (a *App) Activity() activity.Summary {
	return a.activity.Snapshot()
}

// ClearActivity drops the recorded ingest events
func (a *App) ClearActivity() {
	a.activity.Clear()
}

// ListDocuments returns every stored document
func (a *App) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return a.store.ListDocuments(ctx)
}

// GetDocument returns one document
func (a *App) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return a.store.GetDocument(ctx, id)
}

// DocumentChunks returns the chunks of a document in order
func (a *App) DocumentChunks(ctx context.Context, id string) ([]*types.Chunk, error) {
	if _, err := a.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return a.store.ListChunksByDocument(ctx, id)
}

// Chunk returns one chunk
func (a *App) Chunk(ctx context.Context, id string) (*types.Chunk, error) {
	return a.searcher.Chunk(ctx, id)
}

// RebuildIndex reloads the corpus index from storage and drops cached responses
func (a *App) RebuildIndex(ctx context.Context) (corpus.IndexStats, error) {
	stats, err := a.searcher.RebuildIndex(ctx)
	if err != nil {
		return stats, err
	}
	a.searcher.InvalidateCache()
	return stats, nil
}

// Watch keeps dir indexed until ctx is done. An empty dir selects the
// configured watch directory.
func (a *App) Watch(ctx context.Context, dir string) error {
	if dir == "" {
		dir = a.cfg.Watch.Dir
	}
	if dir == "" {
		return errors.New("no watch directory configured")
	}
	w, err := watcher.New(dir, a.indexer, a.cfg.Watch.Debounce.Duration, a.logger.Named("watcher"))
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Close releases the embedder and the database
func (a *App) Close() error {
	return errors.Join(a.embedder.Close(), a.store.Close())
}
