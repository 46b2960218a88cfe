// Package httpapi serves the knowledge base as a JSON API.
//
//	POST   /search                 ranked chunks for a query
//	GET    /documents              every document
//	POST   /documents              upload (JSON body or multipart "file")
//	GET    /documents/{id}         one document
//	GET    /documents/{id}/chunks  chunks of a document in order
//	DELETE /documents/{id}         remove a document and its chunks
//	GET    /chunks/{id}            one chunk
//	POST   /index/rebuild          reload the corpus index from storage
//	GET    /watcher/activity       recent ingest events, newest first
//	DELETE /watcher/activity       clear the ingest events
//	GET    /watcher/blocked        files kept out after their document was deleted
//	POST   /watcher/reprocess-deleted  unblock and re-ingest deleted files
//	GET    /status                 storage, index and embedder statistics
//	GET    /health                 liveness
//
// Errors are JSON objects {"error": message, "code": code}. Invalid queries
// and uploads answer 400, unknown IDs 404, a busy indexer 409 and an
// unavailable search 503.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// MaxUploadBytes bounds request bodies
const MaxUploadBytes = 32 << 20

const shutdownTimeout = 5 * time.Second

// Service is the part of *app.App the API drives
type Service interface {
	RunSearch(ctx context.Context, req app.SearchRequest) (*types.SearchResponse, error)
	IngestText(ctx context.Context, req indexer.IngestRequest) (*indexer.Result, error)
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	DocumentChunks(ctx context.Context, id string) ([]*types.Chunk, error)
	DeleteDocument(ctx context.Context, id string) ([]string, error)
	BlockedSources(ctx context.Context) ([]*types.BlockedSource, error)
	ReprocessDeleted(ctx context.Context, paths []string) ([]indexer.ReprocessResult, error)
	Activity() activity.Summary
	ClearActivity()
	Chunk(ctx context.Context, id string) (*types.Chunk, error)
	RebuildIndex(ctx context.Context) (corpus.IndexStats, error)
	Status(ctx context.Context) (*app.Status, error)
}

// Server routes requests to a Service
type Server struct {
	svc    Service
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates the API server
func New(svc Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /search", s.handleSearch)
	s.mux.HandleFunc("GET /documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /documents", s.handleUpload)
	s.mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("GET /documents/{id}/chunks", s.handleDocumentChunks)
	s.mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)
	s.mux.HandleFunc("GET /chunks/{id}", s.handleGetChunk)
	s.mux.HandleFunc("POST /index/rebuild", s.handleRebuild)
	s.mux.HandleFunc("GET /watcher/activity", s.handleActivity)
	s.mux.HandleFunc("DELETE /watcher/activity", s.handleClearActivity)
	s.mux.HandleFunc("GET /watcher/blocked", s.handleBlocked)
	s.mux.HandleFunc("POST /watcher/reprocess-deleted", s.handleReprocessDeleted)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
