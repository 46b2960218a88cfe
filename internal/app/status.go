package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Status summarizes storage, the corpus index and the embedder
type Status struct {
	Documents         int                          `json:"documents"`
	DocumentsByStatus map[types.DocumentStatus]int `json:"documents_by_status"`
	Chunks            int                          `json:"chunks"`
	Embeddings        int                          `json:"embeddings"`
	BlockedSources    int                          `json:"blocked_sources"`
	IndexSizeMB       float64                      `json:"index_size_mb"`
	SchemaVersion     string                       `json:"schema_version"`
	BuildMode         string                       `json:"build_mode"`
	LastProcessedAt   *time.Time                   `json:"last_processed_at,omitempty"`
	Index             corpus.IndexStats            `json:"index"`
	Embedder          EmbedderInfo                 `json:"embedder"`
	Indexing          bool                         `json:"indexing"`
	CachedResponses   int                          `json:"cached_responses"`
	Activity          activity.Counts              `json:"activity"`
	Health            Health                       `json:"health"`
	Uptime            string                       `json:"uptime"`
}

// EmbedderInfo names the active embedding provider
type EmbedderInfo struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// Health reports whether the components can serve queries
type Health struct {
	DatabaseAccessible  bool `json:"database_accessible"`
	EmbeddingsAvailable bool `json:"embeddings_available"`
	VectorExtension     bool `json:"vector_extension"`
	// IndexConsistent is false when the corpus index and storage disagree
	// on the number of chunks; a rebuild fixes it
	IndexConsistent bool `json:"index_consistent"`
}

// Status collects the current statistics
func (a *App) Status(ctx context.Context) (*Status, error) {
	st, err := a.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage status: %w", err)
	}
	return a.status(st), nil
}

func (a *App) status(st *storage.Status) *Status {
	index := a.searcher.IndexStats()
	return &Status{
		Documents:         st.DocumentsCount,
		DocumentsByStatus: st.DocumentsByStatus,
		Chunks:            st.ChunksCount,
		Embeddings:        st.EmbeddingsCount,
		BlockedSources:    st.BlockedSources,
		IndexSizeMB:       st.IndexSizeMB,
		SchemaVersion:     st.SchemaVersion,
		BuildMode:         st.BuildMode,
		LastProcessedAt:   st.LastProcessedAt,
		Index:             index,
		Embedder: EmbedderInfo{
			Provider:  a.embedder.Provider(),
			Model:     a.embedder.Model(),
			Dimension: a.embedder.Dimension(),
		},
		Indexing:        a.indexer.Indexing(),
		CachedResponses: a.searcher.CacheLen(),
		Activity:        a.activity.Counts(),
		Health: Health{
			DatabaseAccessible:  st.Health.DatabaseAccessible,
			EmbeddingsAvailable: st.Health.EmbeddingsAvailable,
			VectorExtension:     st.Health.VectorExtension,
			IndexConsistent:     index.ChunkCount == st.ChunksCount,
		},
		Uptime: time.Since(a.started).Truncate(time.Second).String(),
	}
}
