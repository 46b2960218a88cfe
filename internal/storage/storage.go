package storage

import (
	"context"
	"time"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Storage defines the interface for persisting documents, chunks and their
// embeddings
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetDocumentBySource(ctx context.Context, sourcePath string) (*types.Document, error)
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	// DeleteDocument removes the document with its chunks and embeddings and
	// returns the IDs of the chunks that were removed
	DeleteDocument(ctx context.Context, id string) ([]string, error)

	// Chunk operations. Reads fill Metadata.Source and Metadata.UploadedAt
	// from the owning document.
	UpsertChunk(ctx context.Context, chunk *types.Chunk) error
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)
	ListChunks(ctx context.Context) ([]*types.Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Blocked sources. Deleting a document by hand records its source so a
	// directory run or the watcher does not bring it back.
	BlockSource(ctx context.Context, b *types.BlockedSource) error
	GetBlockedSource(ctx context.Context, sourcePath string) (*types.BlockedSource, error)
	ListBlockedSources(ctx context.Context) ([]*types.BlockedSource, error)
	UnblockSource(ctx context.Context, sourcePath string) error

	// Search operations
	SimilaritySearch(ctx context.Context, vector []float32, eligibleIDs []string, topN int) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Embedding is the stored vector of one chunk
type Embedding struct {
	ChunkID   string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// VectorResult is one similarity search hit. Similarity is the raw cosine
// similarity in [-1,1].
type VectorResult struct {
	ChunkID    string
	Similarity float64
}

// Status contains statistics about the knowledge base
type Status struct {
	DocumentsCount    int
	DocumentsByStatus map[types.DocumentStatus]int
	ChunksCount       int
	EmbeddingsCount   int
	BlockedSources    int
	IndexSizeMB       float64
	SchemaVersion     string
	BuildMode         string
	LastProcessedAt   *time.Time
	Health            HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	VectorExtension     bool
}
