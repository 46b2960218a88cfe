package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid embedding input")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is the vector of one chunk or query text
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// EmbeddingRequest asks for the vector of one text
type EmbeddingRequest struct {
	Text  string
	Model string // Empty selects the provider's model
}

// Validate rejects blank text
func (r EmbeddingRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// BatchEmbeddingRequest asks for the vectors of several texts in one call
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// Validate rejects an empty batch and blank texts
func (r BatchEmbeddingRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range r.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// BatchEmbeddingResponse holds one embedding per requested text, in order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into vectors. Implementations are safe for concurrent
// use; the indexer embeds chunk batches from several goroutines.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Vector returns only the vector of one text
func Vector(ctx context.Context, e Embedder, text string) ([]float32, error) {
	emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// ComputeHash returns the hex SHA-256 of text
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CacheKey identifies a text as embedded by one model. Vectors of different
// models live in different spaces and never share an entry.
type CacheKey struct {
	Model string
	Hash  string
}

// KeyFor builds the cache key of text under model
func KeyFor(model, text string) CacheKey {
	return CacheKey{Model: model, Hash: ComputeHash(text)}
}

// Cache is an LRU of vectors. A nil *Cache is valid and caches nothing.
// Vectors are copied on the way in and out so callers may mutate them.
type Cache struct {
	vectors *lru.Cache[CacheKey, []float32]
}

// NewCache creates a cache holding up to size vectors; size <= 0 selects
// DefaultCacheSize
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	vectors, err := lru.New[CacheKey, []float32](size)
	if err != nil {
		panic(fmt.Sprintf("embedder: lru with size %d: %v", size, err))
	}
	return &Cache{vectors: vectors}
}

// Get returns a copy of the cached vector
func (c *Cache) Get(key CacheKey) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.vectors.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

// Add stores a copy of vec, evicting the least recently used entry when full
func (c *Cache) Add(key CacheKey, vec []float32) {
	if c == nil {
		return
	}
	c.vectors.Add(key, cloneVector(vec))
}

// Len returns the number of cached vectors
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.vectors.Len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
