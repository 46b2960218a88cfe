package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/embedder"
	"github.com/pdfkb/pdfkb-search/internal/filter"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Defaults used when a Config field is left unset
const (
	DefaultSemanticWeight      = 0.5
	DefaultMaxTopK             = 50
	DefaultRRFK                = 60
	DefaultCandidateMultiplier = 3
	DefaultSemanticTimeout     = 5 * time.Second
	DefaultCacheSize           = 1000
	DefaultCacheTTL            = 10 * time.Minute
)

// Degradation reasons reported in SearchResponse.DegradedReason
const (
	reasonEmptyKeywordQuery   = "empty keyword query"
	reasonSemanticUnavailable = "semantic scorer unavailable"
)

// VectorStore supplies semantic candidates. Similarity is raw cosine in
// [-1,1]. A nil eligibleIDs slice means no restriction.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, vector []float32, eligibleIDs []string, topN int) ([]storage.VectorResult, error)
}

// ChunkRepository is the source of truth the corpus index is rebuilt from
type ChunkRepository interface {
	GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error)
	ListChunks(ctx context.Context) ([]*types.Chunk, error)
}

// Config tunes ranking and caching
type Config struct {
	DefaultSemanticWeight *float64 // nil or out of [0,1] selects DefaultSemanticWeight; zero is keyword-only
	DefaultFusion         types.FusionMethod
	MaxTopK               int
	RRFK                  float64
	CandidateMultiplier   int
	SemanticTimeout       time.Duration
	CacheSize             int           // 0 selects DefaultCacheSize, negative disables caching
	CacheTTL              time.Duration // 0 selects DefaultCacheTTL
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		DefaultSemanticWeight: types.Float64Ptr(DefaultSemanticWeight),
		DefaultFusion:         types.FusionWeighted,
		MaxTopK:               DefaultMaxTopK,
		RRFK:                  DefaultRRFK,
		CandidateMultiplier:   DefaultCandidateMultiplier,
		SemanticTimeout:       DefaultSemanticTimeout,
		CacheSize:             DefaultCacheSize,
		CacheTTL:              DefaultCacheTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if w := c.DefaultSemanticWeight; w == nil || math.IsNaN(*w) || *w < 0 || *w > 1 {
		c.DefaultSemanticWeight = d.DefaultSemanticWeight
	} else {
		c.DefaultSemanticWeight = types.Float64Ptr(*w)
	}
	if c.DefaultFusion == "" {
		c.DefaultFusion = d.DefaultFusion
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.RRFK <= 0 {
		c.RRFK = d.RRFK
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = d.CandidateMultiplier
	}
	if c.SemanticTimeout <= 0 {
		c.SemanticTimeout = d.SemanticTimeout
	}
	if c.CacheSize == 0 {
		c.CacheSize = d.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *types.SearchResponse
	expiresAt time.Time
}

// Searcher is the hybrid ranking engine. It owns the corpus index and is
// safe for concurrent use by many queries.
type Searcher struct {
	index    *corpus.Index
	embedder embedder.Embedder
	vectors  VectorStore
	chunks   ChunkRepository
	cfg      Config
	logger   *zap.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry] // nil when caching is disabled
	cacheMu sync.RWMutex

	rebuilds singleflight.Group
}

// Option configures optional collaborators
type Option func(*Searcher)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChunkRepository sets the repository RebuildIndex reads from
func WithChunkRepository(repo ChunkRepository) Option {
	return func(s *Searcher) { s.chunks = repo }
}

// New creates a Searcher. emb and vectors may be nil, in which case every
// semantic request is treated as unavailable.
func New(index *corpus.Index, emb embedder.Embedder, vectors VectorStore, cfg Config, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, errors.New("searcher: corpus index is required")
	}

	s := &Searcher{
		index:    index,
		embedder: emb,
		vectors:  vectors,
		cfg:      cfg.withDefaults(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](s.cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	c := s.cfg
	c.DefaultSemanticWeight = types.Float64Ptr(*s.cfg.DefaultSemanticWeight)
	return c
}

// Index returns the owned corpus index
func (s *Searcher) Index() *corpus.Index {
	return s.index
}

// plan is the resolved form of one query
type plan struct {
	query  types.SearchQuery
	weight float64
	fusion types.FusionMethod
	filter *filter.Filter
	terms  []string
}

// Search ranks the eligible chunks for q. Validation happens before any
// scoring; a cancelled ctx aborts the search with ctx.Err().
func (s *Searcher) Search(ctx context.Context, q types.SearchQuery) (*types.SearchResponse, error) {
	startTime := time.Now()

	p, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	generation := s.index.Generation()
	key := computeQueryHash(p, generation)
	if cached, ok := s.checkCache(key); ok {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}

	response, err := s.search(ctx, p)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(startTime)

	// Degraded answers aren't cached so a recovered scorer is picked up on the next query
	if !response.Degraded {
		s.storeInCache(key, response)
	}

	s.logger.Debug("search completed",
		zap.String("requested_mode", string(response.RequestedMode)),
		zap.String("search_mode", string(response.SearchMode)),
		zap.Int("results", response.TotalResults),
		zap.Duration("duration", response.Duration))
	return response, nil
}

// resolve validates q and fills configured defaults
func (s *Searcher) resolve(q types.SearchQuery) (*plan, error) {
	if err := q.Validate(s.cfg.MaxTopK); err != nil {
		return nil, err
	}

	p := &plan{
		query:  q,
		weight: *s.cfg.DefaultSemanticWeight,
		fusion: q.Fusion,
		terms:  corpus.Tokenize(q.QueryText),
	}
	if q.SemanticWeight != nil {
		p.weight = *q.SemanticWeight
	}
	if p.fusion == "" {
		p.fusion = s.cfg.DefaultFusion
	}

	f, err := filter.New(q.Filters)
	if err != nil {
		return nil, err
	}
	p.filter = f
	p.query.Filters = q.Filters.Normalized()
	return p, nil
}

// snapshot is what the search keeps from one index read
type snapshot struct {
	empty    bool
	eligible map[string]*types.Chunk
	keyword  map[string]float64
	kwErr    error
}

func (s *Searcher) search(ctx context.Context, p *plan) (*types.SearchResponse, error) {
	mode := p.query.Mode
	wantSemantic := mode != types.SearchModeKeyword
	wantKeyword := mode != types.SearchModeSemantic

	// Empty-token keyword queries fail before anything else runs
	if mode == types.SearchModeKeyword && len(p.terms) == 0 && s.index.Stats().ChunkCount > 0 {
		return nil, types.ErrEmptyQuery
	}

	semCtx, cancelSem := context.WithTimeout(ctx, s.cfg.SemanticTimeout)
	defer cancelSem()

	// The query embedding runs while the index is read
	var embedChan chan embedResult
	if wantSemantic && s.semanticConfigured() {
		embedChan = make(chan embedResult, 1)
		go s.runQueryEmbedding(semCtx, p.query.QueryText, embedChan)
	}

	snap := s.readIndex(p, wantKeyword)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap.empty || len(snap.eligible) == 0 {
		return s.assemble(p, mode, "", nil, nil), nil
	}
	if mode == types.SearchModeKeyword && snap.kwErr != nil {
		return nil, snap.kwErr
	}

	var semantic map[string]float64
	var semErr error
	if wantSemantic {
		semantic, semErr = s.semanticCandidates(semCtx, p, snap.eligible, embedChan)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	switch mode {
	case types.SearchModeKeyword:
		return s.assemble(p, types.SearchModeKeyword, "", keywordOnly(snap.keyword), snap.eligible), nil

	case types.SearchModeSemantic:
		if semErr != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrSearchUnavailable, semErr)
		}
		return s.assemble(p, types.SearchModeSemantic, "", semanticOnly(semantic), snap.eligible), nil
	}

	// Hybrid
	kwAvailable := snap.kwErr == nil
	switch {
	case semErr != nil && !kwAvailable:
		return nil, fmt.Errorf("%w: semantic: %w; keyword: %w", types.ErrSearchUnavailable, semErr, snap.kwErr)

	case semErr != nil:
		reason := fmt.Sprintf("%s: %v", reasonSemanticUnavailable, semErr)
		s.logger.Warn("hybrid search degraded to keyword-only", zap.Error(semErr))
		return s.assemble(p, types.SearchModeKeyword, reason, keywordOnly(snap.keyword), snap.eligible), nil

	case !kwAvailable:
		s.logger.Debug("hybrid search degraded to semantic-only", zap.Error(snap.kwErr))
		return s.assemble(p, types.SearchModeSemantic, reasonEmptyKeywordQuery, semanticOnly(semantic), snap.eligible), nil
	}

	var fused []candidate
	if p.fusion == types.FusionRRF {
		fused = fuseRRF(semantic, snap.keyword, p.weight, s.cfg.RRFK)
	} else {
		fused = fuseWeighted(semantic, snap.keyword, p.weight)
	}
	return s.assemble(p, types.SearchModeHybrid, "", fused, snap.eligible), nil
}

// readIndex computes the eligible set and keyword scores under one read lock
func (s *Searcher) readIndex(p *plan, wantKeyword bool) snapshot {
	var snap snapshot
	_ = s.index.Read(func(v *corpus.View) error {
		if v.Stats().ChunkCount == 0 {
			snap.empty = true
			return nil
		}

		var match func(*types.Chunk) bool
		if p.filter.Active() {
			match = p.filter.Match
		}
		snap.eligible = v.Eligible(match)
		if !wantKeyword || len(snap.eligible) == 0 {
			return nil
		}

		var eligible func(string) bool
		if match != nil {
			eligible = func(id string) bool {
				_, ok := snap.eligible[id]
				return ok
			}
		}
		snap.keyword, snap.kwErr = v.ScoreBM25(p.terms, eligible)
		return nil
	})
	return snap
}

// assemble turns ranked candidates into the response envelope. It sorts,
// truncates to top_k and attaches display data; it never changes scores.
func (s *Searcher) assemble(p *plan, used types.SearchMode, reason string, candidates []candidate, chunks map[string]*types.Chunk) *types.SearchResponse {
	ranked := rankCandidates(candidates, p.query.TopK)

	results := make([]types.ScoredResult, 0, len(ranked))
	for _, c := range ranked {
		chunk, ok := chunks[c.id]
		if !ok {
			continue
		}
		chunk = chunk.Clone()
		results = append(results, types.ScoredResult{
			ChunkID:       c.id,
			DocumentID:    chunk.DocumentID,
			Rank:          len(results) + 1,
			Score:         c.score,
			SemanticScore: c.semantic,
			KeywordScore:  c.keyword,
			Content:       chunk.Content,
			Metadata:      chunk.Metadata,
		})
	}

	return &types.SearchResponse{
		TotalResults:   len(results),
		Results:        results,
		SearchMode:     used,
		RequestedMode:  p.query.Mode,
		Degraded:       used != p.query.Mode,
		DegradedReason: reason,
		FiltersApplied: filter.Applied(p.query.Filters),
	}
}
