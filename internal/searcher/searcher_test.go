package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/embedder"
	"github.com/pdfkb/pdfkb-search/internal/filter"
	"github.com/pdfkb/pdfkb-search/internal/storage"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// mockEmbedder implements the Embedder interface for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &embedder.Embedding{
		Vector:    []float32{1, 0, 0},
		Dimension: 3,
		Model:     "mock-model",
		Provider:  "mock",
	}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := &embedder.BatchEmbeddingResponse{Provider: "mock", Model: "mock-model"}
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out.Embeddings = append(out.Embeddings, emb)
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// mockVectorStore answers similarity searches from a fixed table of raw
// cosine similarities
type mockVectorStore struct {
	mu             sync.Mutex
	sims           map[string]float64
	err            error
	block          bool // Wait for ctx to expire
	ignoreEligible bool
	calls          int
	lastEligible   []string
	lastTopN       int
}

func (m *mockVectorStore) SimilaritySearch(ctx context.Context, _ []float32, eligibleIDs []string, topN int) ([]storage.VectorResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastEligible = eligibleIDs
	m.lastTopN = topN
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}

	var allowed map[string]bool
	if eligibleIDs != nil && !m.ignoreEligible {
		allowed = make(map[string]bool, len(eligibleIDs))
		for _, id := range eligibleIDs {
			allowed[id] = true
		}
	}

	out := make([]storage.VectorResult, 0, len(m.sims))
	for id, sim := range m.sims {
		if allowed != nil && !allowed[id] {
			continue
		}
		out = append(out, storage.VectorResult{ChunkID: id, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// mockRepository serves chunks for rebuilds
type mockRepository struct {
	chunks []*types.Chunk
	err    error
	lists  int
	mu     sync.Mutex
}

func (m *mockRepository) GetChunk(_ context.Context, id string) (*types.Chunk, error) {
	for _, c := range m.chunks {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, types.ErrNotFound)
}

func (m *mockRepository) ListChunks(_ context.Context) ([]*types.Chunk, error) {
	m.mu.Lock()
	m.lists++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.chunks, nil
}

func testChunk(id, content string) *types.Chunk {
	return &types.Chunk{
		ID:         id,
		DocumentID: "doc-" + id,
		Content:    content,
		Metadata: types.ChunkMetadata{
			Source:     id + ".pdf",
			PageNumber: types.IntPtr(1),
			UploadedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// setupTestSearcher indexes chunks and wires the given collaborators. The
// response cache is disabled unless cfg enables it.
func setupTestSearcher(t testing.TB, chunks []*types.Chunk, emb embedder.Embedder, store VectorStore, cfg *Config, opts ...Option) *Searcher {
	t.Helper()

	index := corpus.NewIndex(corpus.DefaultBM25Params())
	require.NoError(t, index.Rebuild(chunks))

	c := DefaultConfig()
	c.CacheSize = -1
	if cfg != nil {
		c = *cfg
	}
	s, err := New(index, emb, store, c, opts...)
	require.NoError(t, err)
	return s
}

func query(text string, topK int, mode types.SearchMode) types.SearchQuery {
	return types.SearchQuery{QueryText: text, TopK: topK, Mode: mode}
}

func resultIDs(resp *types.SearchResponse) []string {
	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.ChunkID
	}
	return ids
}

// assertTotalOrder checks score descending with chunk ID tie-breaks and 1-based ranks
func assertTotalOrder(t *testing.T, resp *types.SearchResponse) {
	t.Helper()
	assert.Equal(t, len(resp.Results), resp.TotalResults)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		if i == 0 {
			continue
		}
		prev := resp.Results[i-1]
		assert.GreaterOrEqual(t, prev.Score, r.Score, "scores must not increase")
		if prev.Score == r.Score {
			assert.Less(t, prev.ChunkID, r.ChunkID, "ties break by chunk ID")
		}
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil, nil, DefaultConfig())
	assert.Error(t, err)

	s, err := New(corpus.NewIndex(corpus.BM25Params{}), nil, nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), s.Config())
	assert.Equal(t, DefaultSemanticWeight, *s.Config().DefaultSemanticWeight)

	for _, w := range []float64{0, 1, 0.25} {
		s, err = New(corpus.NewIndex(corpus.BM25Params{}), nil, nil, Config{DefaultSemanticWeight: types.Float64Ptr(w)})
		require.NoError(t, err)
		assert.Equal(t, w, *s.Config().DefaultSemanticWeight, "explicit weight %v is kept", w)
	}
	for _, w := range []float64{-0.5, 1.5, math.NaN()} {
		s, err = New(corpus.NewIndex(corpus.BM25Params{}), nil, nil, Config{DefaultSemanticWeight: types.Float64Ptr(w)})
		require.NoError(t, err)
		assert.Equal(t, DefaultSemanticWeight, *s.Config().DefaultSemanticWeight)
	}
	assert.NotNil(t, s.cache)

	s, err = New(corpus.NewIndex(corpus.BM25Params{}), nil, nil, Config{CacheSize: -1})
	require.NoError(t, err)
	assert.Nil(t, s.cache)
	assert.Zero(t, s.CacheLen())
}

func TestSearch_FilterFoldsLikeKeywordIndex(t *testing.T) {
	chunks := []*types.Chunk{
		testChunk("a", "The \ufb01le format stores pages"),
		testChunk("b", "Battery storage after sunset"),
	}
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{}, nil)

	q := query("file", 5, types.SearchModeKeyword)
	resp, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, resultIDs(resp))

	q.Filters.MustInclude = []string{"file"}
	resp, err = s.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(resp))
}

func TestSearch_Validation(t *testing.T) {
	s := setupTestSearcher(t, []*types.Chunk{testChunk("a", "alpha")}, &mockEmbedder{}, &mockVectorStore{}, nil)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		q    types.SearchQuery
	}{
		{"empty query", query("   ", 5, types.SearchModeHybrid)},
		{"zero top_k", query("alpha", 0, types.SearchModeHybrid)},
		{"negative top_k", query("alpha", -1, types.SearchModeHybrid)},
		{"top_k above max", query("alpha", DefaultMaxTopK+1, types.SearchModeHybrid)},
		{"unknown mode", query("alpha", 5, types.SearchMode("fuzzy"))},
		{"weight above one", types.SearchQuery{QueryText: "alpha", TopK: 5, Mode: types.SearchModeHybrid, SemanticWeight: types.Float64Ptr(1.5)}},
		{"negative weight", types.SearchQuery{QueryText: "alpha", TopK: 5, Mode: types.SearchModeHybrid, SemanticWeight: types.Float64Ptr(-0.1)}},
		{"unknown fusion", types.SearchQuery{QueryText: "alpha", TopK: 5, Mode: types.SearchModeHybrid, Fusion: "borda"}},
		{"inverted dates", types.SearchQuery{QueryText: "alpha", TopK: 5, Mode: types.SearchModeHybrid, Filters: types.Filters{DateFrom: &from, DateTo: &to}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(context.Background(), tt.q)
			assert.ErrorIs(t, err, types.ErrInvalidQuery)
			assert.Nil(t, resp)
		})
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	store := &mockVectorStore{}
	s := setupTestSearcher(t, nil, &mockEmbedder{}, store, nil)

	for _, mode := range []types.SearchMode{types.SearchModeHybrid, types.SearchModeSemantic, types.SearchModeKeyword} {
		for _, text := range []string{"battery storage", "?!"} {
			t.Run(string(mode)+"/"+text, func(t *testing.T) {
				resp, err := s.Search(context.Background(), query(text, 5, mode))
				require.NoError(t, err)
				assert.Equal(t, 0, resp.TotalResults)
				assert.NotNil(t, resp.Results)
				assert.Empty(t, resp.Results)
				assert.Equal(t, mode, resp.SearchMode)
				assert.False(t, resp.Degraded)
			})
		}
	}
	assert.Zero(t, store.calls, "an empty corpus never reaches the vector store")
}

func TestSearch_ExactMatchBoost(t *testing.T) {
	chunks := []*types.Chunk{
		testChunk("c1", "The solar farm expanded output again this year"),
		testChunk("c2", "The solar panel efficiency improved again this year"),
		testChunk("c3", "The review panel met twice again this year"),
	}
	s := setupTestSearcher(t, chunks, nil, nil, nil)

	resp, err := s.Search(context.Background(), query("solar panel efficiency", 3, types.SearchModeKeyword))
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "c2", resp.Results[0].ChunkID)
	assertTotalOrder(t, resp)

	for _, r := range resp.Results {
		assert.Nil(t, r.SemanticScore, "keyword mode has no semantic component")
		require.NotNil(t, r.KeywordScore)
		assert.Equal(t, *r.KeywordScore, r.Score, "keyword mode ranks by raw BM25")
	}
}

func TestSearch_MustExcludeScenario(t *testing.T) {
	chunks := []*types.Chunk{
		testChunk("c1", "The api returns a token"),
		testChunk("c2", "Deprecated api endpoint, api api api"),
		testChunk("c3", "The api accepts a filter"),
		testChunk("c4", "This api is DEPRECATED and slated for removal"),
		testChunk("c5", "Use the api client library"),
	}
	store := &mockVectorStore{sims: map[string]float64{"c1": 0.1, "c2": 0.99, "c3": 0.2, "c4": 0.98, "c5": 0.3}}
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

	for _, mode := range []types.SearchMode{types.SearchModeHybrid, types.SearchModeSemantic, types.SearchModeKeyword} {
		t.Run(string(mode), func(t *testing.T) {
			q := query("api", 10, mode)
			q.Filters.MustExclude = []string{"deprecated"}

			resp, err := s.Search(context.Background(), q)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"c1", "c3", "c5"}, resultIDs(resp))
			assert.Equal(t, map[string]any{"must_exclude": []string{"deprecated"}}, resp.FiltersApplied)
		})
	}
}

func TestSearch_DateRangeScenario(t *testing.T) {
	var chunks []*types.Chunk
	for month := time.January; month <= time.December; month++ {
		c := testChunk(fmt.Sprintf("m%02d", month), "Monthly operations report for "+month.String())
		c.DocumentID = "doc-" + month.String()
		c.Metadata.UploadedAt = time.Date(2024, month, 15, 12, 0, 0, 0, time.UTC)
		chunks = append(chunks, c)
	}
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{}, nil)

	from, err := filter.ParseDate("2024-06-01", false)
	require.NoError(t, err)
	to, err := filter.ParseDate("2024-06-30", true)
	require.NoError(t, err)

	q := query("operations report", 12, types.SearchModeKeyword)
	q.Filters = types.Filters{DateFrom: from, DateTo: to}

	resp, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m06", resp.Results[0].ChunkID)
	assert.Equal(t, time.June, resp.Results[0].Metadata.UploadedAt.Month())
}

// rankingCorpus has repeated contents so that ties exercise the ID tie-break
func rankingCorpus() ([]*types.Chunk, map[string]float64) {
	contents := []string{
		"grid battery storage for renewable power",
		"battery chemistry and cell degradation",
		"grid frequency regulation services",
		"wind turbine maintenance schedule",
		"battery storage",
		"battery storage",
		"solar inverter sizing guide",
		"storage tank inspection checklist",
	}
	sims := []float64{0.9, 0.4, 0.7, -0.2, 0.55, 0.55, 0.1, 0.3}

	chunks := make([]*types.Chunk, len(contents))
	table := make(map[string]float64, len(contents))
	for i, content := range contents {
		id := fmt.Sprintf("chunk_%02d", i)
		chunks[i] = testChunk(id, content)
		table[id] = sims[i]
	}
	return chunks, table
}

func TestSearch_DeterministicAndTotallyOrdered(t *testing.T) {
	chunks, sims := rankingCorpus()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, nil)

	for _, fusion := range []types.FusionMethod{types.FusionWeighted, types.FusionRRF} {
		for _, mode := range []types.SearchMode{types.SearchModeHybrid, types.SearchModeSemantic, types.SearchModeKeyword} {
			t.Run(string(fusion)+"/"+string(mode), func(t *testing.T) {
				q := query("battery storage grid", 10, mode)
				q.Fusion = fusion

				first, err := s.Search(context.Background(), q)
				require.NoError(t, err)
				second, err := s.Search(context.Background(), q)
				require.NoError(t, err)

				assert.Equal(t, first.Results, second.Results)
				assertTotalOrder(t, first)
				assert.False(t, first.CacheHit)
			})
		}
	}
}

func TestSearch_TopKCap(t *testing.T) {
	chunks, sims := rankingCorpus()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, nil)
	ctx := context.Background()

	// "battery" occurs in four chunks
	for _, topK := range []int{1, 2, 4, 6, 10} {
		t.Run(fmt.Sprintf("keyword top_k=%d", topK), func(t *testing.T) {
			resp, err := s.Search(ctx, query("battery", topK, types.SearchModeKeyword))
			require.NoError(t, err)
			assert.Len(t, resp.Results, min(topK, 4))
		})
	}

	t.Run("hybrid truncates after the full sort", func(t *testing.T) {
		full, err := s.Search(ctx, query("battery storage", 10, types.SearchModeHybrid))
		require.NoError(t, err)
		top3, err := s.Search(ctx, query("battery storage", 3, types.SearchModeHybrid))
		require.NoError(t, err)

		require.Len(t, top3.Results, 3)
		assert.Equal(t, full.Results[:3], top3.Results)
	})
}

func TestSearch_HybridWeightBoundaries(t *testing.T) {
	chunks, sims := rankingCorpus()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, nil)
	ctx := context.Background()
	text := "battery storage grid"

	semantic, err := s.Search(ctx, query(text, 10, types.SearchModeSemantic))
	require.NoError(t, err)
	keyword, err := s.Search(ctx, query(text, 10, types.SearchModeKeyword))
	require.NoError(t, err)

	t.Run("weight 1 matches semantic order", func(t *testing.T) {
		q := query(text, 10, types.SearchModeHybrid)
		q.SemanticWeight = types.Float64Ptr(1)
		resp, err := s.Search(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, types.SearchModeHybrid, resp.SearchMode)
		assert.Equal(t, resultIDs(semantic), resultIDs(resp))
	})

	t.Run("weight 0 matches keyword order", func(t *testing.T) {
		q := query(text, 10, types.SearchModeHybrid)
		q.SemanticWeight = types.Float64Ptr(0)
		resp, err := s.Search(ctx, q)
		require.NoError(t, err)

		ids := resultIDs(resp)
		require.GreaterOrEqual(t, len(ids), len(keyword.Results))
		assert.Equal(t, resultIDs(keyword), ids[:len(keyword.Results)])
		for _, r := range resp.Results[len(keyword.Results):] {
			assert.Zero(t, r.Score, "semantic-only candidates contribute nothing at weight 0")
		}
	})
}

func TestSearch_HybridScoreBreakdown(t *testing.T) {
	chunks := []*types.Chunk{
		testChunk("both", "battery storage battery"),
		testChunk("kw", "battery notes"),
		testChunk("sem", "energy buffer"),
	}
	store := &mockVectorStore{sims: map[string]float64{"both": 0.6, "sem": 0.2}}
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

	q := query("battery", 10, types.SearchModeHybrid)
	q.SemanticWeight = types.Float64Ptr(0.7)
	resp, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	byID := make(map[string]types.ScoredResult)
	for _, r := range resp.Results {
		byID[r.ChunkID] = r
	}

	both := byID["both"]
	require.NotNil(t, both.SemanticScore)
	require.NotNil(t, both.KeywordScore)
	assert.InDelta(t, 0.8, *both.SemanticScore, 1e-9)

	kw := byID["kw"]
	assert.Nil(t, kw.SemanticScore)
	require.NotNil(t, kw.KeywordScore)

	sem := byID["sem"]
	assert.Nil(t, sem.KeywordScore)
	require.NotNil(t, sem.SemanticScore)
	assert.InDelta(t, 0.7*0.6, sem.Score, 1e-9)

	maxKW := max(*both.KeywordScore, *kw.KeywordScore)
	assert.InDelta(t, 0.7*0.8+0.3*(*both.KeywordScore/maxKW), both.Score, 1e-9)
	assert.InDelta(t, 0.3*(*kw.KeywordScore/maxKW), kw.Score, 1e-9)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearch_RRF(t *testing.T) {
	chunks, sims := rankingCorpus()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, nil)

	q := query("grid battery storage", 10, types.SearchModeHybrid)
	q.Fusion = types.FusionRRF
	resp, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	// chunk_00 is first in both lists
	assert.Equal(t, "chunk_00", resp.Results[0].ChunkID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-9)
	for _, r := range resp.Results {
		assert.Greater(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0+1e-9)
	}
	assertTotalOrder(t, resp)
}

func TestSearch_SemanticCandidates(t *testing.T) {
	chunks, sims := rankingCorpus()
	sims["ghost"] = 0.99 // Embedding left behind by a deleted chunk

	t.Run("fetches top_k times the multiplier", func(t *testing.T) {
		store := &mockVectorStore{sims: sims}
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

		resp, err := s.Search(context.Background(), query("battery", 2, types.SearchModeSemantic))
		require.NoError(t, err)
		assert.Equal(t, 2*DefaultCandidateMultiplier, store.lastTopN)
		assert.Nil(t, store.lastEligible, "no filter means no restriction")
		assert.NotContains(t, resultIDs(resp), "ghost")
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "chunk_00", resp.Results[0].ChunkID)
		assert.InDelta(t, NormalizeSimilarity(0.9), resp.Results[0].Score, 1e-12)
	})

	t.Run("restricts the store to eligible IDs", func(t *testing.T) {
		store := &mockVectorStore{sims: sims}
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

		q := query("battery", 10, types.SearchModeSemantic)
		q.Filters.DocumentIDs = []string{"doc-chunk_01", "doc-chunk_03"}
		resp, err := s.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"chunk_01", "chunk_03"}, store.lastEligible)
		assert.Equal(t, []string{"chunk_01", "chunk_03"}, resultIDs(resp))
	})

	t.Run("post-filters stores that ignore the restriction", func(t *testing.T) {
		store := &mockVectorStore{sims: sims, ignoreEligible: true}
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

		q := query("battery", 10, types.SearchModeSemantic)
		q.Filters.DocumentIDs = []string{"doc-chunk_03"}
		resp, err := s.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"chunk_03"}, resultIDs(resp))
	})

	t.Run("filters that exclude everything skip the store", func(t *testing.T) {
		store := &mockVectorStore{sims: sims}
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

		q := query("battery", 10, types.SearchModeHybrid)
		q.Filters.MustInclude = []string{"no such phrase"}
		resp, err := s.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.Zero(t, store.calls)
	})
}

func TestSearch_Degradation(t *testing.T) {
	chunks, sims := rankingCorpus()
	failing := &mockEmbedder{generateFunc: func(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return nil, errors.New("provider down")
	}}
	fastTimeout := DefaultConfig()
	fastTimeout.CacheSize = -1
	fastTimeout.SemanticTimeout = 20 * time.Millisecond

	tests := []struct {
		name       string
		emb        embedder.Embedder
		store      *mockVectorStore
		cfg        *Config
		q          types.SearchQuery
		wantErr    error
		wantMode   types.SearchMode
		wantReason string
	}{
		{
			name:       "hybrid with failing embedder runs keyword-only",
			emb:        failing,
			store:      &mockVectorStore{sims: sims},
			q:          query("battery storage", 5, types.SearchModeHybrid),
			wantMode:   types.SearchModeKeyword,
			wantReason: reasonSemanticUnavailable,
		},
		{
			name:       "hybrid with failing store runs keyword-only",
			emb:        &mockEmbedder{},
			store:      &mockVectorStore{err: errors.New("database locked")},
			q:          query("battery storage", 5, types.SearchModeHybrid),
			wantMode:   types.SearchModeKeyword,
			wantReason: reasonSemanticUnavailable,
		},
		{
			name:       "hybrid with slow store times out to keyword-only",
			emb:        &mockEmbedder{},
			store:      &mockVectorStore{block: true},
			cfg:        &fastTimeout,
			q:          query("battery storage", 5, types.SearchModeHybrid),
			wantMode:   types.SearchModeKeyword,
			wantReason: reasonSemanticUnavailable,
		},
		{
			name:       "hybrid without semantic collaborators runs keyword-only",
			q:          query("battery storage", 5, types.SearchModeHybrid),
			wantMode:   types.SearchModeKeyword,
			wantReason: reasonSemanticUnavailable,
		},
		{
			name:       "hybrid with empty keyword query runs semantic-only",
			emb:        &mockEmbedder{},
			store:      &mockVectorStore{sims: sims},
			q:          query("?! --", 5, types.SearchModeHybrid),
			wantMode:   types.SearchModeSemantic,
			wantReason: reasonEmptyKeywordQuery,
		},
		{
			name:    "hybrid with both scorers unavailable fails",
			emb:     failing,
			store:   &mockVectorStore{sims: sims},
			q:       query("?! --", 5, types.SearchModeHybrid),
			wantErr: types.ErrSearchUnavailable,
		},
		{
			name:    "semantic mode never falls back",
			emb:     failing,
			store:   &mockVectorStore{sims: sims},
			q:       query("battery storage", 5, types.SearchModeSemantic),
			wantErr: types.ErrSearchUnavailable,
		},
		{
			name:    "keyword mode with empty tokens fails",
			emb:     &mockEmbedder{},
			store:   &mockVectorStore{sims: sims},
			q:       query("?! --", 5, types.SearchModeKeyword),
			wantErr: types.ErrEmptyQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store VectorStore
			if tt.store != nil {
				store = tt.store
			}
			s := setupTestSearcher(t, chunks, tt.emb, store, tt.cfg)

			resp, err := s.Search(context.Background(), tt.q)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, resp.SearchMode)
			assert.Equal(t, tt.q.Mode, resp.RequestedMode)
			assert.True(t, resp.Degraded)
			assert.True(t, strings.HasPrefix(resp.DegradedReason, tt.wantReason), resp.DegradedReason)
			assert.NotEmpty(t, resp.Results)
			assertTotalOrder(t, resp)
		})
	}
}

func TestSearch_DegradedKeywordMatchesKeywordMode(t *testing.T) {
	chunks, _ := rankingCorpus()
	s := setupTestSearcher(t, chunks, nil, nil, nil)
	ctx := context.Background()

	degraded, err := s.Search(ctx, query("battery storage", 5, types.SearchModeHybrid))
	require.NoError(t, err)
	keyword, err := s.Search(ctx, query("battery storage", 5, types.SearchModeKeyword))
	require.NoError(t, err)

	assert.Equal(t, keyword.Results, degraded.Results)
}

func TestSearch_CancelledContext(t *testing.T) {
	chunks, sims := rankingCorpus()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := s.Search(ctx, query("battery", 5, types.SearchModeHybrid))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
}

func TestSearch_Cache(t *testing.T) {
	chunks, sims := rankingCorpus()
	store := &mockVectorStore{sims: sims}
	cfg := DefaultConfig()
	s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, &cfg)
	ctx := context.Background()
	q := query("battery storage", 5, types.SearchModeHybrid)

	first, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, s.CacheLen())

	// Mutating a response doesn't corrupt the cached copy
	first.Results[0].Content = "mutated"

	second, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.NotEqual(t, "mutated", second.Results[0].Content)
	assert.Equal(t, 1, store.calls)

	t.Run("equivalent filters share an entry", func(t *testing.T) {
		a := q
		a.Filters.AnyOf = []string{"Grid", "battery"}
		b := q
		b.Filters.AnyOf = []string{"battery", " grid "}

		_, err := s.Search(ctx, a)
		require.NoError(t, err)
		resp, err := s.Search(ctx, b)
		require.NoError(t, err)
		assert.True(t, resp.CacheHit)
	})

	t.Run("index mutation invalidates", func(t *testing.T) {
		kq := query("battery storage", 5, types.SearchModeKeyword)
		_, err := s.Search(ctx, kq)
		require.NoError(t, err)
		resp, err := s.Search(ctx, kq)
		require.NoError(t, err)
		require.True(t, resp.CacheHit)

		require.NoError(t, s.NotifyChunkAdded(ctx, testChunk("chunk_99", "battery storage battery storage")))

		resp, err = s.Search(ctx, kq)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
		assert.Equal(t, "chunk_99", resp.Results[0].ChunkID)
	})

	t.Run("degraded responses are not cached", func(t *testing.T) {
		store.mu.Lock()
		store.err = errors.New("offline")
		store.mu.Unlock()

		dq := query("wind turbine", 5, types.SearchModeHybrid)
		resp, err := s.Search(ctx, dq)
		require.NoError(t, err)
		assert.True(t, resp.Degraded)

		store.mu.Lock()
		store.err = nil
		store.mu.Unlock()

		resp, err = s.Search(ctx, dq)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
		assert.False(t, resp.Degraded)
	})

	t.Run("expired entries are dropped", func(t *testing.T) {
		short := DefaultConfig()
		short.CacheTTL = time.Millisecond
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, &mockVectorStore{sims: sims}, &short)

		_, err := s.Search(ctx, q)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		resp, err := s.Search(ctx, q)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	})

	t.Run("invalidate", func(t *testing.T) {
		s.InvalidateCache()
		assert.Zero(t, s.CacheLen())
	})
}

// TestSearch_FilterComposition generates random corpora and filter
// combinations and checks that no returned chunk violates any active
// category, even when the vector store ignores the eligible set.
func TestSearch_FilterComposition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vocab := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pick := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = vocab[rng.Intn(len(vocab))]
		}
		return out
	}

	for round := 0; round < 50; round++ {
		var chunks []*types.Chunk
		sims := make(map[string]float64)
		for i := 0; i < 30; i++ {
			c := testChunk(fmt.Sprintf("r%02d_c%02d", round, i), strings.Join(pick(6), " "))
			c.DocumentID = fmt.Sprintf("doc-%d", rng.Intn(5))
			c.Metadata.UploadedAt = base.AddDate(0, 0, rng.Intn(365))
			chunks = append(chunks, c)
			sims[c.ID] = rng.Float64()*2 - 1
		}

		f := types.Filters{}
		if rng.Intn(2) == 0 {
			f.DocumentIDs = []string{fmt.Sprintf("doc-%d", rng.Intn(5)), fmt.Sprintf("doc-%d", rng.Intn(5))}
		}
		if rng.Intn(2) == 0 {
			from := base.AddDate(0, 0, rng.Intn(180))
			to := from.AddDate(0, 0, rng.Intn(180))
			f.DateFrom, f.DateTo = &from, &to
		}
		if rng.Intn(2) == 0 {
			f.MustInclude = pick(1)
		}
		if rng.Intn(2) == 0 {
			f.MustExclude = pick(1)
		}
		if rng.Intn(2) == 0 {
			f.AnyOf = pick(2)
		}

		compiled, err := filter.New(f)
		require.NoError(t, err)

		store := &mockVectorStore{sims: sims, ignoreEligible: true}
		s := setupTestSearcher(t, chunks, &mockEmbedder{}, store, nil)

		q := query(strings.Join(pick(2), " "), 30, types.SearchModeHybrid)
		q.Filters = f
		resp, err := s.Search(context.Background(), q)
		require.NoError(t, err)

		byID := make(map[string]*types.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}
		eligible := compiled.Apply(chunks)
		assert.Equal(t, len(eligible), resp.TotalResults, "round %d", round)
		for _, r := range resp.Results {
			assert.True(t, compiled.Match(byID[r.ChunkID]), "round %d: %s violates %+v", round, r.ChunkID, f)
		}
		assertTotalOrder(t, resp)
	}
}

func TestNormalizeSimilarity(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0.5},
		{1, 1},
		{0.5, 0.75},
		{-3, 0},
		{2, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeSimilarity(tt.in), 1e-12, "input %v", tt.in)
	}
}
