package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pdfkb/pdfkb-search/internal/embedder"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// errSemanticNotConfigured is reported when no embedder or vector store was wired
var errSemanticNotConfigured = errors.New("no embedder or vector store configured")

// NormalizeSimilarity maps raw cosine similarity from [-1,1] onto [0,1]
// with (s+1)/2. Out of range inputs are clamped. Every semantic score the
// engine reports goes through this mapping.
func NormalizeSimilarity(similarity float64) float64 {
	if math.IsNaN(similarity) {
		return 0
	}
	v := (similarity + 1) / 2
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// embedResult carries the query vector from the embedding goroutine
type embedResult struct {
	vector []float32
	err    error
}

func (s *Searcher) semanticConfigured() bool {
	return s.embedder != nil && s.vectors != nil
}

// runQueryEmbedding embeds the query text in a goroutine
func (s *Searcher) runQueryEmbedding(ctx context.Context, text string, resultChan chan<- embedResult) {
	var res embedResult
	res.vector, res.err = embedder.Vector(ctx, s.embedder, text)
	if res.err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", res.err)
	}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// semanticCandidates waits for the query vector and fetches
// top_k * candidate_multiplier candidates from the vector store, restricted
// to the eligible set. Scores are normalized to [0,1].
func (s *Searcher) semanticCandidates(ctx context.Context, p *plan, eligible map[string]*types.Chunk, embedChan <-chan embedResult) (map[string]float64, error) {
	if embedChan == nil {
		return nil, errSemanticNotConfigured
	}

	var res embedResult
	select {
	case res = <-embedChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	var ids []string
	if p.filter.Active() {
		ids = eligibleIDs(eligible)
	}

	topN := p.query.TopK * s.cfg.CandidateMultiplier
	hits, err := s.vectors.SimilaritySearch(ctx, res.vector, ids, topN)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		// Stores may ignore the restriction or hold embeddings of chunks
		// the index no longer has
		if _, ok := eligible[h.ChunkID]; !ok {
			continue
		}
		if _, dup := scores[h.ChunkID]; dup {
			continue
		}
		scores[h.ChunkID] = NormalizeSimilarity(h.Similarity)
	}
	return scores, nil
}

// eligibleIDs returns the keys of eligible in ascending order. The result is
// non-nil so an empty set still restricts the store.
func eligibleIDs(eligible map[string]*types.Chunk) []string {
	ids := make([]string, 0, len(eligible))
	for id := range eligible {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
