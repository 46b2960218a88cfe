// Package searcher implements the hybrid ranking engine: it combines vector
// similarity with BM25 keyword relevance over a filtered chunk set and
// returns one totally ordered result list.
//
// The searcher provides three search modes:
//   - Hybrid: semantic + BM25 fusion (default)
//   - Semantic: vector similarity only
//   - Keyword: BM25 only
//
// # Basic Usage
//
//	index := corpus.NewIndex(corpus.DefaultBM25Params())
//	s, err := searcher.New(index, emb, store, searcher.DefaultConfig(),
//	    searcher.WithChunkRepository(store),
//	    searcher.WithLogger(logger))
//
//	if _, err := s.RebuildIndex(ctx); err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, types.SearchQuery{
//	    QueryText: "battery storage",
//	    TopK:      5,
//	    Mode:      types.SearchModeHybrid,
//	})
//
// # Pipeline
//
// One query runs these steps:
//
//  1. Validate the query and resolve defaults (weight, fusion).
//  2. Start the query embedding in a goroutine.
//  3. Under the index read lock, compute the eligible chunk set from the
//     filters and the BM25 scores restricted to it.
//  4. Fetch top_k * candidate_multiplier semantic candidates restricted to
//     the eligible IDs, under the semantic timeout.
//  5. Fuse, sort by score descending then chunk ID ascending, truncate to
//     top_k and attach display data.
//
// # Scores
//
// Semantic scores are raw cosine mapped with (s+1)/2 onto [0,1]. Keyword
// scores are raw BM25. Weighted fusion computes
//
//	w*semantic + (1-w)*bm25/max(bm25)
//
// where the max is taken over the keyword candidates of this query. RRF
// computes (w/(k+rank_sem) + (1-w)/(k+rank_kw)) * (k+1). A chunk missing
// from one candidate set contributes 0 for that component.
//
// # Degradation
//
// Hybrid queries degrade instead of failing: an empty keyword query runs
// semantic-only and a failed or timed out semantic scorer runs keyword-only.
// SearchMode then reports the mode actually used and Degraded is set. When
// neither scorer is usable the query fails with types.ErrSearchUnavailable.
// Pure modes never switch.
//
// # Caching
//
// Responses are cached in an LRU keyed by a SHA-256 of the resolved query
// and the index generation. Every index mutation bumps the generation, so
// stale entries are never served. Degraded responses are not cached.
//
// # Index maintenance
//
// NotifyChunkAdded and NotifyChunkRemoved keep the index in step with the
// chunk repository. If a mutation reports types.ErrIndexInconsistency the
// searcher logs it and rebuilds from the repository. Concurrent RebuildIndex
// calls share one rebuild.
package searcher
