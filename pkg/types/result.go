package types

import "time"

// ScoredResult is one ranked output of a search
type ScoredResult struct {
	// Identification
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Rank       int    `json:"rank"` // Position in result set (1-based)

	// Scoring. Score is in [0,1] for hybrid and semantic results and raw
	// BM25 for keyword results. The breakdown fields are nil when the chunk
	// had no entry in that candidate set or the mode has no such component.
	Score         float64  `json:"score"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`
	KeywordScore  *float64 `json:"keyword_score,omitempty"`

	// Display data
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchResponse is the envelope returned by a search
type SearchResponse struct {
	TotalResults   int            `json:"total_results"`
	Results        []ScoredResult `json:"results"`
	SearchMode     SearchMode     `json:"search_mode"` // Mode actually used
	RequestedMode  SearchMode     `json:"requested_mode"`
	Degraded       bool           `json:"degraded,omitempty"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
	FiltersApplied map[string]any `json:"filters_applied,omitempty"`
	Duration       time.Duration  `json:"-"`
	CacheHit       bool           `json:"cache_hit,omitempty"`
}

// Validate checks if the result is well formed
func (r *ScoredResult) Validate() error {
	if r.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	if r.Score < 0 {
		return ErrInvalidScore
	}
	if r.SemanticScore != nil && (*r.SemanticScore < 0 || *r.SemanticScore > 1) {
		return ErrInvalidScore
	}
	return nil
}

// Clone returns a deep copy of the response
func (r *SearchResponse) Clone() *SearchResponse {
	if r == nil {
		return nil
	}
	dst := *r
	dst.Results = make([]ScoredResult, len(r.Results))
	for i, res := range r.Results {
		dst.Results[i] = res
		if res.SemanticScore != nil {
			dst.Results[i].SemanticScore = Float64Ptr(*res.SemanticScore)
		}
		if res.KeywordScore != nil {
			dst.Results[i].KeywordScore = Float64Ptr(*res.KeywordScore)
		}
		if res.Metadata.PageNumber != nil {
			dst.Results[i].Metadata.PageNumber = IntPtr(*res.Metadata.PageNumber)
		}
	}
	if r.FiltersApplied != nil {
		dst.FiltersApplied = make(map[string]any, len(r.FiltersApplied))
		for k, v := range r.FiltersApplied {
			dst.FiltersApplied[k] = v
		}
	}
	return &dst
}
