package types

import (
	"math"
	"strings"
	"time"
)

// SearchMode selects the fusion policy for one query
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Semantic + BM25 fusion
	SearchModeSemantic SearchMode = "semantic" // Vector similarity only
	SearchModeKeyword  SearchMode = "keyword"  // BM25 only
)

// ParseSearchMode parses a mode name. The empty string selects hybrid and
// "vector" is accepted as an alias of semantic.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SearchModeHybrid):
		return SearchModeHybrid, nil
	case string(SearchModeSemantic), "vector":
		return SearchModeSemantic, nil
	case string(SearchModeKeyword):
		return SearchModeKeyword, nil
	default:
		return "", invalidQuery("unknown search mode %q", s)
	}
}

// Valid reports whether m is one of the known modes
func (m SearchMode) Valid() bool {
	return m == SearchModeHybrid || m == SearchModeSemantic || m == SearchModeKeyword
}

// FusionMethod selects how hybrid mode combines the two signals
type FusionMethod string

const (
	FusionWeighted FusionMethod = "weighted" // Weighted sum of normalized scores
	FusionRRF      FusionMethod = "rrf"      // Reciprocal Rank Fusion
)

// ParseFusionMethod parses a fusion method name; the empty string selects weighted
func ParseFusionMethod(s string) (FusionMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FusionWeighted):
		return FusionWeighted, nil
	case string(FusionRRF):
		return FusionRRF, nil
	default:
		return "", invalidQuery("unknown fusion method %q", s)
	}
}

// Filters narrows the eligible chunk set. Every active category must hold.
type Filters struct {
	DocumentIDs []string   `json:"document_ids,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	MustInclude []string   `json:"must_include,omitempty"` // AND
	MustExclude []string   `json:"must_exclude,omitempty"` // NOT
	AnyOf       []string   `json:"any_of,omitempty"`       // OR
}

// IsEmpty reports whether no filter category is active
func (f Filters) IsEmpty() bool {
	return len(f.DocumentIDs) == 0 && f.DateFrom == nil && f.DateTo == nil &&
		len(f.MustInclude) == 0 && len(f.MustExclude) == 0 && len(f.AnyOf) == 0
}

// Normalized returns a copy with blank entries removed and duplicate
// document IDs collapsed
func (f Filters) Normalized() Filters {
	return Filters{
		DocumentIDs: cleanList(f.DocumentIDs, true),
		DateFrom:    f.DateFrom,
		DateTo:      f.DateTo,
		MustInclude: cleanList(f.MustInclude, false),
		MustExclude: cleanList(f.MustExclude, false),
		AnyOf:       cleanList(f.AnyOf, false),
	}
}

// Validate checks the filter shapes
func (f Filters) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return invalidQuery("date_from %s is after date_to %s",
			f.DateFrom.Format(time.RFC3339), f.DateTo.Format(time.RFC3339))
	}
	return nil
}

func cleanList(in []string, dedupe bool) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if dedupe {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SearchQuery is the input of one search operation
type SearchQuery struct {
	QueryText      string
	TopK           int
	Mode           SearchMode
	SemanticWeight *float64 // Hybrid only; nil selects the configured default
	Fusion         FusionMethod
	Filters        Filters
}

// Validate rejects malformed queries. maxTopK <= 0 disables the upper bound.
func (q *SearchQuery) Validate(maxTopK int) error {
	if strings.TrimSpace(q.QueryText) == "" {
		return invalidQuery("query text cannot be empty")
	}
	if q.TopK <= 0 {
		return invalidQuery("top_k must be positive, got %d", q.TopK)
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		return invalidQuery("top_k must be at most %d, got %d", maxTopK, q.TopK)
	}
	if !q.Mode.Valid() {
		return invalidQuery("unknown search mode %q", q.Mode)
	}
	if q.Fusion != "" && q.Fusion != FusionWeighted && q.Fusion != FusionRRF {
		return invalidQuery("unknown fusion method %q", q.Fusion)
	}
	if w := q.SemanticWeight; w != nil {
		if math.IsNaN(*w) || *w < 0 || *w > 1 {
			return invalidQuery("semantic_weight must be within [0,1], got %v", *w)
		}
	}
	return q.Filters.Validate()
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 {
	return &v
}
