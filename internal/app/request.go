package app

import (
	"context"

	"github.com/pdfkb/pdfkb-search/internal/filter"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// SearchRequest is the wire form of a search shared by the HTTP API, the
// MCP tools and the CLI. Dates are RFC 3339 or YYYY-MM-DD; a date-only
// date_to covers the whole day.
type SearchRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k,omitempty"`
	SearchMode     string   `json:"search_mode,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	Fusion         string   `json:"fusion,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	DateFrom       string   `json:"date_from,omitempty"`
	DateTo         string   `json:"date_to,omitempty"`
	MustInclude    []string `json:"must_include,omitempty"`
	MustExclude    []string `json:"must_exclude,omitempty"`
	AnyOf          []string `json:"any_of,omitempty"`
}

// SearchQuery converts the request. Malformed fields wrap types.ErrInvalidQuery;
// range checks are left to the searcher.
func (r SearchRequest) SearchQuery() (types.SearchQuery, error) {
	mode, err := types.ParseSearchMode(r.SearchMode)
	if err != nil {
		return types.SearchQuery{}, err
	}
	var fusion types.FusionMethod
	if r.Fusion != "" {
		if fusion, err = types.ParseFusionMethod(r.Fusion); err != nil {
			return types.SearchQuery{}, err
		}
	}
	from, err := filter.ParseDate(r.DateFrom, false)
	if err != nil {
		return types.SearchQuery{}, err
	}
	to, err := filter.ParseDate(r.DateTo, true)
	if err != nil {
		return types.SearchQuery{}, err
	}

	return types.SearchQuery{
		QueryText:      r.Query,
		TopK:           r.TopK,
		Mode:           mode,
		SemanticWeight: r.SemanticWeight,
		Fusion:         fusion,
		Filters: types.Filters{
			DocumentIDs: r.DocumentIDs,
			DateFrom:    from,
			DateTo:      to,
			MustInclude: r.MustInclude,
			MustExclude: r.MustExclude,
			AnyOf:       r.AnyOf,
		},
	}, nil
}

// RunSearch converts and runs a wire-form search
func (a *App) RunSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	q, err := req.SearchQuery()
	if err != nil {
		return nil, err
	}
	return a.Search(ctx, q)
}
