package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func TestSearchRequest_SearchQuery(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q, err := SearchRequest{Query: "solar"}.SearchQuery()
		require.NoError(t, err)
		assert.Equal(t, types.SearchModeHybrid, q.Mode)
		assert.Empty(t, q.Fusion)
		assert.Zero(t, q.TopK)
		assert.True(t, q.Filters.IsEmpty())
	})

	t.Run("all fields", func(t *testing.T) {
		w := 0.3
		q, err := SearchRequest{
			Query:          "solar",
			TopK:           7,
			SearchMode:     "vector",
			SemanticWeight: &w,
			Fusion:         "rrf",
			DocumentIDs:    []string{"doc-1"},
			DateFrom:       "2024-01-01",
			DateTo:         "2024-01-31",
			MustInclude:    []string{"panel"},
			MustExclude:    []string{"draft"},
			AnyOf:          []string{"roof", "field"},
		}.SearchQuery()
		require.NoError(t, err)
		assert.Equal(t, types.SearchModeSemantic, q.Mode)
		assert.Equal(t, types.FusionRRF, q.Fusion)
		assert.Equal(t, 7, q.TopK)
		assert.Equal(t, 0.3, *q.SemanticWeight)
		assert.Equal(t, []string{"doc-1"}, q.Filters.DocumentIDs)
		require.NotNil(t, q.Filters.DateFrom)
		require.NotNil(t, q.Filters.DateTo)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *q.Filters.DateFrom)
		assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *q.Filters.DateTo)
		assert.Equal(t, []string{"roof", "field"}, q.Filters.AnyOf)
	})

	invalid := []struct {
		name string
		req  SearchRequest
	}{
		{"mode", SearchRequest{Query: "x", SearchMode: "fuzzy"}},
		{"fusion", SearchRequest{Query: "x", Fusion: "borda"}},
		{"date from", SearchRequest{Query: "x", DateFrom: "yesterday"}},
		{"date to", SearchRequest{Query: "x", DateTo: "31/01/2024"}},
	}
	for _, tt := range invalid {
		t.Run("invalid "+tt.name, func(t *testing.T) {
			_, err := tt.req.SearchQuery()
			assert.ErrorIs(t, err, types.ErrInvalidQuery)
		})
	}
}
