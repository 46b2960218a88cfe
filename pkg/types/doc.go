// Package types provides shared type definitions for pdfkb-search.
//
// This package defines the domain types used across the search engine, the
// storage layer and the driving surfaces (MCP, HTTP, CLI).
//
// # Core Types
//
// Chunk is the unit of retrieval. Its ID is stable across re-indexing of the
// same content:
//
//	chunk := &types.Chunk{
//	    ID:         types.ChunkID("report.pdf", 3, text),
//	    DocumentID: doc.ID,
//	    Content:    text,
//	    Metadata:   types.ChunkMetadata{Source: "report.pdf", ChunkIndex: 3},
//	}
//
// SearchQuery is validated at the boundary, before any scoring:
//
//	q := types.SearchQuery{
//	    QueryText: "quarterly revenue",
//	    TopK:      5,
//	    Mode:      types.SearchModeHybrid,
//	    Filters:   types.Filters{MustExclude: []string{"draft"}},
//	}
//	if err := q.Validate(50); err != nil {
//	    // errors.Is(err, types.ErrInvalidQuery)
//	}
//
// SearchResponse reports the mode actually used in SearchMode. When a hybrid
// query loses one of its scorers the response is marked Degraded and
// SearchMode names the surviving scorer.
//
// # Errors
//
// ErrInvalidQuery, ErrEmptyQuery, ErrIndexInconsistency, ErrSearchUnavailable
// and ErrNotFound are sentinels; producers wrap them with fmt.Errorf("%w").
package types
