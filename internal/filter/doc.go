// Package filter restricts the candidate chunk set before scoring.
//
// Filters are applied to the corpus before BM25 and vector search run, so
// every result a query returns satisfies them. An empty eligible set is a
// normal outcome and yields zero results.
package filter
