package types

import (
	"errors"
	"fmt"
)

// Search errors. Callers match them with errors.Is; producers wrap them with
// additional context.
var (
	// ErrInvalidQuery rejects a query before any scoring happens
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmptyQuery is returned when keyword tokenization yields no terms
	ErrEmptyQuery = errors.New("query has no searchable terms")
	// ErrIndexInconsistency reports an invariant violation found while mutating the corpus index
	ErrIndexInconsistency = errors.New("corpus index inconsistency")
	// ErrSearchUnavailable is returned when every scorer the mode needs is unavailable
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Domain errors for type validation
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score out of range")
)

// invalidQuery wraps ErrInvalidQuery with a reason
func invalidQuery(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
