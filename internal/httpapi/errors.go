package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/chunker"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// Error codes reported next to the message
const (
	CodeInvalidRequest     = "invalid_request"
	CodeEmptyQuery         = "empty_query"
	CodeNotFound           = "not_found"
	CodeIndexingInProgress = "indexing_in_progress"
	CodeSourceBlocked      = "source_blocked"
	CodeSearchUnavailable  = "search_unavailable"
	CodeInternal           = "internal_error"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps an error to its status and code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return http.StatusBadRequest, CodeEmptyQuery
	case errors.Is(err, types.ErrInvalidQuery),
		errors.Is(err, indexer.ErrNoContent),
		errors.Is(err, chunker.ErrUnsupportedFormat):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return http.StatusConflict, CodeIndexingInProgress
	case errors.Is(err, indexer.ErrSourceBlocked):
		return http.StatusConflict, CodeSourceBlocked
	case errors.Is(err, types.ErrSearchUnavailable):
		return http.StatusServiceUnavailable, CodeSearchUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: CodeInvalidRequest})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
