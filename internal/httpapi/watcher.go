package httpapi

import (
	"net/http"

	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Activity())
}

func (s *Server) handleClearActivity(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearActivity()
	writeJSON(w, http.StatusOK, map[string]string{"message": "watcher activity cleared"})
}

type blockedList struct {
	Sources []*types.BlockedSource `json:"sources"`
	Total   int                    `json:"total"`
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.BlockedSources(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []*types.BlockedSource{}
	}
	writeJSON(w, http.StatusOK, blockedList{Sources: sources, Total: len(sources)})
}

// reprocessRequest names the sources to unblock; none means all of them
type reprocessRequest struct {
	Paths []string `json:"paths,omitempty"`
}

type reprocessResponse struct {
	Results []indexer.ReprocessResult `json:"results"`
	Total   int                       `json:"total"`
}

func (s *Server) handleReprocessDeleted(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	results, err := s.svc.ReprocessDeleted(r.Context(), req.Paths)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reprocessResponse{Results: results, Total: len(results)})
}
