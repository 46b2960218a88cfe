package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

type searchResponse struct {
	*types.SearchResponse
	DurationMS float64 `json:"duration_ms"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req app.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	resp, err := s.svc.RunSearch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		SearchResponse: resp,
		DurationMS:     float64(resp.Duration.Microseconds()) / 1000,
	})
}

type documentList struct {
	Documents []*types.Document `json:"documents"`
	Total     int               `json:"total"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*types.Document{}
	}
	writeJSON(w, http.StatusOK, documentList{Documents: docs, Total: len(docs)})
}

// uploadRequest is the JSON upload body
type uploadRequest struct {
	Filename   string     `json:"filename"`
	Content    string     `json:"content"`
	Title      string     `json:"title,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

type uploadResponse struct {
	Document      *types.Document `json:"document"`
	ChunksCreated int             `json:"chunks_created"`
	DurationMS    int64           `json:"duration_ms"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	req, err := readUpload(w, r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.svc.IngestText(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Document:      res.Document,
		ChunksCreated: res.ChunksCreated,
		DurationMS:    res.Duration.Milliseconds(),
	})
}

// readUpload accepts a multipart form with a "file" part or a JSON body
func readUpload(w http.ResponseWriter, r *http.Request) (indexer.IngestRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body uploadRequest
		if err := decodeJSON(w, r, &body); err != nil {
			return indexer.IngestRequest{}, err
		}
		req := indexer.IngestRequest{Filename: body.Filename, Content: body.Content, Title: body.Title}
		if body.UploadedAt != nil {
			req.UploadedAt = *body.UploadedAt
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return indexer.IngestRequest{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return indexer.IngestRequest{}, fmt.Errorf("missing file part: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return indexer.IngestRequest{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return indexer.IngestRequest{
		Filename: header.Filename,
		Content:  string(data),
		Title:    r.FormValue("title"),
	}, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type chunkList struct {
	DocumentID string         `json:"document_id"`
	Chunks     []*types.Chunk `json:"chunks"`
	Total      int            `json:"total"`
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chunks, err := s.svc.DocumentChunks(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []*types.Chunk{}
	}
	writeJSON(w, http.StatusOK, chunkList{DocumentID: id, Chunks: chunks, Total: len(chunks)})
}

type deleteResponse struct {
	DocumentID    string   `json:"document_id"`
	ChunksRemoved int      `json:"chunks_removed"`
	ChunkIDs      []string `json:"chunk_ids"`
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.svc.DeleteDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, deleteResponse{DocumentID: id, ChunksRemoved: len(removed), ChunkIDs: removed})
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := s.svc.Chunk(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.RebuildIndex(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Status(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads one JSON object, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
