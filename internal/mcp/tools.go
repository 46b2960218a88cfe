package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/chunker"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another directory run is active
	ErrorCodeNotFound           = -32003 // Document or chunk does not exist
	ErrorCodeEmptyQuery         = -32004 // Query is empty or has no searchable terms
	ErrorCodeSearchUnavailable  = -32005 // No scorer could serve the query
	ErrorCodeSourceBlocked      = -32006 // File was deleted by a user
)

// maxErrorsReported caps the per-file errors echoed by index_directory
const maxErrorsReported = 5

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	req := app.SearchRequest{
		Query:      query,
		TopK:       getIntDefault(args, "top_k", 0),
		SearchMode: getStringDefault(args, "search_mode", ""),
		Fusion:     getStringDefault(args, "fusion", ""),
	}
	if w, ok := args["semantic_weight"].(float64); ok {
		req.SemanticWeight = &w
	}
	if filters, ok := args["filters"].(map[string]interface{}); ok {
		req.DocumentIDs = getStringSlice(filters, "document_ids")
		req.DateFrom = getStringDefault(filters, "date_from", "")
		req.DateTo = getStringDefault(filters, "date_to", "")
		req.MustInclude = getStringSlice(filters, "must_include")
		req.MustExclude = getStringSlice(filters, "must_exclude")
		req.AnyOf = getStringSlice(filters, "any_of")
	}

	resp, err := s.svc.RunSearch(ctx, req)
	if err != nil {
		return nil, s.toMCPError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		result := map[string]interface{}{
			"rank":        r.Rank,
			"score":       r.Score,
			"chunk_id":    r.ChunkID,
			"document_id": r.DocumentID,
			"content":     r.Content,
			"metadata":    r.Metadata,
		}
		if r.SemanticScore != nil {
			result["semantic_score"] = *r.SemanticScore
		}
		if r.KeywordScore != nil {
			result["keyword_score"] = *r.KeywordScore
		}
		results = append(results, result)
	}

	response := map[string]interface{}{
		"total_results":  resp.TotalResults,
		"results":        results,
		"search_mode":    resp.SearchMode,
		"requested_mode": resp.RequestedMode,
		"duration_ms":    resp.Duration.Milliseconds(),
	}
	if resp.Degraded {
		response["degraded"] = true
		response["degraded_reason"] = resp.DegradedReason
	}
	if resp.FiltersApplied != nil {
		response["filters_applied"] = resp.FiltersApplied
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexDocument handles the index_document tool invocation
func (s *Server) handleIndexDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	content := getStringDefault(args, "content", "")

	var res *indexer.Result
	switch {
	case path != "":
		if err := validateFile(path); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
		res, err = s.svc.IngestFile(ctx, path)
	case content != "":
		res, err = s.svc.IngestText(ctx, indexer.IngestRequest{
			Filename: getStringDefault(args, "filename", ""),
			Content:  content,
			Title:    getStringDefault(args, "title", ""),
		})
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "either path or content is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err != nil {
		return nil, s.toMCPError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":        !res.Skipped,
		"skipped":        res.Skipped,
		"document_id":    res.Document.ID,
		"filename":       res.Document.Filename,
		"title":          res.Document.Title,
		"chunks_created": res.ChunksCreated,
		"chunks_removed": res.ChunksRemoved,
		"duration_ms":    res.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	if err := validateDirectory(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.svc.IndexDirectory(ctx, path)
	if err != nil {
		return nil, s.toMCPError("indexing failed", err)
	}

	response := map[string]interface{}{
		"files_indexed":  stats.FilesIndexed,
		"files_skipped":  stats.FilesSkipped,
		"files_failed":   stats.FilesFailed,
		"files_blocked":  stats.FilesBlocked,
		"files_removed":  stats.FilesRemoved,
		"chunks_created": stats.ChunksCreated,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxErrorsReported {
			response["errors"] = stats.ErrorMessages[:maxErrorsReported]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	id := getStringDefault(args, "document_id", "")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}

	removed, err := s.svc.DeleteDocument(ctx, id)
	if err != nil {
		return nil, s.toMCPError("delete failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":        true,
		"document_id":    id,
		"chunks_removed": len(removed),
	})), nil
}

// handleListDocuments handles the list_documents tool invocation
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	status := types.DocumentStatus(getStringDefault(args, "status", ""))
	if status != "" && !status.Valid() {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid status", map[string]interface{}{
			"param":   "status",
			"value":   status,
			"allowed": []string{"pending", "processing", "completed", "failed"},
		})
	}

	docs, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return nil, s.toMCPError("failed to list documents", err)
	}

	list := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		if status != "" && d.Status != status {
			continue
		}
		entry := map[string]interface{}{
			"id":          d.ID,
			"filename":    d.Filename,
			"status":      d.Status,
			"num_chunks":  d.NumChunks,
			"num_pages":   d.NumPages,
			"uploaded_at": d.UploadedAt,
		}
		if d.Title != "" {
			entry["title"] = d.Title
		}
		if d.SourcePath != "" {
			entry["source_path"] = d.SourcePath
		}
		if d.ErrorMessage != "" {
			entry["error_message"] = d.ErrorMessage
		}
		list = append(list, entry)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"documents": list,
		"total":     len(list),
	})), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}
	stats, err := s.svc.RebuildIndex(ctx)
	if err != nil {
		return nil, s.toMCPError("rebuild failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"rebuilt":     true,
		"chunk_count": stats.ChunkCount,
		"term_count":  stats.TermCount,
		"avg_length":  stats.AvgLength,
		"generation":  stats.Generation,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}
	st, err := s.svc.Status(ctx)
	if err != nil {
		return nil, s.toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"documents":           st.Documents,
			"documents_by_status": st.DocumentsByStatus,
			"chunks":              st.Chunks,
			"embeddings":          st.Embeddings,
			"blocked_sources":     st.BlockedSources,
			"index_size_mb":       fmt.Sprintf("%.2f", st.IndexSizeMB),
			"indexed_chunks":      st.Index.ChunkCount,
			"distinct_terms":      st.Index.TermCount,
		},
		"embedder": st.Embedder,
		"health":   st.Health,
		"indexing": st.Indexing,
		"activity": st.Activity,
		"uptime":   st.Uptime,
	}
	if st.LastProcessedAt != nil {
		response["last_processed_at"] = st.LastProcessedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListBlockedSources handles the list_blocked_sources tool invocation
func (s *Server) handleListBlockedSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}
	sources, err := s.svc.BlockedSources(ctx)
	if err != nil {
		return nil, s.toMCPError("failed to list blocked sources", err)
	}
	if sources == nil {
		sources = []*types.BlockedSource{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})), nil
}

// handleReprocessDeleted handles the reprocess_deleted tool invocation
func (s *Server) handleReprocessDeleted(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	paths := getStringSlice(args, "paths")
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "paths",
				"reason": ErrPathNotAbsolute.Error(),
				"value":  p,
			})
		}
	}

	results, err := s.svc.ReprocessDeleted(ctx, paths)
	if err != nil {
		return nil, s.toMCPError("reprocess failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results": results,
		"total":   len(results),
	})), nil
}

// handleWatcherActivity handles the watcher_activity tool invocation
func (s *Server) handleWatcherActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	summary := s.svc.Activity()
	if reset, _ := args["clear"].(bool); reset {
		s.svc.ClearActivity()
	}
	return mcp.NewToolResultText(formatJSON(summary)), nil
}

// Helper functions

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// toMCPError maps a service error to its protocol code
func (s *Server) toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", data)
	case errors.Is(err, types.ErrInvalidQuery),
		errors.Is(err, indexer.ErrNoContent),
		errors.Is(err, chunker.ErrUnsupportedFormat):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, types.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, message, data)
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is running", data)
	case errors.Is(err, indexer.ErrSourceBlocked):
		return newMCPError(ErrorCodeSourceBlocked, "file was deleted; use reprocess_deleted to index it again", data)
	case errors.Is(err, types.ErrSearchUnavailable):
		return newMCPError(ErrorCodeSearchUnavailable, "search unavailable", data)
	default:
		s.logger.Error(message, zap.Error(err))
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// arguments returns the tool arguments; no arguments is an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// validateFile checks that path is an absolute, readable regular file
func validateFile(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrIsDirectory
	}
	return nil
}

// validateDirectory checks that path is an absolute, readable directory
func validateDirectory(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-strings
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation errors

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrIsDirectory     = errors.New("path is a directory")
)
