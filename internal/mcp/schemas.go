package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search the knowledge base with hybrid semantic and keyword ranking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (semantic + BM25), semantic (vectors only) or keyword (BM25 only)",
					"enum":        []string{"hybrid", "semantic", "keyword"},
					"default":     "hybrid",
				},
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of the semantic signal in hybrid mode (0-1)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"fusion": map[string]interface{}{
					"type":        "string",
					"description": "How hybrid mode combines the two signals",
					"enum":        []string{"weighted", "rrf"},
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters; every given category must hold",
					"properties": map[string]interface{}{
						"document_ids": stringArray("Only chunks of these documents"),
						"date_from": map[string]interface{}{
							"type":        "string",
							"description": "Earliest upload date (RFC 3339 or YYYY-MM-DD)",
						},
						"date_to": map[string]interface{}{
							"type":        "string",
							"description": "Latest upload date; a bare date includes the whole day",
						},
						"must_include": stringArray("Every term must appear in the chunk"),
						"must_exclude": stringArray("No term may appear in the chunk"),
						"any_of":       stringArray("At least one term must appear in the chunk"),
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexDocumentTool returns the tool definition for index_document
func indexDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_document",
		Description: "Add a document to the knowledge base, either a file by path or inline content",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .txt, .md or .html file; unchanged files are skipped",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Inline text content, used when path is not given",
				},
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Display name for inline content; its extension selects the format",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional title overriding the extracted one",
				},
			},
		},
	}
}

// indexDirectoryTool returns the tool definition for index_directory
func indexDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_directory",
		Description: "Index every supported file below a directory and drop documents whose files are gone",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory",
				},
			},
			Required: []string{"path"},
		},
	}
}

// deleteDocumentTool returns the tool definition for delete_document
func deleteDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_document",
		Description: "Remove a document and all of its chunks",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the document to delete",
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// listDocumentsTool returns the tool definition for list_documents
func listDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents in the knowledge base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"description": "Only documents in this processing state",
					"enum":        []string{"pending", "processing", "completed", "failed"},
				},
			},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Reload the keyword index from storage",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Knowledge base statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// listBlockedSourcesTool returns the tool definition for list_blocked_sources
func listBlockedSourcesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_blocked_sources",
		Description: "List watched files that stay out of the knowledge base because their document was deleted",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// reprocessDeletedTool returns the tool definition for reprocess_deleted
func reprocessDeletedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reprocess_deleted",
		Description: "Unblock deleted files and index them again if they still exist",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": stringArray("Absolute paths to unblock; omit to unblock every deleted file"),
			},
		},
	}
}

// watcherActivityTool returns the tool definition for watcher_activity
func watcherActivityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "watcher_activity",
		Description: "Recent ingest events from directory runs, the watcher and uploads, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"clear": map[string]interface{}{
					"type":        "boolean",
					"description": "Clear the events after returning them",
				},
			},
		},
	}
}
