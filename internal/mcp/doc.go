// Package mcp implements the Model Context Protocol (MCP) server for the
// knowledge base.
//
// The server exposes ten tools to AI assistants:
//   - search_documents: hybrid, semantic or keyword search with filters
//   - index_document: add a file by path or inline content
//   - index_directory: index every supported file below a directory
//   - delete_document: remove a document and its chunks
//   - list_documents: list documents, optionally by status
//   - rebuild_index: reload the keyword index from storage
//   - get_status: statistics and health
//   - list_blocked_sources: deleted files that ingestion skips
//   - reprocess_deleted: unblock deleted files and index them again
//   - watcher_activity: recent ingest events, optionally clearing them
//
// MCP is JSON-RPC 2.0 over stdio. Logs go to stderr because stdout carries
// the protocol:
//
//	pdfkb serve
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "quarterly revenue",
//	    "top_k": 5,
//	    "search_mode": "hybrid",
//	    "semantic_weight": 0.6,
//	    "filters": {
//	      "must_exclude": ["draft"],
//	      "date_from": "2024-01-01"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "total_results": 1,
//	  "search_mode": "hybrid",
//	  "requested_mode": "hybrid",
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.91,
//	      "semantic_score": 0.83,
//	      "keyword_score": 1,
//	      "chunk_id": "chunk_5d41402a_0003_9a0364b9e99b",
//	      "document_id": "3f2c...",
//	      "content": "Quarterly revenue grew ...",
//	      "metadata": {"source": "report.pdf", "page_number": 2, "chunk_index": 3}
//	    }
//	  ]
//	}
//
// A hybrid query that loses one scorer reports "degraded": true, the reason,
// and the mode that actually ran.
//
// # Error Handling
//
// Handlers return *MCPError values with JSON-RPC codes:
//   - -32602: invalid params (bad mode, top_k, dates, paths, empty content)
//   - -32603: internal error
//   - -32002: indexing in progress
//   - -32003: document not found
//   - -32004: empty query, or no searchable terms in keyword mode
//   - -32005: search unavailable
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "pdfkb": {
//	      "command": "/usr/local/bin/pdfkb",
//	      "args": ["serve", "--watch", "/path/to/library"],
//	      "env": {"OPENAI_API_KEY": "..."}
//	    }
//	  }
//	}
package mcp
