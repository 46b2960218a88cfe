package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/activity"
	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/corpus"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

// ServerName is the MCP server name
const ServerName = "pdfkb-search"

// Service is the part of *app.App the tools drive
type Service interface {
	RunSearch(ctx context.Context, req app.SearchRequest) (*types.SearchResponse, error)
	IngestText(ctx context.Context, req indexer.IngestRequest) (*indexer.Result, error)
	IngestFile(ctx context.Context, path string) (*indexer.Result, error)
	IndexDirectory(ctx context.Context, dir string) (*indexer.Statistics, error)
	DeleteDocument(ctx context.Context, id string) ([]string, error)
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	BlockedSources(ctx context.Context) ([]*types.BlockedSource, error)
	ReprocessDeleted(ctx context.Context, paths []string) ([]indexer.ReprocessResult, error)
	Activity() activity.Summary
	ClearActivity()
	RebuildIndex(ctx context.Context) (corpus.IndexStats, error)
	Status(ctx context.Context) (*app.Status, error)
}

// Server wraps the MCP server with the knowledge base
type Server struct {
	mcp    *server.MCPServer
	svc    Service
	logger *zap.Logger
}

// NewServer creates the MCP server and registers every tool
func NewServer(svc Service, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery()),
		svc:    svc,
		logger: logger,
	}
	s.mcp.AddTools(s.tools()...)
	return s
}

// tools pairs every tool definition with its handler
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: searchDocumentsTool(), Handler: s.handleSearchDocuments},
		{Tool: indexDocumentTool(), Handler: s.handleIndexDocument},
		{Tool: indexDirectoryTool(), Handler: s.handleIndexDirectory},
		{Tool: deleteDocumentTool(), Handler: s.handleDeleteDocument},
		{Tool: listDocumentsTool(), Handler: s.handleListDocuments},
		{Tool: rebuildIndexTool(), Handler: s.handleRebuildIndex},
		{Tool: getStatusTool(), Handler: s.handleGetStatus},
		{Tool: listBlockedSourcesTool(), Handler: s.handleListBlockedSources},
		{Tool: reprocessDeletedTool(), Handler: s.handleReprocessDeleted},
		{Tool: watcherActivityTool(), Handler: s.handleWatcherActivity},
	}
}

// Serve speaks MCP over stdin/stdout until ctx is done or stdin closes.
// Protocol errors are logged; stdout carries nothing but protocol messages.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger.Named("stdio")))

	s.logger.Info("mcp server ready on stdio", zap.String("name", ServerName))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
