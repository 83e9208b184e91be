package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/indexer"
	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/storage"
)

// Asker answers a question end to end.
type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (*rag.AskResponse, error)
}

// Searcher runs a raw retrieval.
type Searcher interface {
	Search(ctx context.Context, query, department string, limit int) ([]storage.Hit, error)
}

// Lister lists indexed documents.
type Lister interface {
	Documents(ctx context.Context) ([]indexer.Document, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Asker    Asker
	Searcher Searcher
	Lister   Lister
	Version  string
	Logger   *zap.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mcp"))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "znatok",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the company knowledge base. Returns the answer and the documents it is based on.",
	}, makeAskHandler(cfg.Asker, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over indexed company documents. Returns ranked passages with their source.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all indexed documents with department and chunk count.",
	}, makeListHandler(cfg.Lister))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
