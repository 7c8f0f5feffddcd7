package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/vectorkb/internal/pgvector"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
	store  *pgvector.Store
}

// Config holds server dependencies.
type Config struct {
	// Store is the vector store backing every tool.
	Store *pgvector.Store
	// Distance is the configured metric, surfaced through get_status.
	Distance string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "vectorkb-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base semantically. Returns ranked documents with content, metadata, and similarity scores.",
	}, makeSearchHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Retrieve a specific document by name. Returns full content and metadata.",
	}, makeGetHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all document names stored in the knowledge base collection.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the current status of the knowledge base collection including document count, distance metric, and whether the collection has been provisioned.",
	}, makeStatusHandler(cfg.Store, cfg.Distance))

	return &Server{
		server: server,
		store:  cfg.Store,
	}
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
