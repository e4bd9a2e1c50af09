// Package mcp exposes the question-answering pipeline over the Model Context
// Protocol.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/middleware"
)

// ServerName identifies the engine to MCP clients during initialization.
const ServerName = "dealdesk-engine"

// Server owns the MCP tool registry and its HTTP transport.
type Server struct {
	mcp       *server.MCPServer
	transport *server.StreamableHTTPServer
	logger    *zap.Logger
}

// NewServer creates an MCP server whose tool calls are audited through a
// ToolCallLogger. Handler panics are recovered and reported to the client as
// errors.
func NewServer(version string, logger *zap.Logger) *Server {
	calls := NewToolCallLogger(logger)
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(calls.Hooks()),
		server.WithRecovery(),
	)

	return &Server{
		mcp: mcpServer,
		// Every request carries its own question; no session state is kept
		// between HTTP calls.
		transport: server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true)),
		logger:    logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the HTTP transport wrapped in request logging. The caller
// mounts it at /mcp.
func (s *Server) Handler() http.Handler {
	return middleware.MCPRequestLogger(s.logger)(s.transport)
}
