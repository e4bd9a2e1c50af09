package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewServer(t *testing.T) {
	s := NewServer("1.0.0", zap.NewNop())

	require.NotNil(t, s)
	assert.Same(t, s.mcp, s.MCP())
	assert.NotNil(t, s.transport)
	assert.NotNil(t, s.Handler())
}

func TestServer_HandlerServesInitialize(t *testing.T) {
	s := NewServer("1.2.3", zap.NewNop())

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"dealdesk-engine"`)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
}

func TestServer_ToolCallsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewServer("1.0.0", zap.New(core))

	s.MCP().AddTool(mcp.NewTool("echo", mcp.WithString("question")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})

	s.MCP().HandleMessage(context.Background(), []byte(
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"question":"How many deals closed?"}}}`))

	entries := logs.FilterMessage("MCP tool call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "echo", entries[0].ContextMap()["tool"])
	assert.Equal(t, "How many deals closed?", entries[0].ContextMap()["question"])
}

func TestServer_ToolErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewServer("1.0.0", zap.New(core))

	s.MCP().AddTool(mcp.NewTool("broken"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("database unreachable")
	})

	s.MCP().HandleMessage(context.Background(), []byte(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"broken","arguments":{}}}`))

	entries := logs.FilterMessage("MCP tool call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["tool"])
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestServer_ToolErrorResultIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewServer("1.0.0", zap.New(core))

	s.MCP().AddTool(mcp.NewTool("reject"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("bad question"), nil
	})

	s.MCP().HandleMessage(context.Background(), []byte(
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"reject","arguments":{}}}`))

	assert.Equal(t, 1, logs.FilterMessage("MCP tool call rejected").Len())
}
