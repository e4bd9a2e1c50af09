package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := req.GetArguments()[key].(string)
	return val
}

// getOptionalFloat extracts an optional number argument from the request.
// JSON numbers decode as float64.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := req.GetArguments()[key].(float64)
	return val, ok
}
