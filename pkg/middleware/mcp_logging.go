package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
)

// MCPRequestLogger returns middleware that logs JSON-RPC traffic on the MCP
// endpoint. Tool outcomes are also logged by the MCP server hooks; this layer
// adds protocol errors that never reach a tool handler. Question arguments
// are truncated and credential-looking arguments are redacted. A nil logger
// disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		logger = logger.Named("mcp-http")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				logger.Warn("Failed to read MCP request body", zap.String("error", logging.SanitizeError(err)))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			call, ok := decodeRPCCall(body)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debug("MCP request", call.fields()...)

			capture := &bodyCapture{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(capture, r)
			logRPCOutcome(logger, call, capture.buf.Bytes(), time.Since(start))
		})
	}
}

// rpcCall is the part of a JSON-RPC request worth logging.
type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

// decodeRPCCall reports false for bodies that are not a single JSON-RPC
// request, such as batches or GET stream requests.
func decodeRPCCall(body []byte) (rpcCall, bool) {
	var call rpcCall
	if err := json.Unmarshal(body, &call); err != nil || call.Method == "" {
		return rpcCall{}, false
	}
	return call, true
}

func (c rpcCall) fields() []zap.Field {
	fields := []zap.Field{zap.String("method", c.Method)}
	if c.Params.Name != "" {
		fields = append(fields,
			zap.String("tool", c.Params.Name),
			zap.Any("arguments", redactArguments(c.Params.Arguments)))
	}
	return fields
}

type rpcOutcome struct {
	Result *struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func logRPCOutcome(logger *zap.Logger, call rpcCall, body []byte, elapsed time.Duration) {
	var out rpcOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		// Notifications get an empty 202 and streamed responses are SSE.
		return
	}

	fields := []zap.Field{
		zap.String("method", call.Method),
		zap.String("tool", call.Params.Name),
		zap.Duration("duration", elapsed),
	}
	switch {
	case out.Error != nil:
		logger.Warn("MCP request failed", append(fields,
			zap.Int("code", out.Error.Code),
			zap.String("error", out.Error.Message))...)
	case out.Result != nil && out.Result.IsError:
		logger.Debug("MCP tool reported an error", fields...)
	default:
		logger.Debug("MCP request completed", fields...)
	}
}

// bodyCapture keeps a copy of everything written to the client.
type bodyCapture struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Flush keeps SSE responses streaming through the capture.
func (c *bodyCapture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var sensitiveArgumentKeys = []string{"password", "secret", "token", "key", "credential"}

func isSensitiveArgument(name string) bool {
	name = strings.ToLower(name)
	for _, k := range sensitiveArgumentKeys {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// redactArguments masks sensitive arguments and truncates long strings.
func redactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	out := make(map[string]any, len(args))
	for name, v := range args {
		switch s, isString := v.(string); {
		case isSensitiveArgument(name):
			out[name] = logging.RedactedText
		case isString:
			out[name] = logging.TruncateString(s, logging.MaxQuestionLogLength)
		default:
			out[name] = v
		}
	}
	return out
}
