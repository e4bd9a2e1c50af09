package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func decodeEvent(t *testing.T, fields map[string]any) SecurityEvent {
	t.Helper()
	eventJSON, ok := fields["event_json"].(string)
	require.True(t, ok, "event_json should be a string")

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(eventJSON), &event), "event_json should be valid JSON")
	return event
}

func TestLogInjectionAttempt(t *testing.T) {
	tests := []struct {
		name        string
		ctx         context.Context
		wantSession string
		wantIP      string
	}{
		{
			name:        "with request context",
			ctx:         WithClientIP(WithSessionID(context.Background(), "sess_abc"), "192.168.1.100"),
			wantSession: "sess_abc",
			wantIP:      "192.168.1.100",
		},
		{
			name: "without request context",
			ctx:  context.Background(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, recorded := setupTestLogger(t)
			auditor := NewSecurityAuditor(logger)

			auditor.LogInjectionAttempt(tt.ctx, SQLInjectionDetails{
				ParamName:   "$1",
				ParamValue:  "'; DROP TABLE users--",
				Fingerprint: "s&1c",
			})

			logs := recorded.All()
			require.Len(t, logs, 1)

			entry := logs[0]
			assert.Equal(t, zapcore.ErrorLevel, entry.Level)
			assert.Equal(t, "SQL injection attempt detected", entry.Message)

			fields := entry.ContextMap()
			assert.Equal(t, tt.wantSession, fields["session_id"])
			assert.Equal(t, tt.wantIP, fields["client_ip"])
			assert.Equal(t, "$1", fields["param_name"])
			assert.Equal(t, "s&1c", fields["fingerprint"])
			assert.Equal(t, "critical", fields["severity"])

			event := decodeEvent(t, fields)
			assert.Equal(t, EventSQLInjectionAttempt, event.EventType)
			assert.Equal(t, tt.wantSession, event.SessionID)
			assert.NotEmpty(t, event.EventID)

			details, ok := event.Details.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "'; DROP TABLE users--", details["param_value"])
		})
	}
}

func TestLogInjectionAttempt_TruncatesLongValues(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionAttempt(context.Background(), SQLInjectionDetails{
		ParamName:   "$1",
		ParamValue:  strings.Repeat("x", 500),
		Fingerprint: "s",
	})

	event := decodeEvent(t, recorded.All()[0].ContextMap())
	details := event.Details.(map[string]any)
	assert.Less(t, len(details["param_value"].(string)), 500)
}

func TestLogUnsafeSQL(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	ctx := WithSessionID(context.Background(), "sess_1")
	auditor.LogUnsafeSQL(ctx, UnsafeSQLDetails{
		Question: "delete everything",
		SQL:      "DELETE FROM deals",
		Reason:   "Only SELECT queries are allowed",
	})

	logs := recorded.All()
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "Unsafe generated SQL rejected", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "Only SELECT queries are allowed", fields["reason"])
	assert.Equal(t, "warning", fields["severity"])

	event := decodeEvent(t, fields)
	assert.Equal(t, EventUnsafeSQLRejected, event.EventType)
	assert.Equal(t, "sess_1", event.SessionID)
}

func TestLogQueryExecution(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogQueryExecution(context.Background(), "SELECT name FROM companies", 3)

	logs := recorded.All()
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "Query executed", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, int64(3), fields["row_count"])
	assert.Equal(t, "info", fields["severity"])

	event := decodeEvent(t, fields)
	assert.Equal(t, EventQueryExecution, event.EventType)
	details := event.Details.(map[string]any)
	assert.Equal(t, "SELECT name FROM companies", details["sql"])
}

func TestLoggerNamespace(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogQueryExecution(context.Background(), "SELECT 1", 1)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "security_audit", logs[0].LoggerName)
}
