// Package audit provides security audit logging for SIEM consumption.
// Security-relevant events around generated SQL are logged as structured
// JSON under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a bound parameter.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventUnsafeSQLRejected is logged when generated SQL fails read-only validation.
	EventUnsafeSQLRejected SecurityEventType = "unsafe_sql_rejected"
	// EventQueryExecution is logged for every executed generated query.
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	EventID   uuid.UUID         `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	SessionID string            `json:"session_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged parameter.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint
}

// UnsafeSQLDetails describes generated SQL that was refused.
type UnsafeSQLDetails struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Reason   string `json:"reason"`
}

type contextKey string

const (
	sessionIDKey contextKey = "audit_session_id"
	clientIPKey  contextKey = "audit_client_ip"
)

// WithSessionID tags ctx with the chat session the request belongs to.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithClientIP tags ctx with the caller's address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

func (a *SecurityAuditor) newEvent(ctx context.Context, t SecurityEventType, severity string, details any) SecurityEvent {
	return SecurityEvent{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: t,
		SessionID: stringFromContext(ctx, sessionIDKey),
		ClientIP:  stringFromContext(ctx, clientIPKey),
		Details:   details,
		Severity:  severity,
	}
}

// LogInjectionAttempt records a parameter flagged by libinjection.
// Logged at ERROR level with "critical" severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details SQLInjectionDetails) {
	details.ParamValue = logging.TruncateString(details.ParamValue, logging.MaxQueryLogLength)
	event := a.newEvent(ctx, EventSQLInjectionAttempt, "critical", details)

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("session_id", event.SessionID),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}

// LogUnsafeSQL records generated SQL that was refused before execution.
// These are usually model mistakes rather than attacks, so WARN.
func (a *SecurityAuditor) LogUnsafeSQL(ctx context.Context, details UnsafeSQLDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	event := a.newEvent(ctx, EventUnsafeSQLRejected, "warning", details)

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Unsafe generated SQL rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("session_id", event.SessionID),
		zap.String("reason", details.Reason),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records an executed generated query.
// Note: this can generate high log volume in production.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, sqlText string, rowCount int) {
	event := a.newEvent(ctx, EventQueryExecution, "info", map[string]any{
		"sql":       logging.SanitizeQuery(sqlText),
		"row_count": rowCount,
	})

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Query executed",
		zap.String("event_json", string(eventJSON)),
		zap.String("session_id", event.SessionID),
		zap.Int("row_count", rowCount),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)
}
