// Package models contains domain types for dealdesk-engine.
package models

import (
	"time"
)

// ChatRole represents the role of a chat message sender.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// DefaultUserName is used when a session or escalation has no user.
const DefaultUserName = "Anonymous"

// ChatSession is a conversation with the question-answering assistant.
type ChatSession struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	UserName     string    `json:"user_name"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// ChatMessage is one turn in a session. Assistant messages carry the
// pipeline and routing metadata of the answer.
type ChatMessage struct {
	ID        int64                `json:"id"`
	SessionID string               `json:"session_id"`
	Role      ChatRole             `json:"role"`
	Content   string               `json:"content"`
	Metadata  *ChatMessageMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
}

// ChatMessageMetadata is stored with assistant messages.
type ChatMessageMetadata struct {
	GeneratedSQL      string           `json:"generated_sql,omitempty"`
	SQLResults        []map[string]any `json:"sql_results,omitempty"`
	ResultCount       *int             `json:"result_count,omitempty"`
	ConfidenceScore   float64          `json:"confidence_score"`
	ComplexityLevel   ComplexityLevel  `json:"complexity_level"`
	ComplexityFactors []string         `json:"complexity_factors,omitempty"`
	IsInScope         bool             `json:"is_in_scope"`
	NeedsEscalation   bool             `json:"needs_escalation"`
	EscalationKind    EscalationKind   `json:"escalation_kind,omitempty"`
	EscalationReason  string           `json:"escalation_reason,omitempty"`
}

// IsFromAssistant returns true if the message is from the assistant.
func (m *ChatMessage) IsFromAssistant() bool {
	return m.Role == ChatRoleAssistant
}
