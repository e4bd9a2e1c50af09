package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/apperrors"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
)

// ChatRepository defines data access for chat sessions and their messages.
type ChatRepository interface {
	// CreateSession inserts a new session. StartedAt and LastActivity are set to at.
	CreateSession(ctx context.Context, sessionID, userName string, at time.Time) (*models.ChatSession, error)

	// GetSession returns apperrors.ErrNotFound for an unknown session.
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)

	// ListSessions returns sessions with message counts, most recently active first.
	ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error)

	// TouchSession sets last_activity.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// AddMessage inserts a message and fills in its ID.
	AddMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListMessages returns a session's messages oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

type chatRepository struct {
	store datasource.Store
}

var _ ChatRepository = (*chatRepository)(nil)

// NewChatRepository creates a chat repository over store.
func NewChatRepository(store datasource.Store) ChatRepository {
	return &chatRepository{store: store}
}

func (r *chatRepository) CreateSession(ctx context.Context, sessionID, userName string, at time.Time) (*models.ChatSession, error) {
	at = at.UTC()
	rows, err := r.store.Query(ctx, `
		INSERT INTO chat_sessions (session_id, user_name, started_at, last_activity)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		sessionID, userName, at, at)
	if err != nil {
		return nil, fmt.Errorf("insert chat session: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert chat session: no id returned")
	}

	return &models.ChatSession{
		ID:           row(rows[0]).asInt64("id"),
		SessionID:    sessionID,
		UserName:     userName,
		StartedAt:    at,
		LastActivity: at,
	}, nil
}

func (r *chatRepository) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, session_id, user_name, started_at, last_activity
		FROM chat_sessions
		WHERE session_id = ?`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat session: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return scanSession(rows[0]), nil
}

func (r *chatRepository) ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error) {
	rows, err := r.store.Query(ctx, `
		SELECT cs.id, cs.session_id, cs.user_name, cs.started_at, cs.last_activity,
		       COUNT(cm.id) AS message_count
		FROM chat_sessions cs
		LEFT JOIN chat_messages cm ON cm.session_id = cs.session_id
		GROUP BY cs.id, cs.session_id, cs.user_name, cs.started_at, cs.last_activity
		ORDER BY cs.last_activity DESC, cs.id DESC
		LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}

	sessions := make([]*models.ChatSession, 0, len(rows))
	for _, raw := range rows {
		s := scanSession(raw)
		s.MessageCount = row(raw).asInt("message_count")
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *chatRepository) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := r.store.Run(ctx,
		`UPDATE chat_sessions SET last_activity = ? WHERE session_id = ?`,
		at.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *chatRepository) AddMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	var (
		generatedSQL, sqlResults, complexityLevel, complexityFactors any
		escalationKind, escalationReason, resultCount                any
		confidence, inScope                                          any
		needsEscalation                                              bool
	)

	if md := msg.Metadata; md != nil {
		if md.GeneratedSQL != "" {
			generatedSQL = md.GeneratedSQL
		}
		if md.SQLResults != nil {
			encoded, err := encodeJSON(md.SQLResults)
			if err != nil {
				return fmt.Errorf("encode sql results: %w", err)
			}
			sqlResults = encoded
		}
		if md.ResultCount != nil {
			resultCount = *md.ResultCount
		}
		confidence = md.ConfidenceScore
		complexityLevel = string(md.ComplexityLevel)
		if len(md.ComplexityFactors) > 0 {
			encoded, err := encodeJSON(md.ComplexityFactors)
			if err != nil {
				return fmt.Errorf("encode complexity factors: %w", err)
			}
			complexityFactors = encoded
		}
		inScope = md.IsInScope
		needsEscalation = md.NeedsEscalation
		if md.EscalationKind != models.EscalationNone {
			escalationKind = string(md.EscalationKind)
		}
		if md.EscalationReason != "" {
			escalationReason = md.EscalationReason
		}
	}

	rows, err := r.store.Query(ctx, `
		INSERT INTO chat_messages (
			session_id, role, content, generated_sql, sql_results, result_count,
			confidence_score, complexity_level, complexity_factors, is_in_scope,
			needs_escalation, escalation_kind, escalation_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		msg.SessionID, string(msg.Role), msg.Content, generatedSQL, sqlResults, resultCount,
		confidence, complexityLevel, complexityFactors, inScope,
		needsEscalation, escalationKind, escalationReason, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("insert chat message: no id returned")
	}

	msg.ID = row(rows[0]).asInt64("id")
	return nil
}

func (r *chatRepository) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, session_id, role, content, generated_sql, sql_results, result_count,
		       confidence_score, complexity_level, complexity_factors, is_in_scope,
		       needs_escalation, escalation_kind, escalation_reason, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}

	messages := make([]*models.ChatMessage, 0, len(rows))
	for _, raw := range rows {
		msg, err := scanMessage(row(raw))
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func scanSession(raw map[string]any) *models.ChatSession {
	r := row(raw)
	return &models.ChatSession{
		ID:           r.asInt64("id"),
		SessionID:    r.asString("session_id"),
		UserName:     r.asString("user_name"),
		StartedAt:    r.asTime("started_at"),
		LastActivity: r.asTime("last_activity"),
	}
}

func scanMessage(r row) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:        r.asInt64("id"),
		SessionID: r.asString("session_id"),
		Role:      models.ChatRole(r.asString("role")),
		Content:   r.asString("content"),
		CreatedAt: r.asTime("created_at"),
	}
	if msg.Role != models.ChatRoleAssistant {
		return msg, nil
	}

	md := &models.ChatMessageMetadata{
		GeneratedSQL:     r.asString("generated_sql"),
		ResultCount:      r.asIntPtr("result_count"),
		ComplexityLevel:  models.ComplexityLevel(r.asString("complexity_level")),
		IsInScope:        r.asBool("is_in_scope"),
		NeedsEscalation:  r.asBool("needs_escalation"),
		EscalationKind:   models.EscalationKind(r.asString("escalation_kind")),
		EscalationReason: r.asString("escalation_reason"),
	}
	if c := r.asFloatPtr("confidence_score"); c != nil {
		md.ConfidenceScore = *c
	}
	if err := r.decodeJSON("sql_results", &md.SQLResults); err != nil {
		return nil, err
	}
	if err := r.decodeJSON("complexity_factors", &md.ComplexityFactors); err != nil {
		return nil, err
	}
	msg.Metadata = md
	return msg, nil
}
