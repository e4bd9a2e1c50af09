package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/apperrors"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/repositories"
)

// DefaultSessionListLimit is used when ListSessions is called without a limit.
const DefaultSessionListLimit = 20

// SessionIDPrefix prefixes every generated chat session id.
const SessionIDPrefix = "sess_"

// ChatSessionDetail is a session with its messages, oldest first.
type ChatSessionDetail struct {
	Session  *models.ChatSession   `json:"session"`
	Messages []*models.ChatMessage `json:"messages"`
}

// ChatReply is the result of sending one message.
type ChatReply struct {
	// Success is false when the pipeline ended in a failure outcome. The
	// reply content is still a user-facing message.
	Success      bool                    `json:"success"`
	Message      *models.ChatMessage     `json:"message"`
	Routing      *models.RoutingAnalysis `json:"routing"`
	EscalationID *int64                  `json:"escalation_id,omitempty"`
}

// ChatService runs questions from chat sessions through the pipeline and the
// routing engine and records the exchange.
type ChatService interface {
	CreateSession(ctx context.Context, userName string) (*models.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*ChatSessionDetail, error)
	ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error)

	// SendMessage returns apperrors.ErrInvalidInput for a blank message and
	// apperrors.ErrNotFound for an unknown session.
	SendMessage(ctx context.Context, sessionID, message string) (*ChatReply, error)

	// RecordQuestion stores a user message without answering it. It is used
	// when a question goes straight to a human.
	RecordQuestion(ctx context.Context, sessionID, message string) (*models.ChatMessage, error)
}

type chatService struct {
	chatRepo       repositories.ChatRepository
	escalationRepo repositories.EscalationRepository
	pipeline       QueryPipeline
	routing        RoutingService
	logger         *zap.Logger
	now            func() time.Time
}

var _ ChatService = (*chatService)(nil)

// NewChatService creates a chat service.
func NewChatService(
	chatRepo repositories.ChatRepository,
	escalationRepo repositories.EscalationRepository,
	pipeline QueryPipeline,
	routing RoutingService,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		chatRepo:       chatRepo,
		escalationRepo: escalationRepo,
		pipeline:       pipeline,
		routing:        routing,
		logger:         logger.Named("chat"),
		now:            time.Now,
	}
}

func (s *chatService) CreateSession(ctx context.Context, userName string) (*models.ChatSession, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		userName = models.DefaultUserName
	}

	session, err := s.chatRepo.CreateSession(ctx, SessionIDPrefix+uuid.NewString(), userName, s.now())
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}

	s.logger.Info("Chat session created",
		zap.String("session_id", session.SessionID),
		zap.String("user_name", session.UserName))
	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, sessionID string) (*ChatSessionDetail, error) {
	session, err := s.chatRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	session.MessageCount = len(messages)
	return &ChatSessionDetail{Session: session, Messages: messages}, nil
}

func (s *chatService) ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error) {
	if limit <= 0 {
		limit = DefaultSessionListLimit
	}
	return s.chatRepo.ListSessions(ctx, limit)
}

func (s *chatService) SendMessage(ctx context.Context, sessionID, message string) (*ChatReply, error) {
	session, _, err := s.storeUserMessage(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	ctx = audit.WithSessionID(ctx, sessionID)

	outcome := s.pipeline.ProcessQuestion(ctx, message)

	req := models.RoutingRequest{
		Question:  message,
		IsInScope: outcome.Metadata.IsInScope,
		HadError:  !outcome.Success,
	}
	if outcome.Success {
		req.SQL = outcome.Metadata.GeneratedSQL
		req.Results = outcome.Metadata.SQLResults
	}
	routing := s.routing.AnalyzeRouting(ctx, req)

	kind, reason := escalationCause(outcome, routing)

	assistantMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.ChatRoleAssistant,
		Content:   outcome.Content,
		CreatedAt: s.now(),
		Metadata: &models.ChatMessageMetadata{
			GeneratedSQL:      outcome.Metadata.GeneratedSQL,
			SQLResults:        outcome.Metadata.SQLResults,
			ResultCount:       outcome.Metadata.ResultCount,
			ConfidenceScore:   routing.ConfidenceScore,
			ComplexityLevel:   routing.Complexity.Level,
			ComplexityFactors: routing.Complexity.Factors,
			IsInScope:         routing.IsInScope,
			NeedsEscalation:   routing.NeedsEscalation,
			EscalationKind:    kind,
			EscalationReason:  reason,
		},
	}
	if err := s.chatRepo.AddMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	if err := s.chatRepo.TouchSession(ctx, sessionID, s.now()); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	reply := &ChatReply{Success: outcome.Success, Message: assistantMsg, Routing: routing}

	if routing.NeedsEscalation {
		confidence := routing.ConfidenceScore
		sid := sessionID
		escalation := &models.EscalatedQuestion{
			SourceType:       models.EscalationSourceChat,
			SourceID:         assistantMsg.ID,
			SessionID:        &sid,
			UserName:         session.UserName,
			QuestionText:     message,
			EscalationKind:   kind,
			EscalationReason: reason,
			ConfidenceScore:  &confidence,
			CreatedAt:        s.now(),
		}
		if err := s.escalationRepo.Create(ctx, escalation); err != nil {
			return nil, fmt.Errorf("create escalation: %w", err)
		}
		reply.EscalationID = &escalation.ID

		s.logger.Info("Question escalated",
			zap.String("session_id", sessionID),
			zap.Int64("escalation_id", escalation.ID),
			zap.String("kind", string(kind)))
	}

	return reply, nil
}

func (s *chatService) RecordQuestion(ctx context.Context, sessionID, message string) (*models.ChatMessage, error) {
	_, msg, err := s.storeUserMessage(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	if err := s.chatRepo.TouchSession(ctx, sessionID, s.now()); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return msg, nil
}

// storeUserMessage validates the message, resolves the session and persists
// the user turn.
func (s *chatService) storeUserMessage(ctx context.Context, sessionID, message string) (*models.ChatSession, *models.ChatMessage, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil, fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}

	session, err := s.chatRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	msg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.ChatRoleUser,
		Content:   message,
		CreatedAt: s.now(),
	}
	if err := s.chatRepo.AddMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("store user message: %w", err)
	}
	return session, msg, nil
}

// escalationCause prefers the pipeline's specific failure over the generic
// processing-error reason routing reports for any failed outcome.
func escalationCause(outcome *models.PipelineOutcome, routing *models.RoutingAnalysis) (models.EscalationKind, string) {
	if !routing.NeedsEscalation {
		return models.EscalationNone, ""
	}
	md := outcome.Metadata
	if md.EscalationKind.IsPipelineFailure() && md.EscalationReason != "" {
		return md.EscalationKind, md.EscalationReason
	}
	return routing.EscalationKind, routing.EscalationReason
}
