package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/apperrors"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/repositories"
)

// Escalation list paging defaults.
const (
	DefaultEscalationListLimit = 50
	analyticsWindow            = 7 * 24 * time.Hour
)

// EscalateRequest describes a manual escalation.
type EscalateRequest struct {
	SourceType   models.EscalationSource `json:"source_type"`
	SourceID     int64                   `json:"source_id"`
	SessionID    string                  `json:"session_id,omitempty"`
	UserName     string                  `json:"user_name,omitempty"`
	QuestionText string                  `json:"question_text"`
	Reason       string                  `json:"reason,omitempty"`
}

// EscalationService manages the human review queue.
type EscalationService interface {
	// Escalate queues a question for human review. Missing source or text
	// yields apperrors.ErrInvalidInput.
	Escalate(ctx context.Context, req EscalateRequest) (*models.EscalatedQuestion, error)
	List(ctx context.Context, status *models.EscalationStatus, limit, offset int) (*models.EscalationPage, error)
	Get(ctx context.Context, id int64) (*models.EscalatedQuestion, error)
	Update(ctx context.Context, id int64, upd models.EscalationUpdate) (*models.EscalatedQuestion, error)
	// Analytics summarizes the queue; the recent count covers the last 7 days.
	Analytics(ctx context.Context) (*models.EscalationAnalytics, error)
}

type escalationService struct {
	repo   repositories.EscalationRepository
	logger *zap.Logger
	now    func() time.Time
}

var _ EscalationService = (*escalationService)(nil)

// NewEscalationService creates an escalation service.
func NewEscalationService(repo repositories.EscalationRepository, logger *zap.Logger) EscalationService {
	return &escalationService{
		repo:   repo,
		logger: logger.Named("escalation"),
		now:    time.Now,
	}
}

func (s *escalationService) Escalate(ctx context.Context, req EscalateRequest) (*models.EscalatedQuestion, error) {
	if req.SourceType == "" || req.SourceID == 0 || strings.TrimSpace(req.QuestionText) == "" {
		return nil, fmt.Errorf("%w: source_type, source_id, and question_text are required", apperrors.ErrInvalidInput)
	}
	if !models.IsValidEscalationSource(req.SourceType) {
		return nil, fmt.Errorf("%w: source_type must be %q or %q",
			apperrors.ErrInvalidInput, models.EscalationSourceChat, models.EscalationSourceForum)
	}

	q := &models.EscalatedQuestion{
		SourceType:       req.SourceType,
		SourceID:         req.SourceID,
		UserName:         strings.TrimSpace(req.UserName),
		QuestionText:     req.QuestionText,
		EscalationKind:   models.EscalationManual,
		EscalationReason: strings.TrimSpace(req.Reason),
		CreatedAt:        s.now(),
	}
	if q.UserName == "" {
		q.UserName = models.DefaultUserName
	}
	if q.EscalationReason == "" {
		q.EscalationReason = models.ReasonManualDefault
	}
	if req.SessionID != "" {
		sid := req.SessionID
		q.SessionID = &sid
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}

	s.logger.Info("Question escalated manually",
		zap.Int64("escalation_id", q.ID),
		zap.String("source_type", string(q.SourceType)),
		zap.Int64("source_id", q.SourceID))
	return q, nil
}

func (s *escalationService) List(ctx context.Context, status *models.EscalationStatus, limit, offset int) (*models.EscalationPage, error) {
	if status != nil && !models.IsValidEscalationStatus(*status) {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, *status)
	}
	if limit <= 0 {
		limit = DefaultEscalationListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	if items == nil {
		items = []*models.EscalatedQuestion{}
	}

	return &models.EscalationPage{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}, nil
}

func (s *escalationService) Get(ctx context.Context, id int64) (*models.EscalatedQuestion, error) {
	return s.repo.Get(ctx, id)
}

func (s *escalationService) Update(ctx context.Context, id int64, upd models.EscalationUpdate) (*models.EscalatedQuestion, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrInvalidInput)
	}
	if upd.Status != nil && !models.IsValidEscalationStatus(*upd.Status) {
		return nil, fmt.Errorf("%w: status must be one of pending, in_progress, resolved", apperrors.ErrInvalidInput)
	}

	q, err := s.repo.Update(ctx, id, upd, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escalation updated",
		zap.Int64("escalation_id", id),
		zap.String("status", string(q.Status)))
	return q, nil
}

func (s *escalationService) Analytics(ctx context.Context) (*models.EscalationAnalytics, error) {
	a, err := s.repo.Analytics(ctx, s.now().Add(-analyticsWindow))
	if err != nil {
		return nil, fmt.Errorf("escalation analytics: %w", err)
	}
	return a, nil
}
