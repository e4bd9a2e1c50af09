package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/apperrors"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
)

// topReasonsLimit bounds the reasons reported by Analytics.
const topReasonsLimit = 5

// EscalationRepository defines data access for the human review queue.
type EscalationRepository interface {
	// Create inserts q with status pending and fills in ID and CreatedAt.
	Create(ctx context.Context, q *models.EscalatedQuestion) error

	// Get returns apperrors.ErrNotFound for an unknown id.
	Get(ctx context.Context, id int64) (*models.EscalatedQuestion, error)

	// List returns a page of escalations, newest first, and the total matching count.
	List(ctx context.Context, status *models.EscalationStatus, limit, offset int) ([]*models.EscalatedQuestion, int, error)

	// Update applies the non-nil fields of upd and returns the updated row.
	Update(ctx context.Context, id int64, upd models.EscalationUpdate, at time.Time) (*models.EscalatedQuestion, error)

	// Analytics summarizes the queue; RecentCount counts rows created after since.
	Analytics(ctx context.Context, since time.Time) (*models.EscalationAnalytics, error)
}

type escalationRepository struct {
	store datasource.Store
}

var _ EscalationRepository = (*escalationRepository)(nil)

// NewEscalationRepository creates an escalation repository over store.
func NewEscalationRepository(store datasource.Store) EscalationRepository {
	return &escalationRepository{store: store}
}

const escalationColumns = `id, source_type, source_id, session_id, user_name, question_text,
	escalation_kind, escalation_reason, confidence_score, status, assigned_to,
	resolution_notes, created_at, resolved_at`

func (r *escalationRepository) Create(ctx context.Context, q *models.EscalatedQuestion) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	q.CreatedAt = q.CreatedAt.UTC()
	if q.Status == "" {
		q.Status = models.EscalationStatusPending
	}

	var kind, sessionID, confidence any
	if q.EscalationKind != models.EscalationNone {
		kind = string(q.EscalationKind)
	}
	if q.SessionID != nil {
		sessionID = *q.SessionID
	}
	if q.ConfidenceScore != nil {
		confidence = *q.ConfidenceScore
	}

	rows, err := r.store.Query(ctx, `
		INSERT INTO escalated_questions (
			source_type, source_id, session_id, user_name, question_text,
			escalation_kind, escalation_reason, confidence_score, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		string(q.SourceType), q.SourceID, sessionID, q.UserName, q.QuestionText,
		kind, q.EscalationReason, confidence, string(q.Status), q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert escalated question: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("insert escalated question: no id returned")
	}

	q.ID = row(rows[0]).asInt64("id")
	return nil
}

func (r *escalationRepository) Get(ctx context.Context, id int64) (*models.EscalatedQuestion, error) {
	rows, err := r.store.Query(ctx,
		`SELECT `+escalationColumns+` FROM escalated_questions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query escalated question: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return scanEscalation(row(rows[0])), nil
}

func (r *escalationRepository) List(ctx context.Context, status *models.EscalationStatus, limit, offset int) ([]*models.EscalatedQuestion, int, error) {
	where := ""
	var filter []any
	if status != nil {
		where = " WHERE status = ?"
		filter = append(filter, string(*status))
	}

	countRows, err := r.store.Query(ctx,
		`SELECT COUNT(*) AS total FROM escalated_questions`+where, filter...)
	if err != nil {
		return nil, 0, fmt.Errorf("count escalated questions: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = row(countRows[0]).asInt("total")
	}

	params := append(append([]any{}, filter...), limit, offset)
	rows, err := r.store.Query(ctx,
		`SELECT `+escalationColumns+` FROM escalated_questions`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		params...)
	if err != nil {
		return nil, 0, fmt.Errorf("list escalated questions: %w", err)
	}

	items := make([]*models.EscalatedQuestion, 0, len(rows))
	for _, raw := range rows {
		items = append(items, scanEscalation(row(raw)))
	}
	return items, total, nil
}

func (r *escalationRepository) Update(ctx context.Context, id int64, upd models.EscalationUpdate, at time.Time) (*models.EscalatedQuestion, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrInvalidInput)
	}

	var (
		sets   []string
		params []any
	)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		params = append(params, string(*upd.Status))
		if *upd.Status == models.EscalationStatusResolved {
			sets = append(sets, "resolved_at = ?")
			params = append(params, at.UTC())
		}
	}
	if upd.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		params = append(params, *upd.AssignedTo)
	}
	if upd.ResolutionNotes != nil {
		sets = append(sets, "resolution_notes = ?")
		params = append(params, *upd.ResolutionNotes)
	}
	params = append(params, id)

	res, err := r.store.Run(ctx,
		`UPDATE escalated_questions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		params...)
	if err != nil {
		return nil, fmt.Errorf("update escalated question: %w", err)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *escalationRepository) Analytics(ctx context.Context, since time.Time) (*models.EscalationAnalytics, error) {
	a := &models.EscalationAnalytics{
		ByStatus:   map[string]int{},
		BySource:   map[string]int{},
		TopReasons: []models.ReasonCount{},
	}

	totals, err := r.store.Query(ctx, `
		SELECT COUNT(*) AS total, AVG(confidence_score) AS avg_confidence
		FROM escalated_questions`)
	if err != nil {
		return nil, fmt.Errorf("escalation totals: %w", err)
	}
	if len(totals) > 0 {
		t := row(totals[0])
		a.Total = t.asInt("total")
		a.AverageConfidence = t.asFloatPtr("avg_confidence")
	}

	if err := r.countBy(ctx, "status", a.ByStatus); err != nil {
		return nil, err
	}
	if err := r.countBy(ctx, "source_type", a.BySource); err != nil {
		return nil, err
	}

	recent, err := r.store.Query(ctx,
		`SELECT COUNT(*) AS recent FROM escalated_questions WHERE created_at > ?`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("recent escalations: %w", err)
	}
	if len(recent) > 0 {
		a.RecentCount = row(recent[0]).asInt("recent")
	}

	reasons, err := r.store.Query(ctx, `
		SELECT escalation_reason, COUNT(*) AS reason_count
		FROM escalated_questions
		GROUP BY escalation_reason
		ORDER BY reason_count DESC, escalation_reason ASC
		LIMIT ?`, topReasonsLimit)
	if err != nil {
		return nil, fmt.Errorf("top escalation reasons: %w", err)
	}
	for _, raw := range reasons {
		rr := row(raw)
		a.TopReasons = append(a.TopReasons, models.ReasonCount{
			Reason: rr.asString("escalation_reason"),
			Count:  rr.asInt("reason_count"),
		})
	}

	return a, nil
}

// countBy fills dst with row counts grouped by column. column is always a
// literal from this file.
func (r *escalationRepository) countBy(ctx context.Context, column string, dst map[string]int) error {
	rows, err := r.store.Query(ctx, fmt.Sprintf(
		`SELECT %s AS bucket, COUNT(*) AS bucket_count FROM escalated_questions GROUP BY %s`,
		column, column))
	if err != nil {
		return fmt.Errorf("count escalations by %s: %w", column, err)
	}
	for _, raw := range rows {
		rr := row(raw)
		dst[rr.asString("bucket")] = rr.asInt("bucket_count")
	}
	return nil
}

func scanEscalation(r row) *models.EscalatedQuestion {
	return &models.EscalatedQuestion{
		ID:               r.asInt64("id"),
		SourceType:       models.EscalationSource(r.asString("source_type")),
		SourceID:         r.asInt64("source_id"),
		SessionID:        r.asStringPtr("session_id"),
		UserName:         r.asString("user_name"),
		QuestionText:     r.asString("question_text"),
		EscalationKind:   models.EscalationKind(r.asString("escalation_kind")),
		EscalationReason: r.asString("escalation_reason"),
		ConfidenceScore:  r.asFloatPtr("confidence_score"),
		Status:           models.EscalationStatus(r.asString("status")),
		AssignedTo:       r.asStringPtr("assigned_to"),
		ResolutionNotes:  r.asStringPtr("resolution_notes"),
		CreatedAt:        r.asTime("created_at"),
		ResolvedAt:       r.asTimePtr("resolved_at"),
	}
}
