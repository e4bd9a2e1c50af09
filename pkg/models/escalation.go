package models

import (
	"time"
)

// EscalationStatus is the review state of an escalated question.
type EscalationStatus string

const (
	EscalationStatusPending    EscalationStatus = "pending"
	EscalationStatusInProgress EscalationStatus = "in_progress"
	EscalationStatusResolved   EscalationStatus = "resolved"
)

// IsValidEscalationStatus checks if the given status is valid.
func IsValidEscalationStatus(s EscalationStatus) bool {
	switch s {
	case EscalationStatusPending, EscalationStatusInProgress, EscalationStatusResolved:
		return true
	}
	return false
}

// EscalationSource identifies where an escalated question came from.
type EscalationSource string

const (
	EscalationSourceChat  EscalationSource = "chat"
	EscalationSourceForum EscalationSource = "forum"
)

// IsValidEscalationSource checks if the given source is valid.
func IsValidEscalationSource(s EscalationSource) bool {
	return s == EscalationSourceChat || s == EscalationSourceForum
}

// EscalatedQuestion is a question queued for human review.
type EscalatedQuestion struct {
	ID               int64            `json:"id"`
	SourceType       EscalationSource `json:"source_type"`
	SourceID         int64            `json:"source_id"`
	SessionID        *string          `json:"session_id,omitempty"`
	UserName         string           `json:"user_name"`
	QuestionText     string           `json:"question_text"`
	EscalationKind   EscalationKind   `json:"escalation_kind,omitempty"`
	EscalationReason string           `json:"escalation_reason"`
	ConfidenceScore  *float64         `json:"confidence_score,omitempty"`
	Status           EscalationStatus `json:"status"`
	AssignedTo       *string          `json:"assigned_to,omitempty"`
	ResolutionNotes  *string          `json:"resolution_notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
}

// EscalationUpdate holds the fields to change on an escalated question.
// Nil fields are left unchanged.
type EscalationUpdate struct {
	Status          *EscalationStatus `json:"status,omitempty"`
	AssignedTo      *string           `json:"assigned_to,omitempty"`
	ResolutionNotes *string           `json:"resolution_notes,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u EscalationUpdate) IsEmpty() bool {
	return u.Status == nil && u.AssignedTo == nil && u.ResolutionNotes == nil
}

// EscalationPage is one page of escalated questions.
type EscalationPage struct {
	Items   []*EscalatedQuestion `json:"escalated_questions"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	HasMore bool                 `json:"has_more"`
}

// ReasonCount is an escalation reason with its frequency.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// EscalationAnalytics summarizes the escalation queue.
type EscalationAnalytics struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"by_status"`
	BySource          map[string]int `json:"by_source"`
	RecentCount       int            `json:"recent_count"`
	AverageConfidence *float64       `json:"average_confidence"`
	TopReasons        []ReasonCount  `json:"top_reasons"`
}
