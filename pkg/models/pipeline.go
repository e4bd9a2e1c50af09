package models

// PipelineOutcome is the result of processing one question. It is the only
// artifact handed to the persistence layer.
type PipelineOutcome struct {
	Success  bool             `json:"success"`
	Content  string           `json:"content"`
	Metadata PipelineMetadata `json:"metadata"`
}

// PipelineMetadata carries the intermediate products of the pipeline.
// GeneratedSQL is kept even when validation rejects it, for human audit.
type PipelineMetadata struct {
	GeneratedSQL     string           `json:"generated_sql,omitempty"`
	SQLResults       []map[string]any `json:"sql_results,omitempty"`
	ResultCount      *int             `json:"result_count,omitempty"`
	IsInScope        bool             `json:"is_in_scope"`
	NeedsEscalation  bool             `json:"needs_escalation"`
	EscalationKind   EscalationKind   `json:"escalation_kind,omitempty"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	Error            string           `json:"error,omitempty"`
}
