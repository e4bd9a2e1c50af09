package models

// ComplexityLevel is the three-way classification of a query's structure.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// Complexity is a scored structural assessment of a SQL statement.
type Complexity struct {
	Level   ComplexityLevel `json:"level"`
	Score   int             `json:"score"`
	Factors []string        `json:"factors"`
}

// EscalationDecision is the outcome of the escalation rule chain.
type EscalationDecision struct {
	Escalate bool           `json:"escalate"`
	Kind     EscalationKind `json:"kind,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// RoutingAnalysis combines confidence, complexity and scope into an
// escalation decision. A fresh instance is produced per exchange.
type RoutingAnalysis struct {
	ConfidenceScore  float64        `json:"confidence_score"`
	Complexity       Complexity     `json:"complexity"`
	IsInScope        bool           `json:"is_in_scope"`
	NeedsEscalation  bool           `json:"needs_escalation"`
	EscalationKind   EscalationKind `json:"escalation_kind,omitempty"`
	EscalationReason string         `json:"escalation_reason,omitempty"`
}

// RoutingRequest holds the inputs of a routing analysis. ManualEscalation and
// HadError come from the caller, not from the pipeline outcome.
type RoutingRequest struct {
	Question         string
	SQL              string
	Results          []map[string]any
	IsInScope        bool
	ManualEscalation bool
	HadError         bool
}
