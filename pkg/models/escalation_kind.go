package models

// EscalationKind classifies why an exchange is (or is not) handed to a human.
// Control flow branches on the kind; the accompanying reason string is for display.
type EscalationKind string

const (
	EscalationNone              EscalationKind = ""
	EscalationOracleUnavailable EscalationKind = "oracle_unavailable"
	EscalationOutOfScope        EscalationKind = "out_of_scope"
	EscalationGenerationFailure EscalationKind = "generation_failure"
	EscalationValidationFailure EscalationKind = "validation_failure"
	EscalationExecutionFailure  EscalationKind = "execution_failure"
	EscalationUnexpectedError   EscalationKind = "unexpected_error"
	EscalationManual            EscalationKind = "manual"
	EscalationProcessingError   EscalationKind = "processing_error"
	EscalationLowConfidence     EscalationKind = "low_confidence"
	EscalationComplexQuestion   EscalationKind = "complex_question"
	EscalationRoutingFailure    EscalationKind = "routing_failure"
)

// Pipeline escalation reasons.
const (
	ReasonOutOfScope        = "Out-of-scope: Question unrelated to database contents"
	ReasonGenerationFailure = "SQL generation failed"
	ReasonValidationFailure = "SQL validation failed"
	ReasonExecutionFailure  = "SQL execution failed"
	ReasonUnexpectedError   = "Unexpected error in LLM service"
)

// Routing escalation reasons.
const (
	ReasonManual          = "User requested human assistance"
	ReasonProcessingError = "Error occurred during processing"
	ReasonOutsideDomain   = "Question outside database domain"
	ReasonLowConfidence   = "Low confidence in automated response"
	ReasonComplexQuestion = "Complex question requiring expert review"
	ReasonRoutingFailure  = "Error during routing analysis"
)

// ReasonManualDefault is recorded when a manual escalation gives no reason.
const ReasonManualDefault = "Manual escalation requested by user"

// IsPipelineFailure reports whether the kind comes from a failed pipeline stage.
func (k EscalationKind) IsPipelineFailure() bool {
	switch k {
	case EscalationOutOfScope, EscalationGenerationFailure, EscalationValidationFailure,
		EscalationExecutionFailure, EscalationUnexpectedError:
		return true
	}
	return false
}
