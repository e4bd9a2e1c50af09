package llm

import (
	"context"
)

type contextKey string

const stageContextKey contextKey = "llm_stage"

// Pipeline stages that issue completions. Used as a logging field.
const (
	StageScope      = "scope_detection"
	StageGenerate   = "sql_generation"
	StageConfidence = "confidence"
	StageFormat     = "format_results"
)

// WithStage tags the context with the pipeline stage issuing the completion.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageContextKey, stage)
}

// StageFromContext returns the stage set by WithStage, or "" if none.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageContextKey).(string); ok {
		return s
	}
	return ""
}
