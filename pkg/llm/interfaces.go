// Package llm provides the completion oracle used by the query pipeline.
package llm

import (
	"context"
)

// CompletionOptions bounds a single completion. MaxTokens caps output size
// and therefore latency and cost.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

// Oracle turns a prompt into free text.
// Use this interface for dependency injection to enable mocking in tests.
type Oracle interface {
	// Complete returns the model's text response for a one-shot prompt.
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure the provider clients implement Oracle at compile time.
var (
	_ Oracle = (*Client)(nil)
	_ Oracle = (*AnthropicClient)(nil)
	_ Oracle = (*BreakerOracle)(nil)
)
