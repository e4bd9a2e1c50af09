package llm

import (
	"context"
	"sync"
)

// MockOracle is a configurable mock for testing completion callers.
// Set CompleteFunc to control behavior in tests.
type MockOracle struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty string and nil error.
	CompleteFunc func(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu    sync.Mutex
	calls []MockCompletionCall
}

// MockCompletionCall records a call to Complete.
type MockCompletionCall struct {
	Prompt  string
	Options CompletionOptions
	Stage   string
}

// NewMockOracle creates a new mock with sensible defaults.
func NewMockOracle() *MockOracle {
	return &MockOracle{Model: "mock-model"}
}

// Complete implements Oracle.
func (m *MockOracle) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCompletionCall{Prompt: prompt, Options: opts, Stage: StageFromContext(ctx)})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, opts)
	}
	return "", nil
}

// GetModel implements Oracle.
func (m *MockOracle) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns a copy of the recorded calls.
func (m *MockOracle) Calls() []MockCompletionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCompletionCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Complete calls.
func (m *MockOracle) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears call tracking.
func (m *MockOracle) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Ensure MockOracle implements Oracle at compile time.
var _ Oracle = (*MockOracle)(nil)
