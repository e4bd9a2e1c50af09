package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.False(t, IsRetryable(err))
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Only one trial request at a time.
	assert.Error(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestBreakerOracle(t *testing.T) {
	inner := NewMockOracle()
	inner.CompleteFunc = func(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
		return "", errors.New("status code: 503")
	}
	cb, _ := newTestBreaker(2, time.Minute)
	oracle := WithCircuitBreaker(inner, cb)

	for i := 0; i < 2; i++ {
		_, err := oracle.Complete(context.Background(), "p", CompletionOptions{MaxTokens: 10})
		require.Error(t, err)
	}
	assert.Equal(t, 2, inner.CallCount())

	// Open circuit short-circuits without reaching the provider.
	_, err := oracle.Complete(context.Background(), "p", CompletionOptions{MaxTokens: 10})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.Equal(t, 2, inner.CallCount())
	assert.Equal(t, "mock-model", oracle.GetModel())
}

func TestBreakerOracle_CallerCancellationNotCounted(t *testing.T) {
	inner := NewMockOracle()
	inner.CompleteFunc = func(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
		return "", ctx.Err()
	}
	cb, _ := newTestBreaker(1, time.Minute)
	oracle := WithCircuitBreaker(inner, cb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := oracle.Complete(ctx, "p", CompletionOptions{})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}
