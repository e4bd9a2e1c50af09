package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapability(t *testing.T) {
	mock := NewMockOracle()

	available := Available(mock)
	oracle, ok := available.Oracle()
	require.True(t, ok)
	assert.Same(t, mock, oracle)
	assert.True(t, available.IsAvailable())
	assert.Empty(t, available.Reason())

	unavailable := Unavailable(ReasonAPIKeyMissing)
	oracle, ok = unavailable.Oracle()
	assert.False(t, ok)
	assert.Nil(t, oracle)
	assert.False(t, unavailable.IsAvailable())
	assert.Equal(t, "API key not configured", unavailable.Reason())

	assert.False(t, Available(nil).IsAvailable())
}

func TestStageContext(t *testing.T) {
	assert.Equal(t, "", StageFromContext(context.Background()))

	ctx := WithStage(context.Background(), StageScope)
	assert.Equal(t, StageScope, StageFromContext(ctx))

	mock := NewMockOracle()
	_, err := mock.Complete(ctx, "prompt", CompletionOptions{MaxTokens: 20})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, StageScope, calls[0].Stage)
	assert.Equal(t, 20, calls[0].Options.MaxTokens)

	mock.Reset()
	assert.Equal(t, 0, mock.CallCount())
}
