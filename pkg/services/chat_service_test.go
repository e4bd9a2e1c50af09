package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/apperrors"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/repositories"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/testhelpers"
)

type chatFixture struct {
	chat        ChatService
	escalations repositories.EscalationRepository
	oracle      *llm.MockOracle
}

// newChatFixture wires the chat service over a migrated SQLite store. The
// pipeline queries the same store that holds the chat tables.
func newChatFixture(t *testing.T, responses stageResponses) *chatFixture {
	t.Helper()
	store := testhelpers.NewSQLiteStore(t)
	oracle := scriptedOracle(responses)
	capability := llm.Available(oracle)

	chatRepo := repositories.NewChatRepository(store)
	escalationRepo := repositories.NewEscalationRepository(store)
	pipeline := NewQueryPipeline(capability, store, nil, nil, DefaultPipelineConfig(), zap.NewNop())
	routing := NewRoutingService(capability, nil, DefaultRoutingConfig(), zap.NewNop())

	return &chatFixture{
		chat:        NewChatService(chatRepo, escalationRepo, pipeline, routing, zap.NewNop()),
		escalations: escalationRepo,
		oracle:      oracle,
	}
}

func TestChatService_CreateSession(t *testing.T) {
	f := newChatFixture(t, stageResponses{})
	ctx := context.Background()

	s, err := f.chat.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.SessionID, "sess_"), s.SessionID)
	assert.Equal(t, "Anonymous", s.UserName)

	named, err := f.chat.CreateSession(ctx, "  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", named.UserName)
	assert.NotEqual(t, s.SessionID, named.SessionID)
}

func TestChatService_SendMessage_Answered(t *testing.T) {
	f := newChatFixture(t, stageResponses{
		scope:      "IN_SCOPE",
		generate:   "SELECT name FROM companies WHERE ticker_symbol = 'MDCR'",
		confidence: "0.95",
		format:     "The company is MediCore Health.",
	})
	ctx := context.Background()

	session, err := f.chat.CreateSession(ctx, "alice")
	require.NoError(t, err)

	reply, err := f.chat.SendMessage(ctx, session.SessionID, "Which company trades as MDCR?")
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Nil(t, reply.EscalationID)
	assert.Equal(t, "The company is MediCore Health.", reply.Message.Content)
	assert.NotZero(t, reply.Message.ID)

	md := reply.Message.Metadata
	require.NotNil(t, md)
	assert.InDelta(t, 0.95, md.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ComplexitySimple, md.ComplexityLevel)
	assert.True(t, md.IsInScope)
	assert.False(t, md.NeedsEscalation)
	require.NotNil(t, md.ResultCount)
	assert.Equal(t, 1, *md.ResultCount)

	detail, err := f.chat.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, 2, detail.Session.MessageCount)
	assert.Equal(t, models.ChatRoleUser, detail.Messages[0].Role)
	assert.Equal(t, "Which company trades as MDCR?", detail.Messages[0].Content)
	assert.Equal(t, models.ChatRoleAssistant, detail.Messages[1].Role)
	require.NotNil(t, detail.Messages[1].Metadata)
	assert.Equal(t, []map[string]any{{"name": "MediCore Health"}}, detail.Messages[1].Metadata.SQLResults)
	assert.False(t, detail.Session.LastActivity.Before(detail.Session.StartedAt))

	_, total, err := f.escalations.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestChatService_SendMessage_OutOfScopeEscalates(t *testing.T) {
	f := newChatFixture(t, stageResponses{scope: "OUT_OF_SCOPE"})
	ctx := context.Background()

	session, err := f.chat.CreateSession(ctx, "bob")
	require.NoError(t, err)

	reply, err := f.chat.SendMessage(ctx, session.SessionID, "What's the weather?")
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, MessageOutOfScope, reply.Message.Content)
	assert.False(t, reply.Message.Metadata.IsInScope)
	assert.True(t, reply.Message.Metadata.NeedsEscalation)
	require.NotNil(t, reply.EscalationID)

	q, err := f.escalations.Get(ctx, *reply.EscalationID)
	require.NoError(t, err)
	assert.Equal(t, models.EscalationSourceChat, q.SourceType)
	assert.Equal(t, reply.Message.ID, q.SourceID)
	require.NotNil(t, q.SessionID)
	assert.Equal(t, session.SessionID, *q.SessionID)
	assert.Equal(t, "bob", q.UserName)
	assert.Equal(t, "What's the weather?", q.QuestionText)
	assert.Equal(t, "Out-of-scope: Question unrelated to database contents", q.EscalationReason)
	assert.Equal(t, models.EscalationOutOfScope, q.EscalationKind)
	assert.Equal(t, models.EscalationStatusPending, q.Status)
	require.NotNil(t, q.ConfidenceScore)
	assert.Equal(t, 0.5, *q.ConfidenceScore)

	assert.Equal(t, 1, f.oracle.CallCount(), "no confidence call for a failed outcome")
}

func TestChatService_SendMessage_LowConfidenceEscalates(t *testing.T) {
	f := newChatFixture(t, stageResponses{
		scope:      "IN_SCOPE",
		generate:   "SELECT COUNT(*) AS n FROM deals",
		confidence: "0.3",
		format:     "There are 4 deals.",
	})
	ctx := context.Background()

	session, err := f.chat.CreateSession(ctx, "")
	require.NoError(t, err)

	reply, err := f.chat.SendMessage(ctx, session.SessionID, "How many deals?")
	require.NoError(t, err)
	assert.True(t, reply.Success)
	require.NotNil(t, reply.EscalationID)
	assert.Equal(t, models.ReasonLowConfidence, reply.Message.Metadata.EscalationReason)

	q, err := f.escalations.Get(ctx, *reply.EscalationID)
	require.NoError(t, err)
	assert.Equal(t, models.EscalationLowConfidence, q.EscalationKind)
	assert.Equal(t, "Anonymous", q.UserName)
	require.NotNil(t, q.ConfidenceScore)
	assert.InDelta(t, 0.3, *q.ConfidenceScore, 1e-9)
}

func TestChatService_SendMessage_ExecutionFailure(t *testing.T) {
	f := newChatFixture(t, stageResponses{
		scope:    "IN_SCOPE",
		generate: "SELECT no_such_column FROM deals",
	})
	ctx := context.Background()

	session, err := f.chat.CreateSession(ctx, "")
	require.NoError(t, err)

	reply, err := f.chat.SendMessage(ctx, session.SessionID, "Show me the thing")
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, MessageQueryError, reply.Message.Content)
	assert.Equal(t, "SELECT no_such_column FROM deals", reply.Message.Metadata.GeneratedSQL)
	assert.Equal(t, models.EscalationExecutionFailure, reply.Message.Metadata.EscalationKind)
	assert.Equal(t, models.ReasonExecutionFailure, reply.Message.Metadata.EscalationReason)
	require.NotNil(t, reply.EscalationID)
}

func TestChatService_SendMessage_Errors(t *testing.T) {
	f := newChatFixture(t, stageResponses{})
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, "sess_missing", "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	session, err := f.chat.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, session.SessionID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, f.oracle.CallCount())
}

func TestChatService_GetSessionNotFound(t *testing.T) {
	f := newChatFixture(t, stageResponses{})

	_, err := f.chat.GetSession(context.Background(), "sess_missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestChatService_ListSessions(t *testing.T) {
	f := newChatFixture(t, stageResponses{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.chat.CreateSession(ctx, "")
		require.NoError(t, err)
	}

	all, err := f.chat.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := f.chat.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestChatService_RecordQuestion(t *testing.T) {
	f := newChatFixture(t, stageResponses{})
	ctx := context.Background()

	session, err := f.chat.CreateSession(ctx, "bob")
	require.NoError(t, err)

	msg, err := f.chat.RecordQuestion(ctx, session.SessionID, "Why did Q3 margins fall?")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, models.ChatRoleUser, msg.Role)
	assert.Zero(t, f.oracle.CallCount(), "recorded questions are not answered")

	detail, err := f.chat.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "Why did Q3 margins fall?", detail.Messages[0].Content)

	_, err = f.chat.RecordQuestion(ctx, session.SessionID, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.chat.RecordQuestion(ctx, "sess_missing", "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
