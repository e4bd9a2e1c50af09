package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/config"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/repositories"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/services"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/testhelpers"
)

// newTestMux wires every route over a migrated SQLite store. The oracle
// answers by stage so a full chat exchange can run without a provider.
func newTestMux(t *testing.T, scope, sqlText, confidence string) *http.ServeMux {
	t.Helper()
	store := testhelpers.NewSQLiteStore(t)

	oracle := llm.NewMockOracle()
	oracle.CompleteFunc = func(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
		switch llm.StageFromContext(ctx) {
		case llm.StageScope:
			return scope, nil
		case llm.StageGenerate:
			return sqlText, nil
		case llm.StageConfidence:
			return confidence, nil
		default:
			return "Here is your answer.", nil
		}
	}
	capability := llm.Available(oracle)

	chatRepo := repositories.NewChatRepository(store)
	escalationRepo := repositories.NewEscalationRepository(store)
	pipeline := services.NewQueryPipeline(capability, store, nil, nil, services.DefaultPipelineConfig(), zap.NewNop())
	routing := services.NewRoutingService(capability, nil, services.DefaultRoutingConfig(), zap.NewNop())

	mux := http.NewServeMux()
	NewChatHandler(services.NewChatService(chatRepo, escalationRepo, pipeline, routing, zap.NewNop()), zap.NewNop()).RegisterRoutes(mux)
	NewRoutingHandler(services.NewEscalationService(escalationRepo, zap.NewNop()), zap.NewNop()).RegisterRoutes(mux)
	NewHealthHandler(&config.Config{Version: "test-version", Env: "test"}, store, capability, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps ApiResponse.Data into v.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success, "response not successful")
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestChatHandler_Conversation(t *testing.T) {
	mux := newTestMux(t, "IN_SCOPE", "SELECT name FROM companies ORDER BY id LIMIT 1", "0.93")

	rec := do(t, mux, http.MethodPost, "/api/chat/sessions", `{"user_name":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session struct {
		SessionID string `json:"session_id"`
		UserName  string `json:"user_name"`
	}
	decodeData(t, rec, &session)
	assert.True(t, strings.HasPrefix(session.SessionID, "sess_"))
	assert.Equal(t, "alice", session.UserName)

	rec = do(t, mux, http.MethodPost, "/api/chat/sessions/"+session.SessionID+"/message", `{"message":"Name the first company"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply struct {
		Success bool `json:"success"`
		Message struct {
			Role     string `json:"role"`
			Content  string `json:"content"`
			Metadata struct {
				GeneratedSQL    string  `json:"generated_sql"`
				ResultCount     int     `json:"result_count"`
				ConfidenceScore float64 `json:"confidence_score"`
				NeedsEscalation bool    `json:"needs_escalation"`
			} `json:"metadata"`
		} `json:"message"`
		ConfidenceLabel string `json:"confidence_label"`
		ConfidenceColor string `json:"confidence_color"`
	}
	decodeData(t, rec, &reply)
	assert.True(t, reply.Success)
	assert.Equal(t, "assistant", reply.Message.Role)
	assert.Equal(t, "Here is your answer.", reply.Message.Content)
	assert.Equal(t, 1, reply.Message.Metadata.ResultCount)
	assert.InDelta(t, 0.93, reply.Message.Metadata.ConfidenceScore, 1e-9)
	assert.False(t, reply.Message.Metadata.NeedsEscalation)
	assert.Equal(t, "high", reply.ConfidenceLabel)
	assert.Equal(t, "green", reply.ConfidenceColor)

	rec = do(t, mux, http.MethodGet, "/api/chat/sessions/"+session.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	decodeData(t, rec, &detail)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "user", detail.Messages[0].Role)

	rec = do(t, mux, http.MethodGet, "/api/chat/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list SessionListResponse
	decodeData(t, rec, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, 2, list.Sessions[0].MessageCount)
}

func TestChatHandler_CreateSessionWithoutBody(t *testing.T) {
	mux := newTestMux(t, "IN_SCOPE", "SELECT 1", "0.9")

	rec := do(t, mux, http.MethodPost, "/api/chat/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session struct {
		UserName string `json:"user_name"`
	}
	decodeData(t, rec, &session)
	assert.Equal(t, "Anonymous", session.UserName)
}

func TestChatHandler_Errors(t *testing.T) {
	mux := newTestMux(t, "IN_SCOPE", "SELECT 1", "0.9")

	rec := do(t, mux, http.MethodPost, "/api/chat/sessions/sess_missing/message", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decodeError(t, rec)["message"])

	rec = do(t, mux, http.MethodGet, "/api/chat/sessions/sess_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/chat/sessions", `{"user_name":"bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		SessionID string `json:"session_id"`
	}
	decodeData(t, rec, &session)

	rec = do(t, mux, http.MethodPost, "/api/chat/sessions/"+session.SessionID+"/message", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/chat/sessions/"+session.SessionID+"/message", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/chat/sessions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_OutOfScopeCreatesEscalation(t *testing.T) {
	mux := newTestMux(t, "OUT_OF_SCOPE", "", "")

	rec := do(t, mux, http.MethodPost, "/api/chat/sessions", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		SessionID string `json:"session_id"`
	}
	decodeData(t, rec, &session)

	rec = do(t, mux, http.MethodPost, "/api/chat/sessions/"+session.SessionID+"/message", `{"message":"What's the weather?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/routing/escalated?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []struct {
			ID               int64  `json:"id"`
			SourceType       string `json:"source_type"`
			EscalationReason string `json:"escalation_reason"`
		} `json:"escalated_questions"`
		Total int `json:"total"`
	}
	decodeData(t, rec, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "chat", page.Items[0].SourceType)
	assert.Equal(t, "Out-of-scope: Question unrelated to database contents", page.Items[0].EscalationReason)
}

func TestRoutingHandler_EscalationLifecycle(t *testing.T) {
	mux := newTestMux(t, "IN_SCOPE", "SELECT 1", "0.9")

	rec := do(t, mux, http.MethodPost, "/api/routing/escalate",
		`{"source_type":"forum","source_id":12,"question_text":"Is Q4 audited?"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID               int64  `json:"id"`
		Status           string `json:"status"`
		EscalationReason string `json:"escalation_reason"`
		UserName         string `json:"user_name"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "Manual escalation requested by user", created.EscalationReason)
	assert.Equal(t, "Anonymous", created.UserName)

	path := "/api/routing/escalated/" + jsonNumber(created.ID)

	rec = do(t, mux, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodPatch, path, `{"status":"resolved","resolution_notes":"Yes, audited by KPMG"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Status     string  `json:"status"`
		ResolvedAt *string `json:"resolved_at"`
	}
	decodeData(t, rec, &updated)
	assert.Equal(t, "resolved", updated.Status)
	assert.NotNil(t, updated.ResolvedAt)

	rec = do(t, mux, http.MethodGet, "/api/routing/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analytics struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	}
	decodeData(t, rec, &analytics)
	assert.Equal(t, 1, analytics.Total)
	assert.Equal(t, 1, analytics.ByStatus["resolved"])
}

func TestRoutingHandler_Errors(t *testing.T) {
	mux := newTestMux(t, "IN_SCOPE", "SELECT 1", "0.9")

	tests := []struct {
		name, method, path, body string
		status                   int
	}{
		{"missing fields", http.MethodPost, "/api/routing/escalate", `{"source_type":"chat"}`, http.StatusBadRequest},
		{"bad source", http.MethodPost, "/api/routing/escalate", `{"source_type":"email","source_id":1,"question_text":"q"}`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/routing/escalated/abc", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/routing/escalated/999", "", http.StatusNotFound},
		{"empty update", http.MethodPatch, "/api/routing/escalated/1", `{}`, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/routing/escalated?status=closed", "", http.StatusBadRequest},
		{"bad offset", http.MethodGet, "/api/routing/escalated?offset=-1", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3", Env: "test"}

	rec := httptest.NewRecorder()
	NewHealthHandler(cfg, nil, llm.Unavailable(llm.ReasonAPIKeyMissing), zap.NewNop()).
		Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "disabled", health.LLMStatus)

	rec = httptest.NewRecorder()
	NewHealthHandler(cfg, failingPinger{}, llm.Available(llm.NewMockOracle()), zap.NewNop()).
		Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "unreachable", health.Database)
	assert.Equal(t, "enabled", health.LLMStatus)
}

func TestHealthHandler_Ping(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(&config.Config{Version: "1.2.3", Env: "test"}, nil, llm.Unavailable("none"), zap.NewNop()).
		Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var ping PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ping))
	assert.Equal(t, "1.2.3", ping.Version)
	assert.Equal(t, "dealdesk-engine", ping.Service)
	assert.Equal(t, "test", ping.Environment)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
