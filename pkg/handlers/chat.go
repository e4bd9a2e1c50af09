package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/services"
)

// CreateSessionRequest for POST /api/chat/sessions
type CreateSessionRequest struct {
	UserName string `json:"user_name"`
}

// SendMessageRequest for POST /api/chat/sessions/{sessionId}/message
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SessionListResponse for GET /api/chat/sessions
type SessionListResponse struct {
	Sessions []*models.ChatSession `json:"sessions"`
}

// MessageResponse is the assistant reply with display hints for the
// confidence score.
type MessageResponse struct {
	*services.ChatReply
	ConfidenceLabel string `json:"confidence_label"`
	ConfidenceColor string `json:"confidence_color"`
}

// ChatHandler handles chat session HTTP requests.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/chat/sessions"

	mux.HandleFunc("POST "+base, h.CreateSession)
	mux.HandleFunc("GET "+base, h.ListSessions)
	mux.HandleFunc("GET "+base+"/{sessionId}", h.GetSession)
	mux.HandleFunc("POST "+base+"/{sessionId}/message", h.SendMessage)
}

// CreateSession handles POST /api/chat/sessions
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	session, err := h.chatService.CreateSession(r.Context(), req.UserName)
	if err != nil {
		writeServiceError(w, h.logger, err, "", "create_session_failed", "Failed to create chat session")
		return
	}
	writeResponse(w, h.logger, http.StatusCreated, session)
}

// ListSessions handles GET /api/chat/sessions
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, h.logger, "limit", services.DefaultSessionListLimit)
	if !ok {
		return
	}

	sessions, err := h.chatService.ListSessions(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "", "list_sessions_failed", "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	writeResponse(w, h.logger, http.StatusOK, SessionListResponse{Sessions: sessions})
}

// GetSession handles GET /api/chat/sessions/{sessionId}
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := h.chatService.GetSession(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Session not found", "get_session_failed", "Failed to retrieve session")
		return
	}
	writeResponse(w, h.logger, http.StatusOK, detail)
}

// SendMessage handles POST /api/chat/sessions/{sessionId}/message
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	sessionID := r.PathValue("sessionId")
	ctx := audit.WithSessionID(r.Context(), sessionID)

	reply, err := h.chatService.SendMessage(ctx, sessionID, req.Message)
	if err != nil {
		writeServiceError(w, h.logger, err, "Session not found", "send_message_failed", "Failed to process message")
		return
	}

	score := reply.Routing.ConfidenceScore
	writeResponse(w, h.logger, http.StatusOK, MessageResponse{
		ChatReply:       reply,
		ConfidenceLabel: services.ConfidenceLabel(score),
		ConfidenceColor: services.ConfidenceColor(score),
	})
}
