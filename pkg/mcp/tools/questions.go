package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/services"
)

// MCPUserName is recorded on sessions opened by MCP clients.
const MCPUserName = "MCP Client"

// QuestionToolDeps contains dependencies for the question tools.
type QuestionToolDeps struct {
	ChatService       services.ChatService
	EscalationService services.EscalationService
	Logger            *zap.Logger
}

// askQuestionResult is the JSON body returned by ask_question.
type askQuestionResult struct {
	SessionID        string            `json:"session_id"`
	MessageID        int64             `json:"message_id"`
	Success          bool              `json:"success"`
	Answer           string            `json:"answer"`
	SQL              string            `json:"sql,omitempty"`
	ResultCount      *int              `json:"result_count,omitempty"`
	ConfidenceScore  float64           `json:"confidence_score"`
	ConfidenceLabel  string            `json:"confidence_label"`
	Complexity       models.Complexity `json:"complexity"`
	IsInScope        bool              `json:"is_in_scope"`
	NeedsEscalation  bool              `json:"needs_escalation"`
	EscalationReason string            `json:"escalation_reason,omitempty"`
	EscalationID     *int64            `json:"escalation_id,omitempty"`
}

type escalateQuestionResult struct {
	EscalationID int64                   `json:"escalation_id"`
	SessionID    string                  `json:"session_id,omitempty"`
	Status       models.EscalationStatus `json:"status"`
	Reason       string                  `json:"reason"`
}

// RegisterQuestionTools adds ask_question and escalate_question to the MCP server.
func RegisterQuestionTools(s *server.MCPServer, deps *QuestionToolDeps) {
	registerAskQuestionTool(s, deps)
	registerEscalateQuestionTool(s, deps)
}

func registerAskQuestionTool(s *server.MCPServer, deps *QuestionToolDeps) {
	tool := mcp.NewTool(
		"ask_question",
		mcp.WithDescription(
			"Answer a natural-language question about the business database. "+
				"The question is translated to a read-only SQL query, executed, and summarized. "+
				"The result carries a confidence score and says whether the question was escalated to a human analyst. "+
				"Pass session_id from a previous call to continue the same conversation."),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question in plain language, e.g. 'What was total revenue in 2024?'"),
		),
		mcp.WithString(
			"session_id",
			mcp.Description("Optional - chat session to continue (returned by a previous ask_question call)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		question = trimString(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		sessionID := trimString(getOptionalString(req, "session_id"))
		if sessionID == "" {
			session, err := deps.ChatService.CreateSession(ctx, MCPUserName)
			if err != nil {
				return nil, fmt.Errorf("failed to create chat session: %w", err)
			}
			sessionID = session.SessionID
		}

		reply, err := deps.ChatService.SendMessage(ctx, sessionID, question)
		if err != nil {
			return serviceErrorResult(err)
		}

		return jsonResult(newAskQuestionResult(sessionID, reply))
	})
}

func newAskQuestionResult(sessionID string, reply *services.ChatReply) askQuestionResult {
	result := askQuestionResult{
		SessionID:       sessionID,
		MessageID:       reply.Message.ID,
		Success:         reply.Success,
		Answer:          reply.Message.Content,
		ConfidenceScore: reply.Routing.ConfidenceScore,
		ConfidenceLabel: services.ConfidenceLabel(reply.Routing.ConfidenceScore),
		Complexity:      reply.Routing.Complexity,
		IsInScope:       reply.Routing.IsInScope,
		NeedsEscalation: reply.Routing.NeedsEscalation,
		EscalationID:    reply.EscalationID,
	}
	if md := reply.Message.Metadata; md != nil {
		result.SQL = md.GeneratedSQL
		result.ResultCount = md.ResultCount
		result.EscalationReason = md.EscalationReason
	}
	return result
}

func registerEscalateQuestionTool(s *server.MCPServer, deps *QuestionToolDeps) {
	tool := mcp.NewTool(
		"escalate_question",
		mcp.WithDescription(
			"Hand a question to a human analyst. Use this when an ask_question answer is wrong or incomplete, "+
				"or when the question needs expert judgement. Pass the session_id and message_id returned by "+
				"ask_question to link the escalation to that answer."),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to escalate"),
		),
		mcp.WithNumber(
			"message_id",
			mcp.Description("Optional - message id returned by ask_question"),
		),
		mcp.WithString(
			"session_id",
			mcp.Description("Optional - chat session the message belongs to"),
		),
		mcp.WithString(
			"reason",
			mcp.Description("Optional - why the answer needs human review"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		question = trimString(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}
		sessionID := trimString(getOptionalString(req, "session_id"))

		var sourceID int64
		if messageID, ok := getOptionalFloat(req, "message_id"); ok {
			if messageID < 1 {
				return NewErrorResult("invalid_parameters", "parameter 'message_id' must be a positive number"), nil
			}
			sourceID = int64(messageID)
		} else {
			// Without an answer to point at, the question itself becomes the
			// escalation source.
			if sessionID == "" {
				session, err := deps.ChatService.CreateSession(ctx, MCPUserName)
				if err != nil {
					return nil, fmt.Errorf("failed to create chat session: %w", err)
				}
				sessionID = session.SessionID
			}
			msg, err := deps.ChatService.RecordQuestion(ctx, sessionID, question)
			if err != nil {
				return serviceErrorResult(err)
			}
			sourceID = msg.ID
		}

		reason := trimString(getOptionalString(req, "reason"))
		if reason == "" {
			reason = models.ReasonManual
		}

		escalation, err := deps.EscalationService.Escalate(ctx, services.EscalateRequest{
			SourceType:   models.EscalationSourceChat,
			SourceID:     sourceID,
			SessionID:    sessionID,
			UserName:     MCPUserName,
			QuestionText: question,
			Reason:       reason,
		})
		if err != nil {
			return serviceErrorResult(err)
		}

		deps.Logger.Info("Question escalated over MCP",
			zap.Int64("escalation_id", escalation.ID))

		return jsonResult(escalateQuestionResult{
			EscalationID: escalation.ID,
			SessionID:    sessionID,
			Status:       escalation.Status,
			Reason:       escalation.EscalationReason,
		})
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
