package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/prompts"
	sqlpkg "github.com/dealdesk-inc/dealdesk-engine/pkg/sql"
)

// User-facing pipeline messages. Failures never expose raw error text.
const (
	MessageOracleDisabled = "Chat features are currently disabled. The Anthropic API key has not been configured.\n\n" +
		"To enable AI chat:\n" +
		"1. Get an API key from https://console.anthropic.com/\n" +
		"2. Export it as ANTHROPIC_API_KEY (or OPENAI_API_KEY with llm.provider set to openai)\n" +
		"3. Restart the server\n\n" +
		"Tip: The Forum features work without an API key!"
	MessageOutOfScope = "I apologize, but I can only answer questions related to the financial data, forum discussions, " +
		"chat history, and escalation tracking in our database. Your question appears to be outside my scope. " +
		"Is there anything about the company financials or forum activity I can help you with?"
	MessageGenerationFailed = "I encountered an error trying to formulate a database query for your question. " +
		"This may require human assistance."
	MessageUnsafeQuery = "I generated an unsafe query for your question. For security reasons, I cannot execute it. " +
		"A human team member will review your question."
	MessageQueryError = "I encountered an error while querying the database. The query may need refinement. " +
		"A human team member can help with this."
	MessageUnexpectedError = "I encountered an unexpected error while processing your question. " +
		"Please try again or contact support."
)

// Raw-results fallbacks used when the answer cannot be phrased by the oracle.
const (
	fallbackNoResults          = "No results found."
	fallbackNoResultsAfterFail = "I couldn't find any data matching your question in the database."
)

// ErrQuestionOutOfScope is returned by SQL generation when the oracle answers
// with the out-of-scope token instead of SQL.
var ErrQuestionOutOfScope = errors.New("question is out of scope")

// PipelineConfig bounds the oracle calls made per question.
type PipelineConfig struct {
	SampleRows     int
	MaxTokens      int
	ScopeMaxTokens int
	Temperature    float64
}

// DefaultPipelineConfig returns 2 sample rows, 2048 tokens for generation and
// formatting, and 20 tokens for scope detection.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SampleRows:     prompts.DefaultSampleRows,
		MaxTokens:      2048,
		ScopeMaxTokens: 20,
		Temperature:    0,
	}
}

// QueryPipeline answers a natural-language question with a validated,
// read-only query.
type QueryPipeline interface {
	// ProcessQuestion never returns an error: every failure is reported as a
	// terminal outcome with a user-facing message.
	ProcessQuestion(ctx context.Context, question string) *models.PipelineOutcome
}

type queryPipeline struct {
	oracle  llm.Capability
	store   datasource.Store
	prompts *prompts.Builder
	auditor *audit.SecurityAuditor
	cfg     PipelineConfig
	logger  *zap.Logger
}

var _ QueryPipeline = (*queryPipeline)(nil)

// NewQueryPipeline creates the pipeline. The oracle capability is fixed for
// the pipeline's lifetime.
func NewQueryPipeline(
	oracle llm.Capability,
	store datasource.Store,
	builder *prompts.Builder,
	auditor *audit.SecurityAuditor,
	cfg PipelineConfig,
	logger *zap.Logger,
) QueryPipeline {
	defaults := DefaultPipelineConfig()
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = defaults.SampleRows
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ScopeMaxTokens <= 0 {
		cfg.ScopeMaxTokens = defaults.ScopeMaxTokens
	}
	if builder == nil {
		builder = prompts.NewBuilder(nil)
	}

	return &queryPipeline{
		oracle:  oracle,
		store:   store,
		prompts: builder,
		auditor: auditor,
		cfg:     cfg,
		logger:  logger.Named("query-pipeline"),
	}
}

func (p *queryPipeline) ProcessQuestion(ctx context.Context, question string) (outcome *models.PipelineOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Query pipeline panicked",
				zap.Any("panic", r),
				zap.String("question", logging.TruncateString(question, logging.MaxQuestionLogLength)))
			outcome = failure(MessageUnexpectedError, models.PipelineMetadata{
				IsInScope:        true,
				EscalationKind:   models.EscalationUnexpectedError,
				EscalationReason: models.ReasonUnexpectedError,
				Error:            fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	oracle, ok := p.oracle.Oracle()
	if !ok {
		reason := p.oracle.Reason()
		if reason == "" {
			reason = llm.ReasonAPIKeyMissing
		}
		return &models.PipelineOutcome{
			Content: MessageOracleDisabled,
			Metadata: models.PipelineMetadata{
				IsInScope:      true,
				EscalationKind: models.EscalationOracleUnavailable,
				Error:          reason,
			},
		}
	}

	if !p.detectScope(ctx, oracle, question) {
		p.logger.Info("Question out of scope",
			zap.String("question", logging.TruncateString(question, logging.MaxQuestionLogLength)))
		return failure(MessageOutOfScope, models.PipelineMetadata{
			IsInScope:        false,
			EscalationKind:   models.EscalationOutOfScope,
			EscalationReason: models.ReasonOutOfScope,
		})
	}

	generated, err := p.generateSQL(ctx, oracle, question)
	if err != nil {
		p.logger.Error("SQL generation failed", zap.String("error", logging.SanitizeError(err)))
		return failure(MessageGenerationFailed, models.PipelineMetadata{
			IsInScope:        true,
			EscalationKind:   models.EscalationGenerationFailure,
			EscalationReason: models.ReasonGenerationFailure,
			Error:            logging.SanitizeError(err),
		})
	}

	validation := sqlpkg.ValidateSelect(generated)
	if !validation.Valid() {
		p.logger.Error("Generated SQL rejected", zap.String("reason", validation.Reason()))
		if p.auditor != nil {
			p.auditor.LogUnsafeSQL(ctx, audit.UnsafeSQLDetails{
				Question: logging.TruncateString(question, logging.MaxQuestionLogLength),
				SQL:      generated,
				Reason:   validation.Reason(),
			})
		}
		return failure(MessageUnsafeQuery, models.PipelineMetadata{
			GeneratedSQL:     generated,
			IsInScope:        true,
			EscalationKind:   models.EscalationValidationFailure,
			EscalationReason: models.ReasonValidationFailure,
			Error:            validation.Reason(),
		})
	}
	sqlText := validation.SanitizedSQL

	rows, err := p.store.QueryReadOnly(ctx, sqlText)
	if err != nil {
		p.logger.Error("SQL execution failed",
			zap.String("sql", logging.SanitizeQuery(sqlText)),
			zap.String("error", logging.SanitizeError(err)))
		return failure(MessageQueryError, models.PipelineMetadata{
			GeneratedSQL:     sqlText,
			IsInScope:        true,
			EscalationKind:   models.EscalationExecutionFailure,
			EscalationReason: models.ReasonExecutionFailure,
			Error:            logging.SanitizeError(err),
		})
	}
	if p.auditor != nil {
		p.auditor.LogQueryExecution(ctx, sqlText, len(rows))
	}

	content := p.formatResults(ctx, oracle, question, sqlText, rows)
	count := len(rows)

	p.logger.Info("Question answered",
		zap.Int("result_count", count),
		zap.Duration("elapsed", time.Since(start)))

	return &models.PipelineOutcome{
		Success: true,
		Content: content,
		Metadata: models.PipelineMetadata{
			GeneratedSQL: sqlText,
			SQLResults:   rows,
			ResultCount:  &count,
			IsInScope:    true,
		},
	}
}

func failure(content string, md models.PipelineMetadata) *models.PipelineOutcome {
	md.NeedsEscalation = true
	return &models.PipelineOutcome{Content: content, Metadata: md}
}

// detectScope asks the oracle whether the question concerns the database.
// An oracle error is treated as in scope.
func (p *queryPipeline) detectScope(ctx context.Context, oracle llm.Oracle, question string) bool {
	prompt := p.prompts.BuildScopeDetectionPrompt(question)
	resp, err := oracle.Complete(llm.WithStage(ctx, llm.StageScope), prompt, llm.CompletionOptions{
		MaxTokens:   p.cfg.ScopeMaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		p.logger.Warn("Scope detection failed, assuming in scope",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return true
	}
	return ParseScopeResponse(resp)
}

// ParseScopeResponse reports whether a scope-detection reply means in scope:
// the reply must contain IN_SCOPE and must not contain OUT.
func ParseScopeResponse(resp string) bool {
	upper := strings.ToUpper(strings.TrimSpace(resp))
	return strings.Contains(upper, prompts.TokenInScope) && !strings.Contains(upper, "OUT")
}

// generateSQL builds the schema-aware prompt and returns the oracle's raw SQL.
func (p *queryPipeline) generateSQL(ctx context.Context, oracle llm.Oracle, question string) (string, error) {
	schema, err := p.store.GetSchema(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema: %w", err)
	}
	samples, err := p.store.GetSampleData(ctx, p.cfg.SampleRows)
	if err != nil {
		return "", fmt.Errorf("load sample data: %w", err)
	}

	prompt := p.prompts.BuildTextToSQLPrompt(question, schema, toPromptSamples(samples), p.store.Dialect().PromptHint())
	resp, err := oracle.Complete(llm.WithStage(ctx, llm.StageGenerate), prompt, llm.CompletionOptions{
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}

	generated := strings.TrimSpace(resp)
	if strings.Contains(generated, prompts.TokenOutOfScope) {
		return "", ErrQuestionOutOfScope
	}
	return generated, nil
}

// formatResults phrases the rows as an answer, falling back to a raw
// rendering when the oracle fails.
func (p *queryPipeline) formatResults(ctx context.Context, oracle llm.Oracle, question, sqlText string, rows []map[string]any) string {
	prompt := p.prompts.BuildResultsToNLPrompt(question, sqlText, rows)
	resp, err := oracle.Complete(llm.WithStage(ctx, llm.StageFormat), prompt, llm.CompletionOptions{
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err == nil && strings.TrimSpace(resp) != "" {
		return strings.TrimSpace(resp)
	}

	if err != nil {
		p.logger.Warn("Result formatting failed, returning raw results",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
	}
	// An open circuit means the provider is unavailable rather than failing.
	return RawResultsAnswer(rows, err != nil && llm.GetErrorType(err) != llm.ErrorTypeCircuit)
}

// RawResultsAnswer renders rows without the oracle. afterFailure selects the
// wording used when a formatting attempt failed.
func RawResultsAnswer(rows []map[string]any, afterFailure bool) string {
	if len(rows) == 0 {
		if afterFailure {
			return fallbackNoResultsAfterFail
		}
		return fallbackNoResults
	}
	if afterFailure {
		return fmt.Sprintf("I found %d result(s): %s", len(rows), prompts.FormatResults(rows))
	}
	return fmt.Sprintf("Found %d result(s): %s", len(rows), prompts.FormatResults(rows))
}

func toPromptSamples(samples []datasource.TableSample) []prompts.TableSample {
	out := make([]prompts.TableSample, len(samples))
	for i, s := range samples {
		out[i] = prompts.TableSample{Table: s.Table, Rows: s.Rows}
	}
	return out
}
