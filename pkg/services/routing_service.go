package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/models"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/prompts"
	sqlpkg "github.com/dealdesk-inc/dealdesk-engine/pkg/sql"
)

// NeutralConfidence is used whenever the oracle cannot score an answer.
const NeutralConfidence = 0.5

// Fail-closed values reported when routing analysis itself fails.
const (
	routingFailureConfidence = 0.3
	routingFailureComplexity = models.ComplexityModerate
)

// RoutingConfig holds the escalation thresholds, complexity weights and the
// confidence-call token budget.
type RoutingConfig struct {
	LowConfidenceThreshold     float64
	ComplexConfidenceThreshold float64
	Weights                    sqlpkg.ComplexityWeights
	ConfidenceMaxTokens        int
	Temperature                float64
}

// DefaultRoutingConfig returns thresholds 0.6 and 0.8, default weights and a
// 50-token confidence budget.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		LowConfidenceThreshold:     0.6,
		ComplexConfidenceThreshold: 0.8,
		Weights:                    sqlpkg.DefaultComplexityWeights(),
		ConfidenceMaxTokens:        50,
	}
}

// RoutingService decides whether an answered question should go to a human.
type RoutingService interface {
	// AssessConfidence returns the oracle's confidence in [0,1], or 0.5 when
	// the oracle is unavailable, fails, or answers something unparsable.
	AssessConfidence(ctx context.Context, question, sqlText string, results []map[string]any) float64

	// AssessComplexity classifies the generated SQL.
	AssessComplexity(sqlText, question string) models.Complexity

	// ShouldEscalate applies the escalation rules in priority order.
	ShouldEscalate(confidence float64, level models.ComplexityLevel, inScope, manual, hadError bool) models.EscalationDecision

	// AnalyzeRouting combines both assessments with the escalation rules. It
	// never fails: internal errors produce a cautious escalated analysis.
	AnalyzeRouting(ctx context.Context, req models.RoutingRequest) *models.RoutingAnalysis
}

type routingService struct {
	oracle  llm.Capability
	prompts *prompts.Builder
	cfg     RoutingConfig
	logger  *zap.Logger
}

var _ RoutingService = (*routingService)(nil)

// NewRoutingService creates the routing engine. oracle is used for
// confidence scoring only and may be a cheaper model than the pipeline's.
func NewRoutingService(oracle llm.Capability, builder *prompts.Builder, cfg RoutingConfig, logger *zap.Logger) RoutingService {
	if cfg.ConfidenceMaxTokens <= 0 {
		cfg.ConfidenceMaxTokens = DefaultRoutingConfig().ConfidenceMaxTokens
	}
	if builder == nil {
		builder = prompts.NewBuilder(nil)
	}
	return &routingService{
		oracle:  oracle,
		prompts: builder,
		cfg:     cfg,
		logger:  logger.Named("routing"),
	}
}

func (s *routingService) AssessConfidence(ctx context.Context, question, sqlText string, results []map[string]any) float64 {
	oracle, ok := s.oracle.Oracle()
	if !ok {
		return NeutralConfidence
	}

	prompt := s.prompts.BuildConfidencePrompt(question, sqlText, results)
	resp, err := oracle.Complete(llm.WithStage(ctx, llm.StageConfidence), prompt, llm.CompletionOptions{
		MaxTokens:   s.cfg.ConfidenceMaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Warn("Confidence assessment failed, using neutral score",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return NeutralConfidence
	}

	score, ok := ParseConfidence(resp)
	if !ok {
		s.logger.Warn("Invalid confidence response, using neutral score",
			zap.String("response", logging.TruncateString(resp, 50)))
		return NeutralConfidence
	}
	return score
}

// ParseConfidence reads a score in [0,1] from the start of resp, accepting
// trailing text the way a lenient float parser would. The longest prefix of
// the form [+-]digits[.digits][e[+-]digits] is parsed, so "0.85." reads as
// 0.85.
func ParseConfidence(resp string) (float64, bool) {
	s := strings.TrimSpace(resp)
	v, err := strconv.ParseFloat(s[:floatPrefixLen(s)], 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

func floatPrefixLen(s string) int {
	digits := func(i int) int {
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		return i
	}

	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	i = digits(i)
	if i < len(s) && s[i] == '.' {
		i = digits(i + 1)
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if k := digits(j); k > j {
			i = k
		}
	}
	return i
}

func (s *routingService) AssessComplexity(sqlText, question string) models.Complexity {
	if strings.TrimSpace(sqlText) == "" {
		return models.Complexity{Level: models.ComplexitySimple, Score: 0, Factors: []string{}}
	}
	c := sqlpkg.EstimateComplexity(sqlText, question, s.cfg.Weights)
	return models.Complexity{
		Level:   models.ComplexityLevel(c.Level),
		Score:   c.Score,
		Factors: c.Factors,
	}
}

func (s *routingService) ShouldEscalate(confidence float64, level models.ComplexityLevel, inScope, manual, hadError bool) models.EscalationDecision {
	switch {
	case manual:
		return escalate(models.EscalationManual, models.ReasonManual)
	case hadError:
		return escalate(models.EscalationProcessingError, models.ReasonProcessingError)
	case !inScope:
		return escalate(models.EscalationOutOfScope, models.ReasonOutsideDomain)
	case confidence < s.cfg.LowConfidenceThreshold:
		return escalate(models.EscalationLowConfidence, models.ReasonLowConfidence)
	case level == models.ComplexityComplex && confidence < s.cfg.ComplexConfidenceThreshold:
		return escalate(models.EscalationComplexQuestion, models.ReasonComplexQuestion)
	}
	return models.EscalationDecision{}
}

func escalate(kind models.EscalationKind, reason string) models.EscalationDecision {
	return models.EscalationDecision{Escalate: true, Kind: kind, Reason: reason}
}

func (s *routingService) AnalyzeRouting(ctx context.Context, req models.RoutingRequest) (analysis *models.RoutingAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Routing analysis failed", zap.String("error", fmt.Sprint(r)))
			analysis = &models.RoutingAnalysis{
				ConfidenceScore:  routingFailureConfidence,
				Complexity:       models.Complexity{Level: routingFailureComplexity, Factors: []string{}},
				IsInScope:        req.IsInScope,
				NeedsEscalation:  true,
				EscalationKind:   models.EscalationRoutingFailure,
				EscalationReason: models.ReasonRoutingFailure,
			}
		}
	}()

	confidence := NeutralConfidence
	if req.IsInScope && !req.HadError && req.SQL != "" {
		confidence = s.AssessConfidence(ctx, req.Question, req.SQL, req.Results)
	}
	complexity := s.AssessComplexity(req.SQL, req.Question)
	decision := s.ShouldEscalate(confidence, complexity.Level, req.IsInScope, req.ManualEscalation, req.HadError)

	s.logger.Debug("Routing analysis complete",
		zap.Float64("confidence", confidence),
		zap.String("complexity", string(complexity.Level)),
		zap.Bool("escalate", decision.Escalate),
		zap.String("kind", string(decision.Kind)))

	return &models.RoutingAnalysis{
		ConfidenceScore:  confidence,
		Complexity:       complexity,
		IsInScope:        req.IsInScope,
		NeedsEscalation:  decision.Escalate,
		EscalationKind:   decision.Kind,
		EscalationReason: decision.Reason,
	}
}

// ConfidenceLabel buckets a score for display: high, moderate or low.
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.9:
		return "high"
	case score >= 0.7:
		return "moderate"
	default:
		return "low"
	}
}

// ConfidenceColor is the display color matching ConfidenceLabel.
func ConfidenceColor(score float64) string {
	switch ConfidenceLabel(score) {
	case "high":
		return "green"
	case "moderate":
		return "yellow"
	default:
		return "red"
	}
}
