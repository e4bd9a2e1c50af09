package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
)

// ReasonAPIKeyMissing is the capability reason when no credentials are configured.
const ReasonAPIKeyMissing = "API key not configured"

// Config holds configuration for creating an oracle.
type Config struct {
	Provider string // "anthropic" or "openai"
	Endpoint string // Optional base URL override
	Model    string
	APIKey   string // Optional only for self-hosted OpenAI-compatible endpoints

	// BreakerThreshold enables a circuit breaker when > 0.
	BreakerThreshold  int
	BreakerResetAfter time.Duration
}

// NewCapability builds the oracle capability once at startup. Missing
// credentials yield an Unavailable capability rather than an error; an
// unknown provider is a configuration error.
func NewCapability(cfg *Config, logger *zap.Logger) (Capability, error) {
	logger = logger.Named("llm")

	var (
		oracle Oracle
		err    error
	)

	switch cfg.Provider {
	case ProviderAnthropic, "":
		if cfg.APIKey == "" {
			logger.Warn("Anthropic API key not configured; question answering disabled")
			return Unavailable(ReasonAPIKeyMissing), nil
		}
		oracle, err = NewAnthropicClient(cfg, logger)

	case ProviderOpenAI:
		// Self-hosted compatible endpoints may run without a key.
		if cfg.APIKey == "" && cfg.Endpoint == "" {
			logger.Warn("OpenAI API key not configured; question answering disabled")
			return Unavailable(ReasonAPIKeyMissing), nil
		}
		oracle, err = NewClient(cfg, logger)

	default:
		return Capability{}, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return Capability{}, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	if cfg.BreakerThreshold > 0 {
		resetAfter := cfg.BreakerResetAfter
		if resetAfter <= 0 {
			resetAfter = DefaultCircuitBreakerConfig().ResetAfter
		}
		oracle = WithCircuitBreaker(oracle, NewCircuitBreaker(CircuitBreakerConfig{
			Threshold:  cfg.BreakerThreshold,
			ResetAfter: resetAfter,
		}))
	}

	logger.Info("Completion oracle configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", oracle.GetModel()))

	return Available(oracle), nil
}
