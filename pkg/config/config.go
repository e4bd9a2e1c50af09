package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	sqlpkg "github.com/dealdesk-inc/dealdesk-engine/pkg/sql"
)

// DefaultConfigPath is the YAML file read by Load.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for dealdesk-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Datastore DatastoreConfig `yaml:"datastore"`
	LLM       LLMConfig       `yaml:"llm"`
	Routing   RoutingConfig   `yaml:"routing"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Redis     RedisConfig     `yaml:"redis"`
}

// DatastoreConfig selects and configures the relational store.
type DatastoreConfig struct {
	Type           string `yaml:"type" env:"DATASTORE_TYPE" env-default:"sqlite"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"dealdesk.db"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// SampleRows is the number of rows per table shown to the oracle.
	SampleRows int `yaml:"sample_rows" env:"DATASTORE_SAMPLE_ROWS" env-default:"2"`
	// MaxResultRows caps the rows returned by a single query.
	MaxResultRows int `yaml:"max_result_rows" env:"DATASTORE_MAX_RESULT_ROWS" env-default:"1000"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings, used when Type is "postgres".
type PostgresConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"dealdesk"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"dealdesk"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	Schema   string `yaml:"schema" env:"PGSCHEMA" env-default:"public"`
}

// LLMConfig configures the completion oracle.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:""`
	BaseURL  string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`

	// ConfidenceModel optionally routes confidence scoring to a cheaper model.
	ConfidenceModel string `yaml:"confidence_model" env:"LLM_CONFIDENCE_MODEL" env-default:""`

	MaxTokens           int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
	ScopeMaxTokens      int     `yaml:"scope_max_tokens" env:"LLM_SCOPE_MAX_TOKENS" env-default:"20"`
	ConfidenceMaxTokens int     `yaml:"confidence_max_tokens" env:"LLM_CONFIDENCE_MAX_TOKENS" env-default:"50"`
	Temperature         float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`

	// BreakerThreshold trips the oracle circuit breaker after this many
	// consecutive failures. Zero disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"0"`
	BreakerResetSeconds int `yaml:"breaker_reset_seconds" env:"LLM_BREAKER_RESET_SECONDS" env-default:"30"`

	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
}

// RoutingConfig holds the escalation thresholds and complexity weights.
type RoutingConfig struct {
	LowConfidenceThreshold     float64 `yaml:"low_confidence_threshold" env:"ROUTING_LOW_CONFIDENCE_THRESHOLD" env-default:"0.6"`
	ComplexConfidenceThreshold float64 `yaml:"complex_confidence_threshold" env:"ROUTING_COMPLEX_CONFIDENCE_THRESHOLD" env-default:"0.8"`
	JoinWeight                 int     `yaml:"join_weight" env:"ROUTING_JOIN_WEIGHT" env-default:"1"`
	SubqueryWeight             int     `yaml:"subquery_weight" env:"ROUTING_SUBQUERY_WEIGHT" env-default:"2"`
	AggregationWeight          int     `yaml:"aggregation_weight" env:"ROUTING_AGGREGATION_WEIGHT" env-default:"1"`
}

// PromptsConfig points at an optional vocabulary override.
type PromptsConfig struct {
	VocabularyPath string `yaml:"vocabulary_path" env:"PROMPTS_VOCABULARY_PATH" env-default:""`
}

// RedisConfig configures the optional schema-context cache. An empty Host
// disables caching.
type RedisConfig struct {
	Host             string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port             int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password         string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB               int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	SchemaTTLSeconds int    `yaml:"schema_ttl_seconds" env:"REDIS_SCHEMA_TTL_SECONDS" env-default:"300"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// A missing config.yaml is not an error: defaults and environment are used.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown store types and providers, thresholds outside
// [0,1] and negative sizes or weights.
func (c *Config) Validate() error {
	switch datasource.Dialect(c.Datastore.Type) {
	case datasource.DialectSQLite, datasource.DialectPostgres:
	default:
		return fmt.Errorf("unsupported datastore type %q", c.Datastore.Type)
	}

	switch c.LLM.Provider {
	case llm.ProviderAnthropic, llm.ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if err := checkUnit("routing.low_confidence_threshold", c.Routing.LowConfidenceThreshold); err != nil {
		return err
	}
	if err := checkUnit("routing.complex_confidence_threshold", c.Routing.ComplexConfidenceThreshold); err != nil {
		return err
	}

	nonNegative := []struct {
		name  string
		value int
	}{
		{"routing.join_weight", c.Routing.JoinWeight},
		{"routing.subquery_weight", c.Routing.SubqueryWeight},
		{"routing.aggregation_weight", c.Routing.AggregationWeight},
		{"datastore.sample_rows", c.Datastore.SampleRows},
		{"llm.breaker_threshold", c.LLM.BreakerThreshold},
		{"redis.schema_ttl_seconds", c.Redis.SchemaTTLSeconds},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", f.name, f.value)
		}
	}

	positive := []struct {
		name  string
		value int
	}{
		{"datastore.max_result_rows", c.Datastore.MaxResultRows},
		{"llm.max_tokens", c.LLM.MaxTokens},
		{"llm.scope_max_tokens", c.LLM.ScopeMaxTokens},
		{"llm.confidence_max_tokens", c.LLM.ConfidenceMaxTokens},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.value)
		}
	}

	return nil
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}

// DatastoreOptions renders the datastore section as the generic config map
// understood by the registered adapter factories.
func (c *Config) DatastoreOptions() map[string]any {
	if datasource.Dialect(c.Datastore.Type) == datasource.DialectPostgres {
		pg := c.Datastore.Postgres
		return map[string]any{
			"host":     ResolveServiceHost(pg.Host),
			"port":     pg.Port,
			"user":     pg.User,
			"password": pg.Password,
			"database": pg.Database,
			"ssl_mode": pg.SSLMode,
			"schema":   pg.Schema,
		}
	}
	return map[string]any{"path": c.Datastore.SQLitePath}
}

// OracleConfig renders the llm section for llm.NewCapability, choosing the
// API key that matches the provider.
func (c *Config) OracleConfig() *llm.Config {
	key := c.LLM.AnthropicAPIKey
	if c.LLM.Provider == llm.ProviderOpenAI {
		key = c.LLM.OpenAIAPIKey
	}
	return &llm.Config{
		Provider:          c.LLM.Provider,
		Endpoint:          c.LLM.BaseURL,
		Model:             c.LLM.Model,
		APIKey:            key,
		BreakerThreshold:  c.LLM.BreakerThreshold,
		BreakerResetAfter: time.Duration(c.LLM.BreakerResetSeconds) * time.Second,
	}
}

// ConfidenceOracleConfig returns the oracle config for confidence scoring
// when a separate confidence model is configured, or nil to share the main
// oracle.
func (c *Config) ConfidenceOracleConfig() *llm.Config {
	if c.LLM.ConfidenceModel == "" {
		return nil
	}
	cfg := c.OracleConfig()
	cfg.Model = c.LLM.ConfidenceModel
	return cfg
}

// ComplexityWeights returns the routing weights for the complexity estimator.
func (c *Config) ComplexityWeights() sqlpkg.ComplexityWeights {
	return sqlpkg.ComplexityWeights{
		Join:        c.Routing.JoinWeight,
		Subquery:    c.Routing.SubqueryWeight,
		Aggregation: c.Routing.AggregationWeight,
	}
}

// SchemaTTL returns the schema cache lifetime.
func (c *RedisConfig) SchemaTTL() time.Duration {
	return time.Duration(c.SchemaTTLSeconds) * time.Second
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns the dialable host:port, resolved for containers.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(ResolveServiceHost(c.Host), strconv.Itoa(c.Port))
}
