package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	_ "github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource/postgres" // registers the postgres store
	_ "github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource/sqlite"   // registers the sqlite store
	"github.com/dealdesk-inc/dealdesk-engine/pkg/audit"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/cache"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/config"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/database"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/handlers"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/llm"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
	mcpserver "github.com/dealdesk-inc/dealdesk-engine/pkg/mcp"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/mcp/tools"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/middleware"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/prompts"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/repositories"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/retry"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// connectRetry logs each failed attempt to reach a backing service.
func connectRetry(logger *zap.Logger, service string) *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Connection failed, retrying",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}
	return cfg
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("datastore", cfg.Datastore.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("schema_cache", cfg.Redis.Enabled()))

	auditor := audit.NewSecurityAuditor(logger)

	rawStore, err := retry.DoWithResult(ctx, connectRetry(logger, "datastore"), func() (datasource.Store, error) {
		return datasource.Open(ctx, cfg.Datastore.Type, cfg.DatastoreOptions(), datasource.StoreOptions{
			MaxResultRows: cfg.Datastore.MaxResultRows,
			Logger:        logger,
		})
	})
	if err != nil {
		return fmt.Errorf("open datastore: %s", logging.SanitizeError(err))
	}
	defer func() {
		if err := rawStore.Close(); err != nil {
			logger.Warn("Failed to close datastore", zap.Error(err))
		}
	}()

	if err := database.RunMigrations(rawStore, cfg.Datastore.MigrationsPath, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store := datasource.WithParameterScreening(rawStore, auditor)

	// The pipeline reads schema context through the cache when Redis is configured.
	pipelineStore := store
	redisClient, err := retry.DoWithResult(ctx, connectRetry(logger, "redis"), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis, logger)
	})
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		pipelineStore = cache.WithSchemaCache(store, cache.NewSchemaCache(redisClient, cfg.Redis.SchemaTTL(), logger))
	}

	oracle, err := llm.NewCapability(cfg.OracleConfig(), logger)
	if err != nil {
		return fmt.Errorf("create oracle: %w", err)
	}
	confidenceOracle := oracle
	if confCfg := cfg.ConfidenceOracleConfig(); confCfg != nil {
		if confidenceOracle, err = llm.NewCapability(confCfg, logger); err != nil {
			return fmt.Errorf("create confidence oracle: %w", err)
		}
	}

	vocab := prompts.DefaultVocabulary()
	if cfg.Prompts.VocabularyPath != "" {
		if vocab, err = prompts.LoadVocabulary(cfg.Prompts.VocabularyPath); err != nil {
			return fmt.Errorf("load prompt vocabulary: %w", err)
		}
	}
	builder := prompts.NewBuilder(vocab)

	chatRepo := repositories.NewChatRepository(store)
	escalationRepo := repositories.NewEscalationRepository(store)

	pipeline := services.NewQueryPipeline(oracle, pipelineStore, builder, auditor, services.PipelineConfig{
		SampleRows:     cfg.Datastore.SampleRows,
		MaxTokens:      cfg.LLM.MaxTokens,
		ScopeMaxTokens: cfg.LLM.ScopeMaxTokens,
		Temperature:    cfg.LLM.Temperature,
	}, logger)
	routing := services.NewRoutingService(confidenceOracle, builder, services.RoutingConfig{
		LowConfidenceThreshold:     cfg.Routing.LowConfidenceThreshold,
		ComplexConfidenceThreshold: cfg.Routing.ComplexConfidenceThreshold,
		Weights:                    cfg.ComplexityWeights(),
		ConfidenceMaxTokens:        cfg.LLM.ConfidenceMaxTokens,
		Temperature:                cfg.LLM.Temperature,
	}, logger)
	chatService := services.NewChatService(chatRepo, escalationRepo, pipeline, routing, logger)
	escalationService := services.NewEscalationService(escalationRepo, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, rawStore, oracle, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux)
	handlers.NewRoutingHandler(escalationService, logger).RegisterRoutes(mux)

	mcpSrv := mcpserver.NewServer(cfg.Version, logger)
	tools.RegisterQuestionTools(mcpSrv.MCP(), &tools.QuestionToolDeps{
		ChatService:       chatService,
		EscalationService: escalationService,
		Logger:            logger.Named("mcp-tools"),
	})
	mux.Handle("/mcp", mcpSrv.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.ClientIP(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting dealdesk-engine",
			zap.String("addr", server.Addr),
			zap.Bool("llm_available", oracle.IsAvailable()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
