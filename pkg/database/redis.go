package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/config"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
)

// redisDialTimeout bounds each connection attempt so startup retries stay
// responsive.
const redisDialTimeout = 3 * time.Second

// NewRedisClient connects to the schema-context cache. It returns a nil
// client and no error when Redis is not configured, in which case schema
// context is read from the datastore on every question.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled() {
		logger.Info("Redis not configured, schema cache disabled")
		return nil, nil
	}

	addr := cfg.Addr()
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisDialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %s", addr, logging.SanitizeError(err))
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.Duration("schema_ttl", cfg.SchemaTTL()))
	return client, nil
}
