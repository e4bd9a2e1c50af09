// Package cache keeps the schema context sent to the completion oracle in
// Redis, so DDL introspection and table sampling are not repeated for every
// question.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
)

// DefaultTTL is used when a non-positive TTL is configured.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "dealdesk:schema-context:"

// SchemaCache stores schema text and table samples in Redis. Redis failures
// are logged and treated as misses.
type SchemaCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewSchemaCache creates a cache over client.
func NewSchemaCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *SchemaCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SchemaCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("schema-cache"),
	}
}

func schemaKey(d datasource.Dialect) string {
	return keyPrefix + string(d) + ":schema"
}

func samplesKey(d datasource.Dialect, limit int) string {
	return fmt.Sprintf("%s%s:samples:%d", keyPrefix, d, limit)
}

// Invalidate drops every cached entry for dialect d.
func (c *SchemaCache) Invalidate(ctx context.Context, d datasource.Dialect) error {
	pattern := keyPrefix + string(d) + ":*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan schema cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete schema cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// get loads key into dst. It reports false on a miss or any Redis error.
func (c *SchemaCache) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Schema cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("Discarding undecodable schema cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *SchemaCache) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Schema cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Schema cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// cachedStore serves GetSchema and GetSampleData from the cache and passes
// everything else through.
type cachedStore struct {
	datasource.Store
	cache *SchemaCache
}

// WithSchemaCache wraps store so its schema context is cached. A nil cache
// returns store unchanged.
func WithSchemaCache(store datasource.Store, cache *SchemaCache) datasource.Store {
	if cache == nil {
		return store
	}
	return &cachedStore{Store: store, cache: cache}
}

func (s *cachedStore) GetSchema(ctx context.Context) (string, error) {
	key := schemaKey(s.Dialect())

	var schema string
	if s.cache.get(ctx, key, &schema) {
		return schema, nil
	}

	schema, err := s.Store.GetSchema(ctx)
	if err != nil {
		return "", err
	}
	s.cache.set(ctx, key, schema)
	return schema, nil
}

func (s *cachedStore) GetSampleData(ctx context.Context, limitPerTable int) ([]datasource.TableSample, error) {
	key := samplesKey(s.Dialect(), limitPerTable)

	var samples []datasource.TableSample
	if s.cache.get(ctx, key, &samples) {
		return samples, nil
	}

	samples, err := s.Store.GetSampleData(ctx, limitPerTable)
	if err != nil {
		return nil, err
	}
	s.cache.set(ctx, key, samples)
	return samples, nil
}
