package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/config"
)

func TestNewRedisClient_NotConfigured(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Port: 6379}, zap.New(core))
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Equal(t, 1, logs.FilterMessage("Redis not configured, schema cache disabled").Len())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := NewRedisClient(ctx, &config.RedisConfig{Host: "redis.invalid", Port: 6379}, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "ping redis at redis.invalid:6379")
}
