package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

const cachePrefix = "tradedesk:screening:"

// RedisCache is a domain.ResponseCache backed by Redis
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisCache connects to Redis using a redis:// URL
func NewRedisCache(ctx context.Context, redisURL string, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("[OK] Redis connected")
	return newRedisCache(client, logger), nil
}

func newRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// Get returns a cached response; errors count as misses
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.CachedResponse, bool) {
	data, err := c.client.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return nil, false
	}

	var cached domain.CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache entry corrupt")
		return nil, false
	}
	return &cached, true
}

// Set stores a response for ttl
func (c *RedisCache) Set(ctx context.Context, key string, resp *domain.GatewayResponse, ttl time.Duration) {
	data, err := json.Marshal(domain.CachedResponse{GatewayResponse: *resp, StoredAt: time.Now().UTC()})
	if err != nil {
		c.logger.WithError(err).Warn("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, cachePrefix+key, data, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// Name identifies Redis in health reports
func (c *RedisCache) Name() string {
	return "redis"
}

// HealthCheck pings Redis
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache never stores anything; used when REDIS_URL is unset
type NoopCache struct{}

// Get always misses
func (NoopCache) Get(ctx context.Context, key string) (*domain.CachedResponse, bool) {
	return nil, false
}

// Set discards the response
func (NoopCache) Set(ctx context.Context, key string, resp *domain.GatewayResponse, ttl time.Duration) {}
