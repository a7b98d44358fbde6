package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scribe/api/internal/workspace"
)

// Cache stores generated template text keyed by source content, so repeated
// generations of an unchanged note skip the provider call.
type Cache interface {
	Get(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, bool, error)
	Set(ctx context.Context, templateType workspace.TemplateType, sourceText, generated string) error
}

// RedisCache implements Cache using Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "gen:",
		ttl:    7 * 24 * time.Hour,
	}
}

// key hashes the source text so the cache key stays bounded regardless of
// note length. The template type is part of the key: the same source note
// generates different output per template.
func (c *RedisCache) key(templateType workspace.TemplateType, sourceText string) string {
	sum := sha256.Sum256([]byte(sourceText))
	return c.prefix + string(templateType) + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.key(templateType, sourceText)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup cached generation: %w", err)
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, templateType workspace.TemplateType, sourceText, generated string) error {
	if err := c.client.Set(ctx, c.key(templateType, sourceText), generated, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache generation: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
