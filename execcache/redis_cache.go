package execcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelfi/patternrunner/core"
)

// RedisCache backs the Execution Cache with a shared Redis instance so
// fingerprint hits are visible across engine replicas, using a single
// namespace prefix since this engine has only one cache to isolate.
type RedisCache struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisCache connects to redisURL and scopes every key under namespace
// (default "patternrunner:execcache").
func NewRedisCache(redisURL, namespace string, logger core.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if namespace == "" {
		namespace = "patternrunner:execcache"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to execution cache redis: %w", err)
	}

	return &RedisCache{client: client, namespace: namespace, logger: logger}, nil
}

func (c *RedisCache) key(fingerprint string) string {
	return c.namespace + ":" + fingerprint
}

type wireResult struct {
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	AsOf       string      `json:"asof"`
	TTLSeconds int         `json:"ttl_seconds"`
	Confidence *float64    `json:"confidence,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*core.StepResult, bool) {
	data, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if err != nil {
		return nil, false
	}
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("execution cache: corrupt entry", map[string]interface{}{"fingerprint": fingerprint, "error": err.Error()})
		return nil, false
	}
	return &core.StepResult{
		Value:      w.Value,
		Source:     w.Source,
		AsOf:       w.AsOf,
		TTLSeconds: w.TTLSeconds,
		Confidence: w.Confidence,
		Warnings:   w.Warnings,
	}, true
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, result *core.StepResult, ttl time.Duration) {
	if ttl <= 0 || result == nil {
		return
	}
	w := wireResult{
		Value:      result.Value,
		Source:     result.Source,
		AsOf:       result.AsOf,
		TTLSeconds: result.TTLSeconds,
		Confidence: result.Confidence,
		Warnings:   result.Warnings,
	}
	data, err := json.Marshal(w)
	if err != nil {
		c.logger.Warn("execution cache: failed to marshal entry", map[string]interface{}{"fingerprint": fingerprint, "error": err.Error()})
		return
	}
	if err := c.client.Set(ctx, c.key(fingerprint), data, ttl).Err(); err != nil {
		c.logger.Warn("execution cache: redis set failed", map[string]interface{}{"fingerprint": fingerprint, "error": err.Error()})
	}
}

// Stats queries Redis DBSIZE as an approximation; Redis manages eviction
// and expiry itself so per-process hit/miss counters are not tracked here.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}
	}
	return Stats{Size: int(size)}
}

// Close releases the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
