package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// ResponseCache stores shaped search responses keyed by the canonical
// request hash. It fails open: every error path degrades to a miss.
type ResponseCache struct {
	client *redis.Client
	logger *slog.Logger
}

func New(ctx context.Context, url string, logger *slog.Logger) (*ResponseCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &ResponseCache{client: client, logger: logger}, nil
}

func (c *ResponseCache) Close() error {
	return c.client.Close()
}

func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.AnswerResponse, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		c.logger.Warn("response_cache_get_failed", "error", err)
		return nil, false, nil
	}

	var resp domain.AnswerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("response_cache_decode_failed", "error", err)
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *ResponseCache) Set(ctx context.Context, key string, resp *domain.AnswerResponse, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), raw, ttl).Err(); err != nil {
		c.logger.Warn("response_cache_set_failed", "error", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "search:response:" + key
}
