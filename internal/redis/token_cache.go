package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

const (
	tokenCacheKeyPrefix = "alert:token:"
	// DefaultTokenTTL applies when no TTL is configured
	DefaultTokenTTL = 24 * time.Hour
)

// TokenCache stores ERC20 metadata shared by every watcher instance
type TokenCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log logger.Logger
}

// NewTokenCache creates a token cache. A zero ttl uses DefaultTokenTTL.
func NewTokenCache(rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With(logger.F("component", "token-cache")),
	}
}

// cacheKey addresses are case insensitive
func cacheKey(address string) string {
	return tokenCacheKeyPrefix + strings.ToLower(address)
}

// Set caches token metadata
func (c *TokenCache) Set(ctx context.Context, token *models.Token) error {
	if token == nil {
		return fmt.Errorf("token is nil")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := c.rdb.Set(ctx, cacheKey(token.Address), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}

	c.log.Debug("token cached",
		logger.F("token", token.Address),
		logger.F("symbol", token.Symbol),
	)
	return nil
}

// Get returns cached metadata, or nil when the token is not cached
func (c *TokenCache) Get(ctx context.Context, address string) (*models.Token, error) {
	data, err := c.rdb.Get(ctx, cacheKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token models.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes a token from the cache
func (c *TokenCache) Delete(ctx context.Context, address string) error {
	return c.rdb.Del(ctx, cacheKey(address)).Err()
}
