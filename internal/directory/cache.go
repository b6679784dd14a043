package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "credleak:directory:"

// RedisClient is the part of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cached serves lookups from Redis and stores successful lookups there.
// Cache errors fall through to the wrapped directory.
type Cached struct {
	next   Directory
	client RedisClient
	ttl    time.Duration
}

// NewCached wraps next with a Redis cache.
func NewCached(next Directory, client RedisClient, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, client: client, ttl: ttl}
}

// NewRedisClient connects to the Redis URL (redis://host:port/db).
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Lookup implements Directory.
func (c *Cached) Lookup(ctx context.Context, email string) (*Entry, error) {
	key := cacheKey(email)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e Entry
		if jerr := json.Unmarshal(raw, &e); jerr == nil {
			return &e, nil
		}
		zap.L().Warn("directory: discarding malformed cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("directory: cache read failed", zap.Error(err))
	}

	entry, err := c.next.Lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(entry); jerr == nil {
		if serr := c.client.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			zap.L().Warn("directory: cache write failed", zap.Error(serr))
		}
	}
	return entry, nil
}

func cacheKey(email string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}
