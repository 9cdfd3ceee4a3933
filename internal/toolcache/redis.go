package toolcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis.
const DefaultKeyPrefix = "ehrlich:toolcache:"

// RedisCache shares tool results across processes. Expiry is delegated to Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisCache wraps client. An empty prefix selects DefaultKeyPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger.Named("toolcache")}
}

func (c *RedisCache) Get(ctx context.Context, tool, argsHash string) (string, bool) {
	val, err := c.client.Get(ctx, Key(c.prefix, tool, argsHash)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("tool", tool), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Put(ctx context.Context, tool, argsHash, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, Key(c.prefix, tool, argsHash), value, ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", zap.String("tool", tool), zap.Error(err))
	}
}
