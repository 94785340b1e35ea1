package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

// Cache is the snapshot store behind CachedProvider.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// RedisCache stores JSON snapshots in redis with a TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, c.TTL).Err()
}

// CachedProvider serves outlines from the cache and falls through to the
// upstream provider on a miss. Cache failures are logged and treated as
// misses; ErrCourseNotFound is never cached.
type CachedProvider struct {
	upstream Provider
	cache    Cache
	log      *zap.Logger
}

func NewCachedProvider(upstream Provider, cache Cache, log *zap.Logger) *CachedProvider {
	return &CachedProvider{upstream: upstream, cache: cache, log: log}
}

func outlineKey(courseID string) string { return "outline:" + courseID }

func (p *CachedProvider) Outline(ctx context.Context, courseID string) (outline.Outline, error) {
	var o outline.Outline
	hit, err := p.cache.Get(ctx, outlineKey(courseID), &o)
	if err != nil {
		p.log.Warn("outline cache read failed", zap.String("course_id", courseID), zap.Error(err))
	}
	if hit {
		return o, nil
	}

	o, err = p.upstream.Outline(ctx, courseID)
	if err != nil {
		return outline.Outline{}, err
	}
	if err := p.cache.Set(ctx, outlineKey(courseID), o); err != nil {
		p.log.Warn("outline cache write failed", zap.String("course_id", courseID), zap.Error(err))
	}
	return o, nil
}
