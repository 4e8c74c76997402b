// Package cache provides caching decorators for detection use cases.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deepfake_backend/internal/feature/detection/domain/entity"
	"deepfake_backend/internal/feature/detection/usecase"
)

const (
	defaultTTL       = 10 * time.Minute
	defaultNamespace = "predictions"
	scanBatchSize    = 200
)

// CachingDetector decorates a Detector with Redis caching keyed by payload digest.
// Only successful model results are stored. Errors and the unavailable
// placeholder always go through to the inner detector.
type CachingDetector struct {
	inner     usecase.Detector
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.Detector = (*CachingDetector)(nil)

// NewCachingDetector decorates a Detector with Redis caching.
// If ttl is 0, it defaults to 10 minutes. If namespace is empty, it uses "predictions".
func NewCachingDetector(rdb *redis.Client, ttl time.Duration, inner usecase.Detector, namespace string) *CachingDetector {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &CachingDetector{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// AudioAvailable reports whether the inner detector has an audio model.
func (c *CachingDetector) AudioAvailable() bool {
	return c.inner.AudioAvailable()
}

// PredictImage serves an image verdict from cache when possible.
func (c *CachingDetector) PredictImage(ctx context.Context, up entity.Upload) (entity.Result, error) {
	return c.predict(ctx, entity.KindImage, up, c.inner.PredictImage)
}

// PredictAudio serves an audio verdict from cache when possible.
func (c *CachingDetector) PredictAudio(ctx context.Context, up entity.Upload) (entity.Result, error) {
	if !c.inner.AudioAvailable() {
		return c.inner.PredictAudio(ctx, up)
	}
	return c.predict(ctx, entity.KindAudio, up, c.inner.PredictAudio)
}

type predictFunc func(ctx context.Context, up entity.Upload) (entity.Result, error)

func (c *CachingDetector) predict(ctx context.Context, kind entity.Kind, up entity.Upload, next predictFunc) (entity.Result, error) {
	// Bypass cache if Redis is not configured or the request would be rejected anyway
	if c.rdb == nil || len(up.Data) == 0 || usecase.CheckContentType(kind, up.ContentType) != nil {
		return next(ctx, up)
	}

	key := c.cacheKey(kind, usecase.Digest(up.Data))

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out entity.Result
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the model
	out, err := next(ctx, up)
	if err != nil {
		return entity.Result{}, err
	}
	if out.Verdict == entity.VerdictUnavailable {
		return out, nil
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

// Purge deletes every entry under the namespace. It is called after models
// are (re)loaded so stale verdicts from a previous checkpoint are not served.
func (c *CachingDetector) Purge(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

// cacheKey generates a cache key for a payload digest.
func (c *CachingDetector) cacheKey(kind entity.Kind, digest string) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, kind, digest)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingDetector) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}
