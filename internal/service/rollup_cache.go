package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

// RollupStore is the key/value backend behind RollupCache.
type RollupStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// RollupCache memoises class rollup reports. Keys are
// "rollups:<class_id>:<class_subject_id>" so a roster change can drop a
// whole class while a score change drops a single offering. Backend
// failures are logged and treated as misses; the database stays the
// source of truth.
type RollupCache struct {
	store   RollupStore
	metrics cacheObserver
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRollupCache constructs a RollupCache. A nil store disables caching.
func NewRollupCache(store RollupStore, metrics cacheObserver, ttl time.Duration, log *zap.Logger) *RollupCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RollupCache{store: store, metrics: metrics, ttl: ttl, logger: log}
}

// Enabled reports whether lookups can ever hit.
func (c *RollupCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Lookup decodes the cached report for the offering into dest.
func (c *RollupCache) Lookup(ctx context.Context, classID, classSubjectID string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	start := time.Now()
	err := c.store.Get(ctx, rollupKey(classID, classSubjectID), dest)
	c.observeRead(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		logger.FromContext(ctx, c.logger).Warn("rollup cache read failed", zap.String("class_subject_id", classSubjectID), zap.Error(err))
	}
	return err == nil
}

// Store caches report for the offering.
func (c *RollupCache) Store(ctx context.Context, classID, classSubjectID string, report interface{}) {
	if !c.Enabled() {
		return
	}
	start := time.Now()
	err := c.store.Set(ctx, rollupKey(classID, classSubjectID), report, c.ttl)
	if c.metrics != nil {
		c.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		logger.FromContext(ctx, c.logger).Warn("rollup cache write failed", zap.String("class_subject_id", classSubjectID), zap.Error(err))
	}
}

// ForgetOffering drops the cached report of one offering.
func (c *RollupCache) ForgetOffering(ctx context.Context, classSubjectID string) {
	c.forget(ctx, "rollups:*:"+classSubjectID)
}

// ForgetClass drops every cached report of a class.
func (c *RollupCache) ForgetClass(ctx context.Context, classID string) {
	c.forget(ctx, "rollups:"+classID+":*")
}

func (c *RollupCache) forget(ctx context.Context, pattern string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.DeleteByPattern(ctx, pattern); err != nil {
		logger.FromContext(ctx, c.logger).Warn("rollup cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func (c *RollupCache) observeRead(hit bool, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(hit, d)
	}
}

func rollupKey(classID, classSubjectID string) string {
	return "rollups:" + classID + ":" + classSubjectID
}
