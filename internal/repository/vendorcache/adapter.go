package vendorcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dondelocompro/pricehub/internal/db"
	"github.com/dondelocompro/pricehub/internal/domain"
)

// store is the consumer interface for the vendor result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedAdapter caches one vendor's search results in a key-value store.
// It decorates a live adapter: a hit skips the vendor call entirely, a
// miss goes through singleflight so concurrent identical queries against
// the same vendor issue one upstream call. Cache trouble degrades to a
// live lookup, never to a failed search.
type CachedAdapter struct {
	vendorID   string
	inner      domain.Adapter
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	group      singleflight.Group
}

// New creates a caching decorator for one vendor's adapter.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	vendorID string,
	inner domain.Adapter,
	s store,
	keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedAdapter {
	return &CachedAdapter{
		vendorID:   vendorID,
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Search returns cached items or calls the inner adapter.
func (c *CachedAdapter) Search(ctx context.Context, query string, maxResults int) ([]domain.Item, error) {
	key := c.cacheKey(query, maxResults)

	if items, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return items, nil
	}

	c.incCache("miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := c.inner.Search(ctx, query, maxResults)
		if err != nil {
			return nil, err
		}
		c.putToCache(ctx, key, items)
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vendor %s lookup: %w", c.vendorID, err)
	}
	return v.([]domain.Item), nil
}

func (c *CachedAdapter) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedAdapter) cacheKey(query string, maxResults int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", c.vendorID, query, maxResults)))
	return c.keyPrefix + "vendor_cache:" + hex.EncodeToString(h[:])
}

func (c *CachedAdapter) getFromCache(ctx context.Context, key string) ([]domain.Item, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached vendor results", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		c.logger.Warn("Failed to parse cached vendor results", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return items, true
}

func (c *CachedAdapter) putToCache(ctx context.Context, key string, items []domain.Item) {
	data, err := json.Marshal(items)
	if err != nil {
		c.logger.Warn("Failed to encode vendor results for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache vendor results", zap.String("key", key), zap.Error(err))
	}
}
