package kma

import (
	"context"
	"fmt"

	"github.com/couchcryptid/running-index-service/internal/cache"
	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

// CachedFetcher wraps a Fetcher with an in-memory LRU cache. A published
// batch never changes, so entries keyed by base need no expiry.
type CachedFetcher struct {
	inner   Fetcher
	cache   *cache.LRU[[]domain.Item]
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, maxEntries int, metrics *observability.Metrics) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		cache:   cache.New[[]domain.Item](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, product domain.Product, cell domain.GridCell, base domain.Base) ([]domain.Item, error) {
	key := fmt.Sprintf("%s|%d|%d|%s", product, cell.NX, cell.NY, base)
	if items, ok := c.cache.Get(key); ok {
		c.metrics.KMACache.WithLabelValues(string(product), "hit").Inc()
		return items, nil
	}
	c.metrics.KMACache.WithLabelValues(string(product), "miss").Inc()

	items, err := c.inner.Fetch(ctx, product, cell, base)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, items)
	return items, nil
}

// CheckReadiness delegates to the wrapped fetcher when it reports readiness.
func (c *CachedFetcher) CheckReadiness(ctx context.Context) error {
	if r, ok := c.inner.(interface{ CheckReadiness(context.Context) error }); ok {
		return r.CheckReadiness(ctx)
	}
	return nil
}
