package mapbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/running-index-service/internal/cache"
	"github.com/couchcryptid/running-index-service/internal/domain"
	"github.com/couchcryptid/running-index-service/internal/observability"
)

// CachedGeocoder memoizes found places. Misses and errors always reach the
// wrapped geocoder again.
type CachedGeocoder struct {
	inner   domain.Geocoder
	places  *cache.LRU[domain.Place]
	metrics *observability.Metrics
}

func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		places:  cache.New[domain.Place](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) Search(ctx context.Context, query string) (domain.Place, error) {
	key := "q:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
	return c.lookup(key, "forward", func() (domain.Place, error) {
		return c.inner.Search(ctx, query)
	})
}

// Locate rounds to four decimals (about 11 m) for the cache key.
func (c *CachedGeocoder) Locate(ctx context.Context, p domain.GeoPoint) (domain.Place, error) {
	key := fmt.Sprintf("p:%.4f,%.4f", p.Lat, p.Lon)
	return c.lookup(key, "reverse", func() (domain.Place, error) {
		return c.inner.Locate(ctx, p)
	})
}

func (c *CachedGeocoder) lookup(key, method string, fetch func() (domain.Place, error)) (domain.Place, error) {
	if place, ok := c.places.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(method, "hit").Inc()
		return place, nil
	}
	c.metrics.GeocodeCache.WithLabelValues(method, "miss").Inc()

	place, err := fetch()
	if err != nil {
		return domain.Place{}, err
	}
	c.places.Put(key, place)
	return place, nil
}
