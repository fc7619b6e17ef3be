package modelstore

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

// CachedStore wraps a ModelStore with an in-memory LRU of loaded models.
// Loaded models are immutable, so cached instances are shared between requests.
type CachedStore struct {
	inner   domain.ModelStore
	cache   *lru.Cache[string, domain.Model]
	metrics *observability.Metrics
}

// NewCachedStore creates a cache decorator holding up to maxEntries models.
func NewCachedStore(inner domain.ModelStore, maxEntries int, metrics *observability.Metrics) (*CachedStore, error) {
	cache, err := lru.New[string, domain.Model](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache, metrics: metrics}, nil
}

// Exists always asks the inner store. A cached model whose artifact has been
// removed is evicted so deleting a file disables the model strategy.
func (c *CachedStore) Exists(key string) bool {
	if c.inner.Exists(key) {
		return true
	}
	c.cache.Remove(key)
	return false
}

func (c *CachedStore) Load(key string) (domain.Model, error) {
	if m, ok := c.cache.Get(key); ok {
		c.metrics.ModelCache.WithLabelValues("hit").Inc()
		return m, nil
	}
	c.metrics.ModelCache.WithLabelValues("miss").Inc()

	m, err := c.inner.Load(key)
	if err != nil {
		return nil, err
	}
	// Only cache successful loads so a fixed artifact is picked up on the next request.
	if m != nil {
		c.cache.Add(key, m)
	}
	return m, nil
}

// Purge drops every cached model, forcing artifacts to be re-read.
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached models.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
