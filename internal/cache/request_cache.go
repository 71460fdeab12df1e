package cache

import (
	"context"
	"sync"
	"time"

	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const requestCacheName = "requests"

// RequestLoader reads a committed request aggregate from the store
type RequestLoader func(ctx context.Context, requestID string) (*models.RequestAggregate, error)

// RequestCache is a read-through cache of request aggregate snapshots.
// Writers call Invalidate after every commit; a load that raced with an
// invalidation is returned to its caller but never stored.
// Invalidation is local to the process.
type RequestCache struct {
	cache    *gocache.Cache
	load     RequestLoader
	disabled bool

	mu         sync.Mutex // guards generation and the check-and-store after a load
	generation uint64
}

// NewRequestCache creates a new request cache. When disabled, every Get goes to the loader.
func NewRequestCache(ttl time.Duration, disabled bool, load RequestLoader) *RequestCache {
	if disabled {
		logger.Warn("Request cache is disabled, reading from the store on every request")
	}
	return &RequestCache{
		cache:    gocache.New(ttl, 2*ttl),
		load:     load,
		disabled: disabled,
	}
}

// Get returns the aggregate from cache or loads it on a miss
func (rc *RequestCache) Get(ctx context.Context, requestID string) (*models.RequestAggregate, error) {
	if rc.disabled {
		return rc.load(ctx, requestID)
	}

	if data, found := rc.cache.Get(requestID); found {
		agg, ok := data.(*models.RequestAggregate)
		if ok {
			metrics.CacheHits.WithLabelValues(requestCacheName).Inc()
			return agg.Clone(), nil
		}
		logger.Error("Invalid request cache data type", zap.String("request_id", requestID))
		rc.cache.Delete(requestID)
	}

	metrics.CacheMisses.WithLabelValues(requestCacheName).Inc()

	generation := rc.currentGeneration()
	agg, err := rc.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	rc.storeIfCurrent(requestID, generation, agg)
	return agg, nil
}

func (rc *RequestCache) currentGeneration() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.generation
}

// storeIfCurrent caches agg unless an invalidation happened since generation was read
func (rc *RequestCache) storeIfCurrent(requestID string, generation uint64, agg *models.RequestAggregate) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.generation != generation {
		return false
	}
	rc.cache.SetDefault(requestID, agg.Clone())
	metrics.CacheSize.WithLabelValues(requestCacheName).Set(float64(rc.cache.ItemCount()))
	return true
}

// Invalidate drops a request after it was written
func (rc *RequestCache) Invalidate(requestID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.generation++
	rc.cache.Delete(requestID)
	metrics.CacheSize.WithLabelValues(requestCacheName).Set(float64(rc.cache.ItemCount()))
}

// Len returns the number of cached requests
func (rc *RequestCache) Len() int {
	return rc.cache.ItemCount()
}

