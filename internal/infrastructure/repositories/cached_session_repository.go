package repositories

import (
	"context"
	"fmt"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
	"livepush/pkg/cache"
)

// CachedSessionRepository wraps a SessionRepository with read caching.
// Session records are immutable after Save, so cached reads never go
// stale except for the recent list, which is invalidated on write.
type CachedSessionRepository struct {
	base  ports.SessionRepository
	cache *cache.CacheWithFallback
	ttl   time.Duration
}

func NewCachedSessionRepository(base ports.SessionRepository, ttl time.Duration) ports.SessionRepository {
	return &CachedSessionRepository{
		base:  base,
		cache: cache.NewCacheWithFallback(ttl),
		ttl:   ttl,
	}
}

func (r *CachedSessionRepository) Save(ctx context.Context, record *domain.SessionRecord) error {
	if err := r.base.Save(ctx, record); err != nil {
		return err
	}
	r.cache.Invalidate("sessions:recent:")
	return nil
}

func (r *CachedSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	cacheKey := fmt.Sprintf("session:%s", id)

	value, err := r.cache.GetOrSet(ctx, cacheKey, func(ctx context.Context) (interface{}, error) {
		return r.base.GetByID(ctx, id)
	}, r.ttl)
	if err != nil {
		return nil, err
	}
	return value.(*domain.SessionRecord), nil
}

func (r *CachedSessionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	cacheKey := fmt.Sprintf("sessions:recent:%d", limit)

	value, err := r.cache.GetOrSet(ctx, cacheKey, func(ctx context.Context) (interface{}, error) {
		return r.base.ListRecent(ctx, limit)
	}, r.ttl)
	if err != nil {
		return nil, err
	}
	return value.([]*domain.SessionRecord), nil
}
