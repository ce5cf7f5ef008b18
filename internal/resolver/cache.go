package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/identra/be-hr-workflows/internal/domain"
)

// CachingResolver memoizes successful resolutions for a short TTL so bursts
// of initiations from the same requestor do not hammer the directory.
// Failures are never cached.
type CachingResolver struct {
	inner Resolver
	cache *cache.Cache
}

// WithCache decorates inner with a cache. A non-positive ttl returns inner
// unchanged.
func WithCache(inner Resolver, ttl time.Duration) Resolver {
	if ttl <= 0 {
		return inner
	}
	return &CachingResolver{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachingResolver) Resolve(ctx context.Context, role domain.RoleID, requestorID int64) (int64, error) {
	key := fmt.Sprintf("%s:%d", strings.ToLower(string(role)), requestorID)
	if v, ok := c.cache.Get(key); ok {
		return v.(int64), nil
	}

	id, err := c.inner.Resolve(ctx, role, requestorID)
	if err != nil {
		return 0, err
	}
	c.cache.SetDefault(key, id)
	return id, nil
}

// Flush drops every cached resolution.
func (c *CachingResolver) Flush() { c.cache.Flush() }
