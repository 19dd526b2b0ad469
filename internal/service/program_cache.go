package service

import (
	"context"
	"time"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

const programCachePrefix = "programs:"

// CachedPrograms serves program reference data from cache before hitting the store.
// Not-found results are never cached.
type CachedPrograms struct {
	inner programColorReader
	cache *CacheService
	ttl   time.Duration
}

// NewCachedPrograms wraps inner with cache. A disabled cache passes every call through.
func NewCachedPrograms(inner programColorReader, cache *CacheService, ttl time.Duration) *CachedPrograms {
	return &CachedPrograms{inner: inner, cache: cache, ttl: ttl}
}

// FindByUID returns the program with uid.
func (c *CachedPrograms) FindByUID(ctx context.Context, uid string) (*models.Program, error) {
	key := programCachePrefix + uid
	var cached models.Program
	if c.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	program, err := c.inner.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, program, c.ttl)
	return program, nil
}

// Color returns the program's color token.
func (c *CachedPrograms) Color(ctx context.Context, uid string) (string, error) {
	program, err := c.FindByUID(ctx, uid)
	if err != nil {
		return "", err
	}
	return program.Color, nil
}

// Invalidate drops every cached program.
func (c *CachedPrograms) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx, programCachePrefix+"*")
}
