package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/program-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	items   map[string][]byte
	getErr  error
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func TestCachedProgramsServesRepeatLookupsFromCache(t *testing.T) {
	inner := &programsFake{programs: map[string]models.Program{"P1": {UID: "P1", Name: "Malaria", Color: "#aa0000"}}}
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	programs := NewCachedPrograms(inner, cache, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		color, err := programs.Color(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, "#aa0000", color)
	}
	assert.Equal(t, 1, inner.lookups)

	require.NoError(t, programs.Invalidate(ctx))
	_, err := programs.FindByUID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.lookups)
}

func TestCachedProgramsDoesNotCacheNotFound(t *testing.T) {
	inner := &programsFake{programs: map[string]models.Program{}}
	repo := newMemoryCacheRepo()
	programs := NewCachedPrograms(inner, NewCacheService(repo, nil, time.Minute, nil, true), time.Minute)
	ctx := context.Background()

	_, err := programs.FindByUID(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = programs.FindByUID(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, 2, inner.lookups)
	assert.Empty(t, repo.items)
}

func TestCachedProgramsTreatsCacheErrorsAsMiss(t *testing.T) {
	inner := &programsFake{programs: map[string]models.Program{"P1": {UID: "P1"}}}
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection reset")
	programs := NewCachedPrograms(inner, NewCacheService(repo, nil, time.Minute, nil, true), time.Minute)

	program, err := programs.FindByUID(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", program.UID)
}

func TestCachedProgramsPassThroughWhenDisabled(t *testing.T) {
	inner := &programsFake{programs: map[string]models.Program{"P1": {UID: "P1"}}}
	repo := newMemoryCacheRepo()
	programs := NewCachedPrograms(inner, NewCacheService(repo, nil, time.Minute, nil, false), time.Minute)
	ctx := context.Background()

	_, err := programs.FindByUID(ctx, "P1")
	require.NoError(t, err)
	_, err = programs.FindByUID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.lookups)
	assert.Empty(t, repo.items)
}
