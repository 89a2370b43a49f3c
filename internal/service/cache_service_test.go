package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCacheRepo struct {
	stubCacheRepo
	getErr    error
	deleteErr map[string]error
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	return f.stubCacheRepo.Get(ctx, key, dest)
}

func (f *failingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	if err := f.deleteErr[pattern]; err != nil {
		f.patterns = append(f.patterns, pattern)
		return err
	}
	return f.stubCacheRepo.DeleteByPattern(ctx, pattern)
}

func TestCacheServiceDisabledIsAMiss(t *testing.T) {
	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, nilSvc.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, nilSvc.Invalidate(context.Background(), "*"))

	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.store)
}

func TestCacheServiceRoundTrip(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(&stubCacheRepo{}, metrics, 0, nil, true)

	var out []string
	hit, err := svc.Get(context.Background(), "risk:interventions:r1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "risk:interventions:r1", []string{"a"}, 0))
	hit, err = svc.Get(context.Background(), "risk:interventions:r1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, out)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestCacheServiceGetError(t *testing.T) {
	svc := NewCacheService(&failingCacheRepo{getErr: errors.New("redis down")}, nil, time.Minute, nil, true)

	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateAttemptsEveryPattern(t *testing.T) {
	repo := &failingCacheRepo{deleteErr: map[string]error{"a:*": errors.New("scan failed")}}
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	err := svc.Invalidate(context.Background(), "a:*", "b:*")
	assert.Error(t, err)
	assert.Equal(t, []string{"a:*", "b:*"}, repo.patterns)
}
