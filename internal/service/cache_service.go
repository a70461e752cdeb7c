package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

// Cache keys. The repository adds its own namespace prefix.
const (
	cacheKeyActiveCourses = "courses:active"
	cacheKeyMeritPattern  = "merit:*"
)

func meritCacheKey(filter models.MeritFilter) string {
	course := filter.CourseID
	if course == "" {
		course = "all"
	}
	category := strings.ToLower(strings.TrimSpace(filter.Category))
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("merit:%s:%s", course, category)
}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService wraps the cache repository with metrics and fail-open semantics:
// read and write failures are logged and the caller falls through to the database.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
// Transport errors are reported as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Set stores the value in cache. ttl <= 0 uses the default TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// InvalidateCatalog drops the cached active course catalog.
func (s *CacheService) InvalidateCatalog(ctx context.Context) {
	s.Invalidate(ctx, cacheKeyActiveCourses)
}

// InvalidateMerit drops every cached merit list.
func (s *CacheService) InvalidateMerit(ctx context.Context) {
	s.Invalidate(ctx, cacheKeyMeritPattern)
}

// remember returns the cached value for key or loads, stores and returns it.
// The boolean reports a cache hit.
func remember[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if cache.Get(ctx, key, &cached) {
		return cached, true, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, false, err
	}
	cache.Set(ctx, key, value, ttl)
	return value, false, nil
}
