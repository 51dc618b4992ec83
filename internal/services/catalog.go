package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/labdeskapp/labdesk/internal/cache"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
)

type catalogLister interface {
	ListTests(ctx context.Context, activeOnly bool) ([]*models.LabTest, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]*models.HealthPackage, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
}

const catalogCacheTTL = 5 * time.Minute

// CatalogService serves the storefront catalog with a read-through
// cache. Admin catalog writes invalidate it.
type CatalogService struct {
	store  catalogLister
	cache  cache.Provider
	logger *slog.Logger
}

func NewCatalogService(store catalogLister, cacheProvider cache.Provider, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cacheProvider,
		logger: logger,
	}
}

func (s *CatalogService) ListTests(ctx context.Context) ([]*models.LabTest, error) {
	var tests []*models.LabTest
	if s.cachedList(ctx, "tests", &tests) {
		return tests, nil
	}

	tests, err := s.store.ListTests(ctx, true)
	if err != nil {
		return nil, err
	}
	s.storeList(ctx, "tests", tests)
	return tests, nil
}

func (s *CatalogService) ListPackages(ctx context.Context) ([]*models.HealthPackage, error) {
	var packages []*models.HealthPackage
	if s.cachedList(ctx, "packages", &packages) {
		return packages, nil
	}

	packages, err := s.store.ListPackages(ctx, true)
	if err != nil {
		return nil, err
	}
	s.storeList(ctx, "packages", packages)
	return packages, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*models.Category, error) {
	var categories []*models.Category
	if s.cachedList(ctx, "categories", &categories) {
		return categories, nil
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.storeList(ctx, "categories", categories)
	return categories, nil
}

// Invalidate drops the cached catalog sections after an admin write.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	logger := logging.FromContext(ctx, s.logger)
	for _, section := range []string{"tests", "packages", "categories"} {
		if err := s.cache.Delete(ctx, cache.CatalogKey(section)); err != nil {
			logger.WarnContext(ctx, "failed to invalidate catalog cache",
				slog.String("section", section),
				slog.Any("error", err),
			)
		}
	}
}

func (s *CatalogService) cachedList(ctx context.Context, section string, out any) bool {
	if s.cache == nil {
		return false
	}

	raw, err := s.cache.Get(ctx, cache.CatalogKey(section))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logging.FromContext(ctx, s.logger).WarnContext(ctx, "catalog cache read failed",
				slog.String("section", section),
				slog.Any("error", err),
			)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false
	}
	return true
}

func (s *CatalogService) storeList(ctx context.Context, section string, value any) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.CatalogKey(section), string(raw), catalogCacheTTL); err != nil {
		logging.FromContext(ctx, s.logger).WarnContext(ctx, "catalog cache write failed",
			slog.String("section", section),
			slog.Any("error", err),
		)
	}
}
