package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/labdeskapp/labdesk/internal/catalog"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/observability"
)

type catalogWriter interface {
	catalogLister
	UpsertTest(ctx context.Context, test *models.LabTest) error
	SetTestActive(ctx context.Context, code string, active bool) error
	UpsertPackage(ctx context.Context, pkg *models.HealthPackage) error
	SetPackageActive(ctx context.Context, code string, active bool) error
	UpsertCategory(ctx context.Context, category *models.Category) error
	GetTestByCode(ctx context.Context, code string) (*models.LabTest, error)
}

type orderLister interface {
	List(ctx context.Context, status *models.OrderStatus, limit, offset int) ([]*models.Order, error)
}

type agentLister interface {
	ListAgents(ctx context.Context) ([]*models.Patient, error)
}

type catalogInvalidator interface {
	Invalidate(ctx context.Context)
}

type catalogParser interface {
	Parse(content []byte) (*catalog.LabCatalog, error)
}

type catalogValidator interface {
	Validate(catalog *catalog.LabCatalog) error
}

// AdminService backs the back-office API: order oversight, catalog
// management, and agent rosters.
type AdminService struct {
	catalog    catalogWriter
	orders     orderLister
	agents     agentLister
	storefront catalogInvalidator
	parser     catalogParser
	validator  catalogValidator
	logger     *slog.Logger
}

func NewAdminService(catalogStore catalogWriter, orders orderLister, agents agentLister, storefront catalogInvalidator, parser catalogParser, validator catalogValidator, logger *slog.Logger) *AdminService {
	return &AdminService{
		catalog:    catalogStore,
		orders:     orders,
		agents:     agents,
		storefront: storefront,
		parser:     parser,
		validator:  validator,
		logger:     logger,
	}
}

type OrderFilter struct {
	Status string
	Limit  int
	Offset int
}

func (s *AdminService) ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	var status *models.OrderStatus
	if filter.Status != "" {
		parsed := models.OrderStatus(filter.Status)
		if !parsed.Valid() {
			return nil, fmt.Errorf("unknown order status: %q", filter.Status)
		}
		status = &parsed
	}
	return s.orders.List(ctx, status, filter.Limit, filter.Offset)
}

func (s *AdminService) ListAgents(ctx context.Context) ([]*models.Patient, error) {
	return s.agents.ListAgents(ctx)
}

func (s *AdminService) ListAllTests(ctx context.Context) ([]*models.LabTest, error) {
	return s.catalog.ListTests(ctx, false)
}

func (s *AdminService) ListAllPackages(ctx context.Context) ([]*models.HealthPackage, error) {
	return s.catalog.ListPackages(ctx, false)
}

func (s *AdminService) SaveTest(ctx context.Context, test *models.LabTest) error {
	if !catalog.IsValidCode(test.Code) {
		return fmt.Errorf("test code is invalid: %q", test.Code)
	}
	if test.PriceCents <= 0 {
		return fmt.Errorf("test price must be positive")
	}
	if err := s.catalog.UpsertTest(ctx, test); err != nil {
		return err
	}
	s.storefront.Invalidate(ctx)
	return nil
}

func (s *AdminService) SetTestActive(ctx context.Context, code string, active bool) error {
	if err := s.catalog.SetTestActive(ctx, code, active); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.storefront.Invalidate(ctx)
	return nil
}

// SavePackage resolves member tests to derive the compare price before
// writing.
func (s *AdminService) SavePackage(ctx context.Context, pkg *models.HealthPackage) error {
	if !catalog.IsValidCode(pkg.Code) {
		return fmt.Errorf("package code is invalid: %q", pkg.Code)
	}
	if pkg.PriceCents <= 0 {
		return fmt.Errorf("package price must be positive")
	}
	if len(pkg.TestCodes) == 0 {
		return fmt.Errorf("package must include at least one test")
	}

	comparePrice := 0
	for _, code := range pkg.TestCodes {
		test, err := s.catalog.GetTestByCode(ctx, code)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("package references unknown test: %s", code)
			}
			return err
		}
		comparePrice += test.PriceCents
	}
	pkg.ComparePriceCents = comparePrice

	if err := s.catalog.UpsertPackage(ctx, pkg); err != nil {
		return err
	}
	s.storefront.Invalidate(ctx)
	return nil
}

func (s *AdminService) SetPackageActive(ctx context.Context, code string, active bool) error {
	if err := s.catalog.SetPackageActive(ctx, code, active); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.storefront.Invalidate(ctx)
	return nil
}

// ImportCatalog replaces catalog entries from a YAML document. The
// whole document validates before any row is written.
func (s *AdminService) ImportCatalog(ctx context.Context, content []byte) (*catalog.LabCatalog, error) {
	span := sentry.StartSpan(
		ctx,
		"service.admin.import_catalog",
		sentry.WithOpName("service.admin"),
		sentry.WithDescription("ImportCatalog"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)

	parsed, err := s.parser.Parse(content)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(parsed); err != nil {
		meter.Count("catalog.import.rejected", 1)
		return nil, err
	}

	for _, category := range parsed.Categories {
		if err := s.catalog.UpsertCategory(ctx, &models.Category{Code: category.Code, Name: category.Name}); err != nil {
			return nil, fmt.Errorf("failed to import category %s: %w", category.Code, err)
		}
	}

	testPrices := make(map[string]int, len(parsed.Tests))
	for _, test := range parsed.Tests {
		testPrices[test.Code] = test.PriceCents
		record := &models.LabTest{
			Code:           test.Code,
			Name:           test.Name,
			Description:    test.Description,
			CategoryCode:   test.Category,
			PriceCents:     test.PriceCents,
			SampleType:     test.SampleType,
			HomeCollection: test.HomeCollection,
			Active:         test.Active,
		}
		if err := s.catalog.UpsertTest(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to import test %s: %w", test.Code, err)
		}
	}

	for _, pkg := range parsed.Packages {
		comparePrice := 0
		for _, code := range pkg.Tests {
			comparePrice += testPrices[code]
		}
		record := &models.HealthPackage{
			Code:              pkg.Code,
			Name:              pkg.Name,
			Description:       pkg.Description,
			TestCodes:         pkg.Tests,
			PriceCents:        pkg.PriceCents,
			ComparePriceCents: comparePrice,
			Active:            pkg.Active,
		}
		if err := s.catalog.UpsertPackage(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to import package %s: %w", pkg.Code, err)
		}
	}

	s.storefront.Invalidate(ctx)
	logger.InfoContext(ctx, "catalog imported",
		slog.Int("categories", len(parsed.Categories)),
		slog.Int("tests", len(parsed.Tests)),
		slog.Int("packages", len(parsed.Packages)),
	)
	meter.Count("catalog.import.applied", 1)

	return parsed, nil
}
