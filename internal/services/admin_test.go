package services

import (
	"context"
	"strings"
	"testing"

	"github.com/labdeskapp/labdesk/internal/catalog"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/models"
)

type fakeCatalogStore struct {
	tests      map[string]*models.LabTest
	packages   map[string]*models.HealthPackage
	categories map[string]*models.Category
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		tests:      make(map[string]*models.LabTest),
		packages:   make(map[string]*models.HealthPackage),
		categories: make(map[string]*models.Category),
	}
}

func (f *fakeCatalogStore) ListTests(_ context.Context, activeOnly bool) ([]*models.LabTest, error) {
	var out []*models.LabTest
	for _, test := range f.tests {
		if activeOnly && !test.Active {
			continue
		}
		out = append(out, test)
	}
	return out, nil
}

func (f *fakeCatalogStore) ListPackages(_ context.Context, activeOnly bool) ([]*models.HealthPackage, error) {
	var out []*models.HealthPackage
	for _, pkg := range f.packages {
		if activeOnly && !pkg.Active {
			continue
		}
		out = append(out, pkg)
	}
	return out, nil
}

func (f *fakeCatalogStore) ListCategories(_ context.Context) ([]*models.Category, error) {
	var out []*models.Category
	for _, category := range f.categories {
		out = append(out, category)
	}
	return out, nil
}

func (f *fakeCatalogStore) UpsertTest(_ context.Context, test *models.LabTest) error {
	f.tests[test.Code] = test
	return nil
}

func (f *fakeCatalogStore) SetTestActive(_ context.Context, code string, active bool) error {
	test, ok := f.tests[code]
	if !ok {
		return db.ErrNotFound
	}
	test.Active = active
	return nil
}

func (f *fakeCatalogStore) UpsertPackage(_ context.Context, pkg *models.HealthPackage) error {
	f.packages[pkg.Code] = pkg
	return nil
}

func (f *fakeCatalogStore) SetPackageActive(_ context.Context, code string, active bool) error {
	pkg, ok := f.packages[code]
	if !ok {
		return db.ErrNotFound
	}
	pkg.Active = active
	return nil
}

func (f *fakeCatalogStore) UpsertCategory(_ context.Context, category *models.Category) error {
	f.categories[category.Code] = category
	return nil
}

func (f *fakeCatalogStore) GetTestByCode(_ context.Context, code string) (*models.LabTest, error) {
	test, ok := f.tests[code]
	if !ok {
		return nil, db.ErrNotFound
	}
	return test, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(context.Context) { f.calls++ }

func newAdminFixture() (*AdminService, *fakeCatalogStore, *fakeInvalidator) {
	store := newFakeCatalogStore()
	invalidator := &fakeInvalidator{}
	svc := NewAdminService(store, nil, nil, invalidator, catalog.NewParser(), catalog.NewValidator(), nil)
	return svc, store, invalidator
}

const importYAML = `
categories:
  - code: hematology
    name: Hematology
tests:
  - code: cbc
    name: Complete Blood Count
    category: hematology
    price_cents: 40000
    sample_type: blood
    home_collection: true
    active: true
  - code: lipid
    name: Lipid Profile
    price_cents: 60000
    active: true
packages:
  - code: basic-checkup
    name: Basic Checkup
    tests: [cbc, lipid]
    price_cents: 90000
    active: true
`

func TestImportCatalog(t *testing.T) {
	t.Parallel()

	svc, store, invalidator := newAdminFixture()

	parsed, err := svc.ImportCatalog(context.Background(), []byte(importYAML))
	if err != nil {
		t.Fatalf("ImportCatalog() error = %v", err)
	}
	if len(parsed.Tests) != 2 {
		t.Errorf("parsed tests = %d", len(parsed.Tests))
	}

	if _, ok := store.tests["cbc"]; !ok {
		t.Error("cbc not imported")
	}
	pkg, ok := store.packages["basic-checkup"]
	if !ok {
		t.Fatal("package not imported")
	}
	if pkg.ComparePriceCents != 100000 {
		t.Errorf("compare price = %d, want sum of member tests", pkg.ComparePriceCents)
	}
	if invalidator.calls != 1 {
		t.Errorf("cache invalidations = %d, want 1", invalidator.calls)
	}
}

func TestImportCatalogRejectsInvalidDocument(t *testing.T) {
	t.Parallel()

	svc, store, _ := newAdminFixture()

	bad := strings.Replace(importYAML, "tests: [cbc, lipid]", "tests: [missing]", 1)
	if _, err := svc.ImportCatalog(context.Background(), []byte(bad)); err == nil {
		t.Fatal("ImportCatalog() expected error for unknown test reference")
	}
	if len(store.tests) != 0 {
		t.Error("rows written despite validation failure")
	}
}

func TestSavePackageDerivesComparePrice(t *testing.T) {
	t.Parallel()

	svc, store, invalidator := newAdminFixture()
	store.tests["cbc"] = &models.LabTest{Code: "cbc", Name: "CBC", PriceCents: 40000, Active: true}
	store.tests["lipid"] = &models.LabTest{Code: "lipid", Name: "Lipid", PriceCents: 60000, Active: true}

	pkg := &models.HealthPackage{Code: "duo", Name: "Duo", TestCodes: []string{"cbc", "lipid"}, PriceCents: 80000, Active: true}
	if err := svc.SavePackage(context.Background(), pkg); err != nil {
		t.Fatalf("SavePackage() error = %v", err)
	}
	if pkg.ComparePriceCents != 100000 {
		t.Errorf("compare price = %d", pkg.ComparePriceCents)
	}
	if invalidator.calls == 0 {
		t.Error("cache not invalidated")
	}

	missing := &models.HealthPackage{Code: "bad", Name: "Bad", TestCodes: []string{"nope"}, PriceCents: 1000}
	if err := svc.SavePackage(context.Background(), missing); err == nil {
		t.Error("SavePackage() expected error for unknown member test")
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAdminFixture()
	if _, err := svc.ListOrders(context.Background(), OrderFilter{Status: "misplaced"}); err == nil {
		t.Error("ListOrders() expected error for unknown status")
	}
}
