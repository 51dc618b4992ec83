package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdeskapp/labdesk/internal/models"
)

type CatalogStore struct {
	pool *pgxpool.Pool
}

func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const testColumns = `id, code, name, description, category_code, price_cents, sample_type,
	home_collection, active, created_at, updated_at`

const packageColumns = `id, code, name, description, test_codes, price_cents, compare_price_cents,
	active, created_at, updated_at`

func (s *CatalogStore) ListTests(ctx context.Context, activeOnly bool) ([]*models.LabTest, error) {
	query := `SELECT ` + testColumns + ` FROM lab_tests`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab tests: %w", err)
	}
	defer rows.Close()

	var tests []*models.LabTest
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lab test: %w", err)
		}
		tests = append(tests, test)
	}
	return tests, rows.Err()
}

func (s *CatalogStore) GetTestByCode(ctx context.Context, code string) (*models.LabTest, error) {
	test, err := scanTest(s.pool.QueryRow(ctx, `SELECT `+testColumns+` FROM lab_tests WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lab test: %w", err)
	}
	return test, nil
}

// UpsertTest inserts or updates by code.
func (s *CatalogStore) UpsertTest(ctx context.Context, test *models.LabTest) error {
	if test.ID == uuid.Nil {
		test.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO lab_tests (id, code, name, description, category_code, price_cents, sample_type, home_collection, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category_code = EXCLUDED.category_code,
			price_cents = EXCLUDED.price_cents,
			sample_type = EXCLUDED.sample_type,
			home_collection = EXCLUDED.home_collection,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		test.ID, test.Code, test.Name, test.Description, test.CategoryCode,
		test.PriceCents, test.SampleType, test.HomeCollection, test.Active,
	)
	if err := row.Scan(&test.ID, &test.CreatedAt, &test.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert lab test: %w", err)
	}
	return nil
}

// SetTestActive flips availability without touching pricing.
func (s *CatalogStore) SetTestActive(ctx context.Context, code string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lab_tests SET active = $1, updated_at = now() WHERE code = $2`,
		active, code,
	)
	if err != nil {
		return fmt.Errorf("failed to update lab test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CatalogStore) ListPackages(ctx context.Context, activeOnly bool) ([]*models.HealthPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM health_packages`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list health packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.HealthPackage
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health package: %w", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

func (s *CatalogStore) GetPackageByCode(ctx context.Context, code string) (*models.HealthPackage, error) {
	pkg, err := scanPackage(s.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM health_packages WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get health package: %w", err)
	}
	return pkg, nil
}

func (s *CatalogStore) UpsertPackage(ctx context.Context, pkg *models.HealthPackage) error {
	if pkg.ID == uuid.Nil {
		pkg.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO health_packages (id, code, name, description, test_codes, price_cents, compare_price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			test_codes = EXCLUDED.test_codes,
			price_cents = EXCLUDED.price_cents,
			compare_price_cents = EXCLUDED.compare_price_cents,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		pkg.ID, pkg.Code, pkg.Name, pkg.Description, pkg.TestCodes,
		pkg.PriceCents, pkg.ComparePriceCents, pkg.Active,
	)
	if err := row.Scan(&pkg.ID, &pkg.CreatedAt, &pkg.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert health package: %w", err)
	}
	return nil
}

func (s *CatalogStore) SetPackageActive(ctx context.Context, code string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE health_packages SET active = $1, updated_at = now() WHERE code = $2`,
		active, code,
	)
	if err != nil {
		return fmt.Errorf("failed to update health package: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CatalogStore) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		var category models.Category
		if err := rows.Scan(&category.ID, &category.Code, &category.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &category)
	}
	return categories, rows.Err()
}

func (s *CatalogStore) UpsertCategory(ctx context.Context, category *models.Category) error {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO categories (id, code, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		category.ID, category.Code, category.Name,
	)
	if err := row.Scan(&category.ID); err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func scanTest(row pgx.Row) (*models.LabTest, error) {
	var test models.LabTest
	err := row.Scan(
		&test.ID, &test.Code, &test.Name, &test.Description, &test.CategoryCode,
		&test.PriceCents, &test.SampleType, &test.HomeCollection, &test.Active,
		&test.CreatedAt, &test.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func scanPackage(row pgx.Row) (*models.HealthPackage, error) {
	var pkg models.HealthPackage
	err := row.Scan(
		&pkg.ID, &pkg.Code, &pkg.Name, &pkg.Description, &pkg.TestCodes,
		&pkg.PriceCents, &pkg.ComparePriceCents, &pkg.Active,
		&pkg.CreatedAt, &pkg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}
