package models

import (
	"time"

	"github.com/google/uuid"
)

// LabTest is a single bookable diagnostic test.
type LabTest struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CategoryCode   string    `json:"category_code,omitempty"`
	PriceCents     int       `json:"price_cents"`
	SampleType     string    `json:"sample_type,omitempty"`
	HomeCollection bool      `json:"home_collection"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HealthPackage bundles tests at a package price. ComparePriceCents is the
// sum of the member test prices at the time the package was last saved; the
// storefront shows it as the strike-through price and the pricer derives the
// discount from it.
type HealthPackage struct {
	ID                uuid.UUID `json:"id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	TestCodes         []string  `json:"test_codes"`
	PriceCents        int       `json:"price_cents"`
	ComparePriceCents int       `json:"compare_price_cents"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Category struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}
