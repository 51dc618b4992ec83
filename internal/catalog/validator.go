package catalog

// Package catalog provides catalog validation.

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var codeRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_-]{0,62}[a-z0-9])?$`)

// IsValidCode validates a catalog code (lowercase, 1-64 chars, no
// leading/trailing separator).
func IsValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

func (v *Validator) Validate(catalog *LabCatalog) error {
	if len(catalog.Tests) == 0 {
		return fmt.Errorf("at least one test is required")
	}

	categories := make(map[string]bool)
	for i, category := range catalog.Categories {
		if err := v.validateCategory(&category); err != nil {
			return fmt.Errorf("category %d validation failed: %w", i, err)
		}

		if categories[category.Code] {
			return fmt.Errorf("duplicate category code: %s", category.Code)
		}
		categories[category.Code] = true
	}

	testCodes := make(map[string]bool)
	for i, test := range catalog.Tests {
		if err := v.validateTest(&test); err != nil {
			return fmt.Errorf("test %d validation failed: %w", i, err)
		}

		if testCodes[test.Code] {
			return fmt.Errorf("duplicate test code: %s", test.Code)
		}
		testCodes[test.Code] = true

		if test.Category != "" && !categories[test.Category] {
			return fmt.Errorf("test %s references unknown category: %s", test.Code, test.Category)
		}
	}

	packageCodes := make(map[string]bool)
	for i, pkg := range catalog.Packages {
		if err := v.validatePackage(&pkg); err != nil {
			return fmt.Errorf("package %d validation failed: %w", i, err)
		}

		if packageCodes[pkg.Code] {
			return fmt.Errorf("duplicate package code: %s", pkg.Code)
		}
		packageCodes[pkg.Code] = true

		for _, testCode := range pkg.Tests {
			if !testCodes[testCode] {
				return fmt.Errorf("package %s references unknown test: %s", pkg.Code, testCode)
			}
		}
	}

	return nil
}

func (v *Validator) validateCategory(category *CategoryConfig) error {
	if !IsValidCode(category.Code) {
		return fmt.Errorf("category code is invalid: %q", category.Code)
	}
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	return nil
}

func (v *Validator) validateTest(test *TestConfig) error {
	if !IsValidCode(test.Code) {
		return fmt.Errorf("test code is invalid: %q", test.Code)
	}

	if strings.TrimSpace(test.Name) == "" {
		return fmt.Errorf("test name is required")
	}

	if test.PriceCents <= 0 {
		return fmt.Errorf("test price must be positive")
	}

	return nil
}

func (v *Validator) validatePackage(pkg *PackageConfig) error {
	if !IsValidCode(pkg.Code) {
		return fmt.Errorf("package code is invalid: %q", pkg.Code)
	}

	if strings.TrimSpace(pkg.Name) == "" {
		return fmt.Errorf("package name is required")
	}

	if pkg.PriceCents <= 0 {
		return fmt.Errorf("package price must be positive")
	}

	if len(pkg.Tests) == 0 {
		return fmt.Errorf("package must include at least one test")
	}

	seen := make(map[string]bool)
	for _, testCode := range pkg.Tests {
		if seen[testCode] {
			return fmt.Errorf("package lists test %s more than once", testCode)
		}
		seen[testCode] = true
	}

	return nil
}
