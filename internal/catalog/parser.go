package catalog

// Package catalog provides catalog file parsing functionality.

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LabCatalog is the YAML document an admin imports to seed or refresh
// the test and package catalog.
type LabCatalog struct {
	Categories []CategoryConfig `yaml:"categories"`
	Tests      []TestConfig     `yaml:"tests"`
	Packages   []PackageConfig  `yaml:"packages"`
}

type CategoryConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type TestConfig struct {
	Code           string `yaml:"code"`
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Category       string `yaml:"category"`
	PriceCents     int    `yaml:"price_cents"`
	SampleType     string `yaml:"sample_type"`
	HomeCollection bool   `yaml:"home_collection"`
	Active         bool   `yaml:"active"`
}

type PackageConfig struct {
	Code       string   `yaml:"code"`
	Name       string   `yaml:"name"`
	Description string  `yaml:"description"`
	Tests      []string `yaml:"tests"`
	PriceCents int      `yaml:"price_cents"`
	Active     bool     `yaml:"active"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*LabCatalog, error) {
	var catalog LabCatalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &catalog, nil
}

func (p *Parser) ParseFromString(content string) (*LabCatalog, error) {
	return p.Parse([]byte(content))
}
