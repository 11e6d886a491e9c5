package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"schemapipe/pkg/contracts/domain"
)

// DefaultContract returns the built-in target schema used when no
// contract.yaml exists. Required fields follow the standard sales output:
// provider, article, date and amount must always be present.
func DefaultContract() *domain.Contract {
	return &domain.Contract{
		Fields: []domain.CanonicalField{
			{Name: "provider_id", Type: domain.FieldTypeString, Required: true,
				Synonyms: []string{"provider", "vendor", "supplier", "source", "partner"}},
			{Name: "article_sku", Type: domain.FieldTypeString, Required: true,
				Synonyms: []string{"sku", "item", "material", "product"}},
			{Name: "report_date", Type: domain.FieldTypeDate, Required: true,
				Synonyms: []string{"date", "period", "month", "time", "year"}},
			{Name: "sales_qty", Type: domain.FieldTypeNumber,
				Synonyms: []string{"qty", "quantity", "units", "volume"}},
			{Name: "sales_amount", Type: domain.FieldTypeNumber, Required: true,
				Synonyms: []string{"amount", "total", "revenue", "sales", "net", "gross"}},
			{Name: "order_id", Type: domain.FieldTypeString,
				Synonyms: []string{"order", "po number", "reference"}},
			{Name: "region", Type: domain.FieldTypeString,
				Synonyms: []string{"region", "area", "location"}},
			{Name: "unit_price", Type: domain.FieldTypeNumber,
				Synonyms: []string{"unit_price", "price", "unit cost", "rate"}},
		},
	}
}

// LoadContract reads the contract file. A missing file falls back to the
// built-in default; a malformed or invalid file is an error, never a silent
// fallback.
func LoadContract(path string) (*domain.Contract, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultContract(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contract %s: %w", path, err)
	}

	var contract domain.Contract
	if err := yaml.Unmarshal(data, &contract); err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", path, err)
	}

	normalizeContract(&contract)
	if err := contract.Validate(); err != nil {
		return nil, fmt.Errorf("invalid contract %s: %w", path, err)
	}
	return &contract, nil
}

// normalizeContract trims whitespace and drops empty synonym entries so the
// mapper never sees blank lookup keys.
func normalizeContract(c *domain.Contract) {
	for i := range c.Fields {
		cleaned := c.Fields[i].Synonyms[:0]
		for _, s := range c.Fields[i].Synonyms {
			if s = strings.TrimSpace(s); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		c.Fields[i].Synonyms = cleaned
	}
}
