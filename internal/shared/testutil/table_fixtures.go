package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"schemapipe/pkg/contracts/domain"
)

// TableFixtures provides test data and utilities for pipeline testing
type TableFixtures struct {
	TestDataDir string
}

// NewTableFixtures creates a new fixtures manager
func NewTableFixtures(testDataDir string) *TableFixtures {
	return &TableFixtures{
		TestDataDir: testDataDir,
	}
}

// GetCleanTable returns a table with the header on the first row
func (f *TableFixtures) GetCleanTable() domain.RawTable {
	return domain.RawTable{
		SourceFile: "clean.xlsx",
		Sheet:      "Sheet1",
		Rows: [][]string{
			{"Order #", "Order Date", "Cust ID", "Qty", "Unit Price"},
			{"1001", "2024-01-15", "C-100", "2", "19.99"},
			{"1002", "2024-01-16", "C-101", "1", "5.50"},
			{"1003", "2024-01-16", "C-100", "4", "12.00"},
		},
	}
}

// GetBannerTable returns a table with banner rows above the header
func (f *TableFixtures) GetBannerTable() domain.RawTable {
	return domain.RawTable{
		SourceFile: "banner.xlsx",
		Sheet:      "Report",
		Rows: [][]string{
			{"ACME Corporation", "", "", "", ""},
			{"Monthly Sales Report", "", "", "", ""},
			{"", "", "", "", ""},
			{"Order #", "Order Date", "Cust ID", "Qty", "Unit Price"},
			{"1001", "2024-01-15", "C-100", "2", "19.99"},
			{"1002", "2024-01-16", "C-101", "1", "5.50"},
		},
	}
}

// GetMergedHeaderTable returns a table whose header contains a merged range
func (f *TableFixtures) GetMergedHeaderTable() domain.RawTable {
	return domain.RawTable{
		SourceFile: "merged.xlsx",
		Sheet:      "Q1",
		Rows: [][]string{
			{"Region", "", "Product", "Amount"},
			{"North", "", "Widget", "100"},
			{"South", "", "Widget", "250"},
		},
		Merged: []domain.MergedRange{
			{StartRow: 0, StartCol: 0, EndRow: 0, EndCol: 1, Value: "Region"},
		},
	}
}

// GetYearMonthTable returns a table with a two-row year and month header
func (f *TableFixtures) GetYearMonthTable() domain.RawTable {
	return domain.RawTable{
		SourceFile: "yearmonth.xlsx",
		Sheet:      "Sales",
		Rows: [][]string{
			{"Product", "2020", "", ""},
			{"", "Jan", "Feb", "Mar"},
			{"Widget", "100", "110", "120"},
			{"Gadget", "50", "55", "60"},
		},
	}
}

// GetSparseTable returns a table with mostly empty columns and rows
func (f *TableFixtures) GetSparseTable() domain.RawTable {
	return domain.RawTable{
		SourceFile: "sparse.csv",
		Rows: [][]string{
			{"Order #", "Notes", "Qty", "Internal"},
			{"1001", "", "2", ""},
			{"", "", "", ""},
			{"1002", "", "1", ""},
			{"1003", "rush", "4", ""},
			{"", "", "", ""},
		},
	}
}

// GetSalesContract returns the canonical sales contract used across tests
func (f *TableFixtures) GetSalesContract() domain.Contract {
	return domain.Contract{
		Fields: []domain.CanonicalField{
			{Name: "order_id", Type: domain.FieldTypeString, Required: true, Synonyms: []string{"order #", "order no", "order number", "ordernum"}},
			{Name: "order_date", Type: domain.FieldTypeDate, Required: true, Synonyms: []string{"date", "order date", "invoice date"}},
			{Name: "customer_id", Type: domain.FieldTypeString, Required: true, Synonyms: []string{"cust id", "customer", "client id"}},
			{Name: "quantity", Type: domain.FieldTypeNumber, Required: false, Synonyms: []string{"qty", "amount ordered", "units"}},
			{Name: "unit_price", Type: domain.FieldTypeNumber, Required: false, Synonyms: []string{"price", "unit cost", "price per unit"}},
		},
	}
}

// GetDefaultTemplate returns a saved template for the clean table source
func (f *TableFixtures) GetDefaultTemplate() domain.Template {
	tpl := *domain.NewTemplate("clean")
	tpl.Provider = "acme"
	tpl.SourceFile = "clean.xlsx"
	tpl.Sheet = "Sheet1"
	tpl.Mapping = domain.ColumnMapping{
		Entries: []domain.MappingEntry{
			{RawHeader: "Order #", Target: "order_id", Origin: domain.OriginSynonymExact, Confidence: 1.0},
			{RawHeader: "Order Date", Target: "order_date", Origin: domain.OriginSynonymExact, Confidence: 1.0},
			{RawHeader: "Cust ID", Target: "customer_id", Origin: domain.OriginSynonymExact, Confidence: 1.0},
			{RawHeader: "Qty", Target: "quantity", Origin: domain.OriginSynonymExact, Confidence: 1.0},
			{RawHeader: "Unit Price", Target: "unit_price", Origin: domain.OriginSimilarityFuzzy, Confidence: 0.9},
		},
	}
	tpl.RequiredFields = []string{"order_id", "order_date", "customer_id"}
	return tpl
}

// CreateCSVFile writes rows as a CSV file with the given delimiter
func (f *TableFixtures) CreateCSVFile(path string, delimiter rune, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = delimiter
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	w.Flush()
	return w.Error()
}

// CreateCorruptedSourceFile creates various types of corrupted source files for testing
func (f *TableFixtures) CreateCorruptedSourceFile(path, corruptionType string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var data []byte

	switch corruptionType {
	case "empty":
		data = []byte{}
	case "binary_garbage":
		data = make([]byte, 256)
		for i := range data {
			data[i] = byte(i % 256)
		}
	case "truncated_zip":
		// An xlsx is a zip archive; a bare local header is unreadable
		data = []byte("PK\x03\x04truncated")
	case "ragged_csv":
		data = []byte("a,b,c\n1,2\n3,4,5,6\n")
	case "null_bytes":
		data = []byte("a,b\x00,c\n1,2,3\n")
	default:
		return fmt.Errorf("unknown corruption type: %s", corruptionType)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write corrupted file: %w", err)
	}

	return nil
}

// GenerateTestDataFiles creates test data files in the specified directory
func (f *TableFixtures) GenerateTestDataFiles() error {
	if err := os.MkdirAll(f.TestDataDir, 0755); err != nil {
		return fmt.Errorf("failed to create test data directory: %w", err)
	}

	csvFiles := map[string]domain.RawTable{
		"clean.csv":  f.GetCleanTable(),
		"banner.csv": f.GetBannerTable(),
		"sparse.csv": f.GetSparseTable(),
	}

	for filename, table := range csvFiles {
		path := filepath.Join(f.TestDataDir, filename)
		if err := f.CreateCSVFile(path, ',', table.Rows); err != nil {
			return fmt.Errorf("failed to create %s: %w", filename, err)
		}
	}

	corruptedFiles := map[string]string{
		"empty_file.csv":    "empty",
		"binary_data.xlsx":  "binary_garbage",
		"truncated.xlsx":    "truncated_zip",
		"ragged.csv":        "ragged_csv",
		"null_bytes.csv":    "null_bytes",
	}

	for filename, corruptionType := range corruptedFiles {
		path := filepath.Join(f.TestDataDir, filename)
		if err := f.CreateCorruptedSourceFile(path, corruptionType); err != nil {
			return fmt.Errorf("failed to create corrupted file %s: %w", filename, err)
		}
	}

	return nil
}

// CleanupTestData removes all test data files
func (f *TableFixtures) CleanupTestData() error {
	return os.RemoveAll(f.TestDataDir)
}
