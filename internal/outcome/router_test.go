package outcome

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/internal/config"
	"schemapipe/internal/diagnostics"
	"schemapipe/internal/exporter"
	"schemapipe/pkg/contracts/domain"
)

func newTestRouter(t *testing.T) (*Router, *config.Paths) {
	t.Helper()
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(paths,
		exporter.NewWriter(logger),
		diagnostics.NewProfiler(logger),
		NewAuditLog(paths.AuditLogFile, logger),
		logger)
	return router, paths
}

func writeSourceFile(t *testing.T, paths *config.Paths, name string) string {
	t.Helper()
	path := paths.GetInputPath(name)
	require.NoError(t, os.WriteFile(path, []byte("raw provider bytes"), 0644))
	return path
}

func transformedTable() *domain.TransformedTable {
	table := domain.NewTransformedTable([]string{"order_id", "sales_amount"})
	table.Rows = [][]string{
		{"A-1", "1200.5"},
		{"A-2", "89.99"},
	}
	return table
}

func TestRoute_ValidFileIsArchived(t *testing.T) {
	router, paths := newTestRouter(t)
	source := writeSourceFile(t, paths, "acme_jan.xlsx")
	table := transformedTable()

	record, err := router.Route(Request{
		SourceFile:  source,
		Provider:    "acme",
		Template:    domain.NewTemplate("acme_jan"),
		Result:      domain.ValidResult(table),
		Transformed: table,
		Metrics:     domain.PipelineMetrics{RowsIn: 3, RowsOut: 2, SheetsRead: 1},
	})
	require.NoError(t, err)

	assert.True(t, record.Archived())
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "acme_jan.xlsx", record.SourceFile)
	assert.Equal(t, "acme", record.Provider)
	assert.WithinDuration(t, time.Now().UTC(), record.CompletedAt, 5*time.Second)

	assert.Equal(t, paths.GetOutputPath("acme_jan_clean.csv"), record.OutputPath)
	assert.FileExists(t, record.OutputPath)

	assert.Equal(t, paths.GetArchivePath("acme_jan.xlsx"), record.ArchivedPath)
	assert.FileExists(t, record.ArchivedPath)
	assert.NoFileExists(t, source, "source must leave the input directory")

	require.NotNil(t, record.Profile)
	assert.Equal(t, 2, record.Profile.RowCount)

	history, err := router.audit.Recent(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
}

func TestRoute_ArchiveNameCollisionGetsTimestamp(t *testing.T) {
	router, paths := newTestRouter(t)
	source := writeSourceFile(t, paths, "acme_jan.xlsx")

	prior := paths.GetArchivePath("acme_jan.xlsx")
	require.NoError(t, os.WriteFile(prior, []byte("earlier run"), 0644))

	table := transformedTable()
	record, err := router.Route(Request{
		SourceFile:  source,
		Template:    domain.NewTemplate("acme_jan"),
		Result:      domain.ValidResult(table),
		Transformed: table,
	})
	require.NoError(t, err)

	assert.NotEqual(t, prior, record.ArchivedPath)
	base := filepath.Base(record.ArchivedPath)
	assert.True(t, strings.HasPrefix(base, "acme_jan_"), "got %q", base)
	assert.True(t, strings.HasSuffix(base, ".xlsx"), "got %q", base)
	assert.FileExists(t, record.ArchivedPath)

	data, err := os.ReadFile(prior)
	require.NoError(t, err)
	assert.Equal(t, "earlier run", string(data), "the earlier archive must survive")
}

func TestRoute_InvalidFileIsQuarantined(t *testing.T) {
	router, paths := newTestRouter(t)
	source := writeSourceFile(t, paths, "bad_export.csv")

	violations := []domain.Violation{
		{Row: -1, Column: "customer_id", Kind: domain.ViolationMissingRequiredField, Message: "required field has no mapped column"},
		{Row: 4, Column: "order_date", Kind: domain.ViolationTypeMismatch, Message: `cannot parse "soon" as date`},
	}
	record, err := router.Route(Request{
		SourceFile: source,
		Provider:   "globex",
		Template:   domain.NewTemplate("bad_export"),
		Result:     domain.InvalidResult(5, violations),
		Metrics:    domain.PipelineMetrics{RowsIn: 6, RowsOut: 5, SheetsRead: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeQuarantined, record.State)
	assert.Equal(t, "contract validation failed", record.FailureReason)
	assert.Len(t, record.Violations, 2)
	assert.Equal(t, 2, record.Metrics.ViolationCount)
	assert.Nil(t, record.Profile)

	assert.NoFileExists(t, source)
	assert.FileExists(t, paths.GetQuarantinePath("bad_export.csv"))

	assert.Equal(t, paths.GetErrorLogPath("bad_export.csv"), record.ErrorLogPath)
	data, err := os.ReadFile(record.ErrorLogPath)
	require.NoError(t, err)
	log := string(data)
	assert.True(t, strings.HasPrefix(log, "Validation Failed for bad_export.csv\n"))
	assert.Contains(t, log, strings.Repeat("-", 50))
	assert.Contains(t, log, violations[0].String())
	assert.Contains(t, log, violations[1].String())
	assert.Contains(t, log, "Run summary:")
	assert.Contains(t, log, "Source: bad_export.csv")
	assert.Contains(t, log, "Provider: globex")
	assert.Contains(t, log, "Rows in: 6")
	assert.Contains(t, log, "Violations: 2")

	entries, err := os.ReadDir(paths.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a quarantined file must not produce output")
}

func TestQuarantine_StageFailure(t *testing.T) {
	router, paths := newTestRouter(t)
	source := writeSourceFile(t, paths, "corrupt.xlsx")

	record, err := router.Quarantine(QuarantineRequest{
		SourceFile: source,
		Reason:     "read source: not a valid workbook",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeQuarantined, record.State)
	assert.Equal(t, "read source: not a valid workbook", record.FailureReason)
	assert.Empty(t, record.Violations)
	assert.FileExists(t, paths.GetQuarantinePath("corrupt.xlsx"))

	data, err := os.ReadFile(record.ErrorLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "read source: not a valid workbook")
}

func TestQuarantine_ProfilesTheTransformedTable(t *testing.T) {
	router, paths := newTestRouter(t)
	source := writeSourceFile(t, paths, "odd_values.csv")
	table := transformedTable()

	record, err := router.Quarantine(QuarantineRequest{
		SourceFile: source,
		Reason:     "contract validation failed",
		Violations: []domain.Violation{
			{Row: 0, Column: "sales_amount", Kind: domain.ViolationTypeMismatch, Message: `cannot parse "n/a" as number`},
		},
		Transformed: table,
	})
	require.NoError(t, err)

	assert.FileExists(t, paths.GetQuarantinePath("odd_values.csv"))
	require.NotNil(t, record.Profile)
	assert.Equal(t, 2, record.Profile.RowCount)
	assert.Len(t, record.Profile.Columns, 2)
}

func TestRoute_AuditHistoryAccumulates(t *testing.T) {
	router, paths := newTestRouter(t)

	first := writeSourceFile(t, paths, "first.csv")
	table := transformedTable()
	_, err := router.Route(Request{
		SourceFile:  first,
		Template:    domain.NewTemplate("first"),
		Result:      domain.ValidResult(table),
		Transformed: table,
	})
	require.NoError(t, err)

	second := writeSourceFile(t, paths, "second.csv")
	_, err = router.Route(Request{
		SourceFile: second,
		Template:   domain.NewTemplate("second"),
		Result: domain.InvalidResult(1, []domain.Violation{
			{Row: -1, Column: "order_id", Kind: domain.ViolationMissingRequiredField, Message: "required field has no mapped column"},
		}),
	})
	require.NoError(t, err)

	history, err := router.audit.Recent(0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second.csv", history[0].SourceFile, "newest first")
	assert.Equal(t, "first.csv", history[1].SourceFile)

	limited, err := router.audit.Recent(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "second.csv", limited[0].SourceFile)
}
