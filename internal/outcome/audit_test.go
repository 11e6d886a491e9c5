package outcome

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/pkg/contracts/domain"
)

func newTestAuditLog(t *testing.T) *AuditLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	return NewAuditLog(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func archivedRecord(id, source string) *domain.OutcomeRecord {
	return &domain.OutcomeRecord{
		ID:          id,
		SourceFile:  source,
		State:       domain.OutcomeArchived,
		OutputPath:  "/out/" + source,
		CompletedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuditLog_AppendAndRecent(t *testing.T) {
	log := newTestAuditLog(t)

	require.NoError(t, log.Append(archivedRecord("a", "one.csv")))
	require.NoError(t, log.Append(archivedRecord("b", "two.csv")))
	require.NoError(t, log.Append(archivedRecord("c", "three.csv")))

	recent, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID, "newest first")
	assert.Equal(t, "b", recent[1].ID)

	all, err := log.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAuditLog_MissingFileIsEmptyHistory(t *testing.T) {
	log := newTestAuditLog(t)

	records, err := log.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuditLog_AppendCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "outcomes.jsonl")
	log := NewAuditLog(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, log.Append(archivedRecord("a", "one.csv")))
	assert.FileExists(t, path)
}

func TestAuditLog_SkipsCorruptLines(t *testing.T) {
	log := newTestAuditLog(t)

	require.NoError(t, log.Append(archivedRecord("a", "one.csv")))

	f, err := os.OpenFile(log.path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, log.Append(archivedRecord("b", "two.csv")))

	records, err := log.Recent(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestAuditLog_QuarantineRecordRoundTrip(t *testing.T) {
	log := newTestAuditLog(t)

	in := &domain.OutcomeRecord{
		ID:            "q-1",
		SourceFile:    "bad.csv",
		Provider:      "acme",
		State:         domain.OutcomeQuarantined,
		ErrorLogPath:  "/qua/bad.csv.error.log",
		FailureReason: "contract validation failed",
		Violations: []domain.Violation{
			{Row: 3, Column: "order_date", Kind: domain.ViolationTypeMismatch, Message: `cannot parse "soon" as date`},
		},
		Metrics:     domain.PipelineMetrics{RowsIn: 10, RowsOut: 9, ViolationCount: 1, Duration: 250 * time.Millisecond},
		CompletedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, log.Append(in))

	records, err := log.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	out := records[0]
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, domain.OutcomeQuarantined, out.State)
	assert.Equal(t, in.FailureReason, out.FailureReason)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, domain.ViolationTypeMismatch, out.Violations[0].Kind)
	assert.Equal(t, 3, out.Violations[0].Row)
	assert.Equal(t, 250*time.Millisecond, out.Metrics.Duration)
	assert.True(t, in.CompletedAt.Equal(out.CompletedAt))
}
