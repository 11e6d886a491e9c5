package outcome

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"schemapipe/internal/config"
	"schemapipe/internal/diagnostics"
	"schemapipe/internal/exporter"
	"schemapipe/internal/files"
	"schemapipe/pkg/contracts/domain"
)

// archiveStampLayout names colliding archive files, acme_jan_20240315120000.xlsx.
const archiveStampLayout = "20060102150405"

// Router moves processed files to their terminal destination and records
// the outcome.
type Router struct {
	paths    *config.Paths
	writer   *exporter.Writer
	profiler *diagnostics.Profiler
	manager  *files.Manager
	audit    *AuditLog
	logger   *slog.Logger
}

// NewRouter creates an outcome router over the pipeline directories.
func NewRouter(paths *config.Paths, writer *exporter.Writer, profiler *diagnostics.Profiler, audit *AuditLog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		paths:    paths,
		writer:   writer,
		profiler: profiler,
		manager:  files.NewManager(paths),
		audit:    audit,
		logger:   logger,
	}
}

// Request carries everything the router needs to finish one file.
type Request struct {
	// SourceFile is the path of the input file being processed.
	SourceFile string
	// Provider identifies where the export came from, empty when unknown.
	Provider string
	// Template is the mapping template the run used, for output options.
	Template *domain.Template
	// Result is the validation verdict for the transformed table.
	Result domain.ValidationResult
	// Transformed is the table as it left the transform stage, profiled
	// for the audit record whichever way the file routes.
	Transformed *domain.TransformedTable
	// Metrics summarizes the run.
	Metrics domain.PipelineMetrics
}

// QuarantineRequest carries a failure that never reached a verdict, or the
// failing verdict itself.
type QuarantineRequest struct {
	SourceFile  string
	Provider    string
	Reason      string
	Violations  []domain.Violation
	Transformed *domain.TransformedTable
	Metrics     domain.PipelineMetrics
}

// Route sends the file to the archive or the quarantine based on the
// validation verdict and returns the audit record.
func (r *Router) Route(req Request) (*domain.OutcomeRecord, error) {
	if req.Result.Valid {
		return r.archive(req)
	}
	return r.Quarantine(QuarantineRequest{
		SourceFile:  req.SourceFile,
		Provider:    req.Provider,
		Reason:      "contract validation failed",
		Violations:  req.Result.Violations,
		Transformed: req.Transformed,
		Metrics:     req.Metrics,
	})
}

// archive writes the standardized output, moves the source file into the
// archive directory and records the outcome.
func (r *Router) archive(req Request) (*domain.OutcomeRecord, error) {
	name := filepath.Base(req.SourceFile)

	var format string
	if req.Template != nil {
		format = req.Template.Output.Format
	}
	outputPath := r.paths.GetOutputPath(exporter.OutputFileName(name, format))
	if err := r.writer.Write(req.Result.Table, format, outputPath); err != nil {
		return nil, fmt.Errorf("archive %s: %w", name, err)
	}

	archivedPath := r.archiveDestination(name)
	if err := r.manager.MoveFile(req.SourceFile, archivedPath); err != nil {
		return nil, fmt.Errorf("archive %s: %w", name, err)
	}

	record := &domain.OutcomeRecord{
		ID:           uuid.NewString(),
		SourceFile:   name,
		Provider:     req.Provider,
		State:        domain.OutcomeArchived,
		OutputPath:   outputPath,
		ArchivedPath: archivedPath,
		Metrics:      req.Metrics,
		Profile:      r.profile(req.Transformed),
		CompletedAt:  time.Now().UTC(),
	}
	if err := r.audit.Append(record); err != nil {
		return nil, fmt.Errorf("record outcome for %s: %w", name, err)
	}

	r.logger.Info("file archived",
		slog.String("source", name),
		slog.String("output", outputPath),
		slog.Int("rows", req.Metrics.RowsOut))
	return record, nil
}

// Quarantine moves the source file into the quarantine directory beside an
// error log and records the outcome. Stage failures that never produced a
// verdict come here directly with their reason.
func (r *Router) Quarantine(req QuarantineRequest) (*domain.OutcomeRecord, error) {
	name := filepath.Base(req.SourceFile)
	req.Metrics.ViolationCount = len(req.Violations)

	errorLogPath := r.paths.GetErrorLogPath(name)
	content := buildErrorLog(name, req.Provider, req.Reason, req.Violations, req.Metrics)
	if err := r.manager.WriteFile(errorLogPath, content); err != nil {
		return nil, fmt.Errorf("quarantine %s: %w", name, err)
	}

	quarantinedPath := r.paths.GetQuarantinePath(name)
	if err := r.manager.MoveFile(req.SourceFile, quarantinedPath); err != nil {
		return nil, fmt.Errorf("quarantine %s: %w", name, err)
	}

	record := &domain.OutcomeRecord{
		ID:            uuid.NewString(),
		SourceFile:    name,
		Provider:      req.Provider,
		State:         domain.OutcomeQuarantined,
		ErrorLogPath:  errorLogPath,
		FailureReason: req.Reason,
		Violations:    req.Violations,
		Metrics:       req.Metrics,
		Profile:       r.profile(req.Transformed),
		CompletedAt:   time.Now().UTC(),
	}
	if err := r.audit.Append(record); err != nil {
		return nil, fmt.Errorf("record outcome for %s: %w", name, err)
	}

	r.logger.Warn("file quarantined",
		slog.String("source", name),
		slog.String("reason", req.Reason),
		slog.Int("violations", len(req.Violations)))
	return record, nil
}

// archiveDestination picks the archive path for a source file. An occupied
// name gets a timestamp suffix instead of overwriting the earlier run.
func (r *Router) archiveDestination(name string) string {
	dst := r.paths.GetArchivePath(name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		stamp := time.Now().Format(archiveStampLayout)
		dst = r.paths.GetArchivePath(stem + "_" + stamp + ext)
	}
	return dst
}

func (r *Router) profile(table *domain.TransformedTable) *domain.TableProfile {
	if table == nil || r.profiler == nil {
		return nil
	}
	return r.profiler.Profile(table)
}

// buildErrorLog renders the quarantine error log: a header naming the file,
// the failure reason, one line per violation and a run summary.
func buildErrorLog(name, provider, reason string, violations []domain.Violation, metrics domain.PipelineMetrics) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation Failed for %s\n", name)
	b.WriteString(strings.Repeat("-", 50))
	b.WriteString("\n")
	b.WriteString(reason)
	b.WriteString("\n")
	for _, v := range violations {
		b.WriteString(v.String())
		b.WriteString("\n")
	}

	b.WriteString("\nRun summary:\n")
	fmt.Fprintf(&b, "  Source: %s\n", name)
	if provider != "" {
		fmt.Fprintf(&b, "  Provider: %s\n", provider)
	}
	fmt.Fprintf(&b, "  Rows in: %d\n", metrics.RowsIn)
	fmt.Fprintf(&b, "  Rows out: %d\n", metrics.RowsOut)
	fmt.Fprintf(&b, "  Sheets read: %d\n", metrics.SheetsRead)
	if len(metrics.UnmappedHeaders) > 0 {
		fmt.Fprintf(&b, "  Unmapped headers: %s\n", strings.Join(metrics.UnmappedHeaders, ", "))
	}
	if len(metrics.DroppedColumns) > 0 {
		fmt.Fprintf(&b, "  Dropped columns: %s\n", strings.Join(metrics.DroppedColumns, ", "))
	}
	fmt.Fprintf(&b, "  Violations: %d\n", metrics.ViolationCount)
	if metrics.Duration > 0 {
		fmt.Fprintf(&b, "  Duration: %s\n", metrics.Duration)
	}
	return []byte(b.String())
}
