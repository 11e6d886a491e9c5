package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"schemapipe/internal/config"
	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/files"
	"schemapipe/internal/ingest"
	"schemapipe/internal/operations"
	"schemapipe/internal/outcome"
	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

const defaultPreviewRows = 10

// PipelineService drives source files through the mapping pipeline and
// serves the interactive previews behind the template review screens.
// Batch processing fans out across a bounded worker group; every file in
// a batch ends up with an outcome record even when its run fails.
type PipelineService struct {
	deps      *operations.Dependencies
	manager   *operations.Manager
	discovery *files.Discovery
	cfg       config.PipelineConfig
	logger    *slog.Logger
}

// NewPipelineService creates a pipeline service on top of the shared step
// dependencies and the operation manager.
func NewPipelineService(deps *operations.Dependencies, manager *operations.Manager, cfg config.PipelineConfig, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		deps:      deps,
		manager:   manager,
		discovery: files.NewDiscovery(deps.Paths.Root),
		cfg:       cfg,
		logger:    logger.With(slog.String("service", "pipeline")),
	}
}

// ProcessRequest names a single source file to run through the pipeline.
type ProcessRequest struct {
	SourceFile      string                 `json:"source_file"`
	Provider        string                 `json:"provider,omitempty"`
	TemplateKey     string                 `json:"template_key,omitempty"`
	ValidationLevel domain.ValidationLevel `json:"validation_level,omitempty"`
	OperationID     string                 `json:"operation_id,omitempty"`
}

// ProcessFile runs one source file through the full pipeline and returns
// its outcome record. A contract failure is not an error: the file is
// quarantined by the routing step and the quarantined record is returned.
// A step failure before routing (unreadable file, no header row) also
// quarantines the file so the source never lingers in the input
// directory, except on cancellation where the file is left untouched.
func (s *PipelineService) ProcessFile(ctx context.Context, req ProcessRequest) (*domain.OutcomeRecord, error) {
	if req.SourceFile == "" {
		return nil, fmt.Errorf("%w: source file is required", ErrInvalidInput)
	}

	opReq := operations.OperationRequest{
		ID:          req.OperationID,
		SourceFile:  req.SourceFile,
		Provider:    req.Provider,
		TemplateKey: req.TemplateKey,
	}
	if opReq.ID == "" {
		opReq.ID = uuid.NewString()
	}
	if req.ValidationLevel != "" {
		opReq.Parameters = map[string]interface{}{
			operations.ContextKeyValidationLevel: string(req.ValidationLevel),
		}
	}

	resp, err := s.manager.Execute(ctx, opReq)
	if resp != nil && resp.Outcome != nil {
		return resp.Outcome, nil
	}
	if err == nil {
		return nil, fmt.Errorf("operation %s finished without an outcome", opReq.ID)
	}
	if ctx.Err() != nil || operations.GetErrorType(err) == operations.ErrorTypeCancellation {
		return nil, err
	}

	record, qerr := s.deps.Router.Quarantine(outcome.QuarantineRequest{
		SourceFile: req.SourceFile,
		Provider:   req.Provider,
		Reason:     err.Error(),
	})
	if qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	s.logger.WarnContext(ctx, "file quarantined after step failure",
		slog.String("source_file", req.SourceFile),
		slog.String("reason", err.Error()))
	return record, nil
}

// BatchRequest selects the files for a batch run. When Files is empty the
// input directory is scanned: files at its top level use the request
// provider, files in a subdirectory default to the directory name as
// their provider.
type BatchRequest struct {
	InputDir        string                 `json:"input_dir,omitempty"`
	Files           []string               `json:"files,omitempty"`
	Provider        string                 `json:"provider,omitempty"`
	TemplateKey     string                 `json:"template_key,omitempty"`
	ValidationLevel domain.ValidationLevel `json:"validation_level,omitempty"`
	MaxWorkers      int                    `json:"max_workers,omitempty"`
}

// BatchItem is the per-file result of a batch run.
type BatchItem struct {
	SourceFile string                `json:"source_file"`
	Record     *domain.OutcomeRecord `json:"record,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run. Items preserves the scan order of
// the inputs regardless of which worker finished first.
type BatchSummary struct {
	Total       int           `json:"total"`
	Archived    int           `json:"archived"`
	Quarantined int           `json:"quarantined"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
	Items       []BatchItem   `json:"items"`
}

// ProcessBatch runs every selected file through the pipeline with at most
// MaxWorkers files in flight. One bad file never aborts the batch: each
// worker records its result in the summary and reports no error to the
// group. Cancellation stops scheduling new files; files already running
// finish their abort path.
func (s *PipelineService) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchSummary, error) {
	batch, err := s.collectBatch(req)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, ErrNoSourceFiles
	}

	workers := req.MaxWorkers
	if workers <= 0 {
		workers = s.cfg.MaxWorkers
	}
	if workers <= 0 {
		workers = 1
	}

	start := time.Now()
	summary := &BatchSummary{
		Total: len(batch),
		Items: make([]BatchItem, len(batch)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	s.logger.InfoContext(ctx, "batch started",
		slog.Int("files", len(batch)),
		slog.Int("workers", workers))

	for i, entry := range batch {
		if gctx.Err() != nil {
			mu.Lock()
			for j := i; j < len(batch); j++ {
				summary.Items[j] = BatchItem{SourceFile: batch[j].path, Error: gctx.Err().Error()}
				summary.Failed++
			}
			mu.Unlock()
			break
		}
		i, entry := i, entry
		g.Go(func() error {
			record, perr := s.ProcessFile(gctx, ProcessRequest{
				SourceFile:      entry.path,
				Provider:        entry.provider,
				TemplateKey:     req.TemplateKey,
				ValidationLevel: req.ValidationLevel,
			})

			mu.Lock()
			defer mu.Unlock()
			item := BatchItem{SourceFile: entry.path, Record: record}
			if perr != nil {
				item.Error = perr.Error()
			}
			summary.Items[i] = item
			switch {
			case record == nil:
				summary.Failed++
			case record.Archived():
				summary.Archived++
			default:
				summary.Quarantined++
			}
			return nil
		})
	}

	// Workers report through the summary, never through the group error.
	_ = g.Wait()
	summary.Duration = time.Since(start)

	s.logger.InfoContext(ctx, "batch complete",
		slog.Int("total", summary.Total),
		slog.Int("archived", summary.Archived),
		slog.Int("quarantined", summary.Quarantined),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

type batchEntry struct {
	path     string
	provider string
}

func (s *PipelineService) collectBatch(req BatchRequest) ([]batchEntry, error) {
	if len(req.Files) > 0 {
		entries := make([]batchEntry, 0, len(req.Files))
		for _, f := range req.Files {
			entries = append(entries, batchEntry{path: f, provider: req.Provider})
		}
		return entries, nil
	}

	dir := req.InputDir
	if dir == "" {
		dir = s.deps.Paths.InputDir
	}

	var entries []batchEntry
	rootFiles, err := s.discovery.FindSourceFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, fi := range rootFiles {
		entries = append(entries, batchEntry{path: fi.Path, provider: req.Provider})
	}

	dirs, err := s.discovery.ListDirectories(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, d := range dirs {
		sub, err := s.discovery.FindSourceFiles(d.Path)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", d.Path, err)
		}
		provider := req.Provider
		if provider == "" {
			provider = d.Name
		}
		for _, fi := range sub {
			entries = append(entries, batchEntry{path: fi.Path, provider: provider})
		}
	}
	return entries, nil
}

// IngestPreviewRequest asks for a look at a source file before running
// the pipeline. Sheet and HeaderRow override the template for the
// preview only; nothing is persisted.
type IngestPreviewRequest struct {
	SourceFile  string `json:"source_file"`
	TemplateKey string `json:"template_key,omitempty"`
	Sheet       string `json:"sheet,omitempty"`
	HeaderRow   *int   `json:"header_row,omitempty"`
	SampleRows  int    `json:"sample_rows,omitempty"`
}

// IngestPreview shows how a source file reads under a template: the
// resolved header, the proposed column mapping and a sample of data rows.
type IngestPreview struct {
	SourceFile string                `json:"source_file"`
	Template   *domain.Template      `json:"template"`
	Sheets     []string              `json:"sheets,omitempty"`
	Spec       domain.HeaderSpec     `json:"header"`
	Mapping    *domain.ColumnMapping `json:"mapping"`
	RowCount   int                   `json:"row_count"`
	Sample     [][]string            `json:"sample"`
}

// Preview reads the file, resolves its header and maps the labels the
// same way the ingest, resolve and map steps would, without touching the
// source file or writing any output.
func (s *PipelineService) Preview(ctx context.Context, req IngestPreviewRequest) (*IngestPreview, error) {
	if req.SourceFile == "" {
		return nil, fmt.Errorf("%w: source file is required", ErrInvalidInput)
	}

	tpl, err := s.resolveTemplate(ctx, req.TemplateKey, req.SourceFile)
	if err != nil {
		return nil, err
	}
	if req.Sheet != "" {
		tpl.Sheet = req.Sheet
		tpl.Sheets = nil
		tpl.CombineSheets = false
	}
	if req.HeaderRow != nil {
		row := *req.HeaderRow
		tpl.HeaderRow = &row
	}

	tables, err := s.deps.Reader.ReadFile(ctx, req.SourceFile, ingest.OptionsFromTemplate(tpl))
	if err != nil {
		return nil, err
	}

	first := &tables[0]
	spec, err := s.deps.Resolver.Resolve(first, tpl.HeaderRow)
	if err != nil {
		return nil, err
	}
	mapping := s.deps.Mapper.Map(spec.Labels, tpl)
	frame := transform.Frame(first, spec)

	limit := req.SampleRows
	if limit <= 0 {
		limit = defaultPreviewRows
	}
	if limit > len(frame.Rows) {
		limit = len(frame.Rows)
	}
	sample := make([][]string, limit)
	for i := 0; i < limit; i++ {
		sample[i] = append([]string(nil), frame.Rows[i]...)
	}

	sheets := make([]string, 0, len(tables))
	for i := range tables {
		if tables[i].Sheet != "" {
			sheets = append(sheets, tables[i].Sheet)
		}
	}

	return &IngestPreview{
		SourceFile: req.SourceFile,
		Template:   tpl,
		Sheets:     sheets,
		Spec:       spec,
		Mapping:    mapping,
		RowCount:   len(frame.Rows),
		Sample:     sample,
	}, nil
}

// TransformPreview runs inline rows through header resolution, mapping
// and the reshape engine under the given template. The handler feeds it
// edited rows from the review screen so users see the reshaped output
// before saving a template.
func (s *PipelineService) TransformPreview(ctx context.Context, tpl *domain.Template, rows [][]string) (*transform.Result, error) {
	if tpl == nil {
		return nil, fmt.Errorf("%w: template is required", ErrInvalidInput)
	}
	raw := domain.RawTable{SourceFile: "preview", Rows: rows}
	spec, err := s.deps.Resolver.Resolve(&raw, tpl.HeaderRow)
	if err != nil {
		return nil, err
	}
	mapping := s.deps.Mapper.Map(spec.Labels, tpl)
	sheets := []transform.Sheet{{Table: transform.Frame(&raw, spec)}}
	return s.deps.Engine.Run(sheets, mapping, tpl, raw.SourceFile)
}

// ValidatePreview transforms inline rows and checks the result against
// the contract at the given level without routing anything.
func (s *PipelineService) ValidatePreview(ctx context.Context, tpl *domain.Template, rows [][]string, level domain.ValidationLevel) (domain.ValidationResult, error) {
	result, err := s.TransformPreview(ctx, tpl, rows)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if level == "" {
		level = s.deps.Level
	}
	if level == "" {
		level = domain.ValidationContract
	}
	return s.deps.Validator.Validate(result.Table, tpl, level), nil
}

// resolveTemplate loads the named template, falling back to the key
// derived from the file name and then to defaults, mirroring what the
// ingest step does at the start of a run.
func (s *PipelineService) resolveTemplate(ctx context.Context, key, sourceFile string) (*domain.Template, error) {
	if key == "" {
		key = config.TemplateKeyFromSource(sourceFile)
	}
	if s.deps.Templates != nil {
		tpl, err := s.deps.Templates.Load(ctx, key)
		if err == nil {
			return tpl, nil
		}
		if !errors.Is(err, apierrors.ErrTemplateMissing) {
			return nil, err
		}
	}
	tpl := domain.NewTemplate(key)
	tpl.SourceFile = filepath.Base(sourceFile)
	if format, err := ingest.DetectFormat(sourceFile); err == nil && format == ingest.FormatCSV {
		tpl.SourceType = "csv"
	}
	return tpl, nil
}
