package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"schemapipe/internal/config"
	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/headerresolve"
	"schemapipe/internal/ingest"
	"schemapipe/internal/mapper"
	"schemapipe/internal/outcome"
	"schemapipe/internal/templates"
	"schemapipe/internal/transform"
	"schemapipe/internal/validation"
	"schemapipe/pkg/contracts/domain"
)

// Dependencies bundles the pipeline components the steps execute against.
// The same instance is shared by every step a factory produces.
type Dependencies struct {
	Reader    *ingest.Reader
	Resolver  *headerresolve.Resolver
	Mapper    *mapper.Mapper
	Engine    *transform.Engine
	Validator *validation.Validator
	Router    *outcome.Router
	Templates templates.Store
	Paths     *config.Paths

	// Level is the validation level applied when the request does not
	// override it.
	Level domain.ValidationLevel
}

// pipelineStep carries the plumbing every step shares: identity,
// dependency declarations, a scoped logger and the broadcaster options.
type pipelineStep struct {
	BaseStep
	deps    *Dependencies
	logger  *slog.Logger
	options *StepOptions
}

func newPipelineStep(id, name string, dependencies []string, deps *Dependencies, logger *slog.Logger, options *StepOptions) pipelineStep {
	if options == nil {
		options = &StepOptions{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("step", id))
	logger.Debug("step initialized")

	return pipelineStep{
		BaseStep: NewBaseStep(id, name, dependencies),
		deps:     deps,
		logger:   logger,
		options:  options,
	}
}

// updateProgress updates the step state and pushes the change through the
// centralized StatusBroadcaster.
func (p *pipelineStep) updateProgress(operationID string, stepState *StepState, progress int, message string) {
	stepState.UpdateProgress(float64(progress), message)

	if p.options.StatusBroadcaster != nil {
		p.options.StatusBroadcaster.UpdateStepProgress(operationID, p.ID(), progress, message)
	}
}

// stepState returns the operation's state record for this step, creating
// one when the step runs outside a full pipeline.
func (p *pipelineStep) stepState(state *OperationState) *StepState {
	st := state.GetStep(p.ID())
	if st == nil {
		st = NewStepState(p.ID(), p.Name())
		state.SetStep(st)
	}
	return st
}

// IngestStep loads the template for the source file and reads the raw
// cell grid from every selected sheet.
type IngestStep struct {
	pipelineStep
}

// NewIngestStep creates the ingest step.
func NewIngestStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *IngestStep {
	return &IngestStep{
		pipelineStep: newPipelineStep(StepIDIngest, StepNameIngest, nil, deps, logger, options),
	}
}

// Validate checks that the operation names a source file.
func (s *IngestStep) Validate(state *OperationState) error {
	_, err := stringConfig(state, ContextKeySourceFile)
	return err
}

// Execute reads the source file into raw tables and stores them together
// with the resolved template in the operation state.
func (s *IngestStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Reader == nil {
		return errors.New("ingest step missing reader")
	}
	stepState := s.stepState(state)

	sourceFile, err := stringConfig(state, ContextKeySourceFile)
	if err != nil {
		return err
	}
	name := filepath.Base(sourceFile)

	s.logger.InfoContext(ctx, "starting ingest", slog.String("source_file", name))
	s.updateProgress(state.ID, stepState, 5, "Looking up template...")

	tpl, err := s.loadTemplate(ctx, state, sourceFile)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	if provider, err := stringConfig(state, ContextKeyProvider); err == nil {
		tpl.Provider = provider
	}
	state.SetContext(ContextKeyTemplate, tpl)

	s.updateProgress(state.ID, stepState, 20, "Reading source file...")

	tables, err := s.deps.Reader.ReadFile(ctx, sourceFile, ingest.OptionsFromTemplate(tpl))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	rowsRead := 0
	for i := range tables {
		rowsRead += len(tables[i].Rows)
	}
	if rowsRead == 0 {
		return fmt.Errorf("%w: %s", apierrors.ErrEmptySource, name)
	}

	state.SetContext(ContextKeyRawTables, tables)
	stepState.SetMetadata("sheets_read", len(tables))
	stepState.SetMetadata("rows_read", rowsRead)

	s.logger.InfoContext(ctx, "ingest complete",
		slog.Int("sheets", len(tables)),
		slog.Int("rows", rowsRead))
	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Read %d rows from %d sheets", rowsRead, len(tables)))
	return nil
}

// loadTemplate resolves the template for the source file. An explicit
// template key takes precedence over the key derived from the file name.
// A missing template is not an error: the step falls back to defaults so
// first-time files still flow through mapping and similarity matching.
func (s *IngestStep) loadTemplate(ctx context.Context, state *OperationState, sourceFile string) (*domain.Template, error) {
	key := ""
	if v, err := stringConfig(state, ContextKeyTemplateKey); err == nil {
		key = v
	}
	if key == "" {
		key = config.TemplateKeyFromSource(sourceFile)
	}

	if s.deps.Templates != nil {
		tpl, err := s.deps.Templates.Load(ctx, key)
		if err == nil {
			s.logger.InfoContext(ctx, "template loaded",
				slog.String("key", key),
				slog.Int("version", tpl.Version))
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
	s.logger.InfoContext(ctx, "no template found, using defaults", slog.String("key", key))
	return tpl, nil
}

// RequiredInputs reports the source directory the batch mode scans. The
// requirement is optional because single-file operations name their file
// directly and it need not live under the input directory.
func (s *IngestStep) RequiredInputs() []DataRequirement {
	location := "data/input"
	if s.deps != nil && s.deps.Paths != nil {
		location = s.deps.Paths.InputDir
	}
	return []DataRequirement{
		{
			Type:     DataTypeSourceFiles,
			Location: location,
			MinCount: 1,
			Optional: true,
		},
	}
}

// CanRun checks the manifest against this step's own requirements.
func (s *IngestStep) CanRun(manifest *PipelineManifest) bool {
	return requirementsMet(manifest, s.RequiredInputs())
}

// ResolveStep finds the header block in each raw table and frames the
// data region beneath it.
type ResolveStep struct {
	pipelineStep
}

// NewResolveStep creates the header resolution step.
func NewResolveStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *ResolveStep {
	return &ResolveStep{
		pipelineStep: newPipelineStep(StepIDResolve, StepNameResolve, []string{StepIDIngest}, deps, logger, options),
	}
}

// Execute resolves headers for every ingested sheet and stores the header
// specs and framed sheets in the operation state.
func (s *ResolveStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Resolver == nil {
		return errors.New("resolve step missing resolver")
	}
	stepState := s.stepState(state)

	tpl, err := templateFromState(state)
	if err != nil {
		return err
	}
	tables, err := rawTablesFromState(state)
	if err != nil {
		return err
	}

	s.updateProgress(state.ID, stepState, 10, "Resolving headers...")

	specs := make([]domain.HeaderSpec, 0, len(tables))
	sheets := make([]transform.Sheet, 0, len(tables))
	for i := range tables {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		spec, err := s.deps.Resolver.Resolve(&tables[i], tpl.HeaderRow)
		if err != nil {
			return fmt.Errorf("resolve header for sheet %q: %w", sheetLabel(&tables[i]), err)
		}
		specs = append(specs, spec)
		sheets = append(sheets, transform.Sheet{
			Name:  tables[i].Sheet,
			Table: transform.Frame(&tables[i], spec),
		})
		s.updateProgress(state.ID, stepState, 10+((i+1)*80)/len(tables),
			fmt.Sprintf("Resolved sheet %d of %d", i+1, len(tables)))
	}

	state.SetContext(ContextKeyHeaderSpecs, specs)
	state.SetContext(ContextKeySheets, sheets)
	stepState.SetMetadata("columns", len(specs[0].Labels))
	stepState.SetMetadata("header_rows", specs[0].HeaderRows)

	s.logger.InfoContext(ctx, "headers resolved",
		slog.Int("sheets", len(specs)),
		slog.Int("columns", len(specs[0].Labels)))
	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Resolved %d columns", len(specs[0].Labels)))
	return nil
}

func sheetLabel(t *domain.RawTable) string {
	if t.Sheet != "" {
		return t.Sheet
	}
	return filepath.Base(t.SourceFile)
}

// MapStep maps the resolved raw headers onto the canonical contract
// fields through template replay, synonyms and similarity matching.
type MapStep struct {
	pipelineStep
}

// NewMapStep creates the schema mapping step.
func NewMapStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *MapStep {
	return &MapStep{
		pipelineStep: newPipelineStep(StepIDMap, StepNameMap, []string{StepIDResolve}, deps, logger, options),
	}
}

// Execute maps the first sheet's headers and stores the resulting column
// mapping. Multi-sheet sources share one mapping because combining
// requires identical headers across sheets.
func (s *MapStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Mapper == nil {
		return errors.New("map step missing mapper")
	}
	stepState := s.stepState(state)

	tpl, err := templateFromState(state)
	if err != nil {
		return err
	}
	specs, err := specsFromState(state)
	if err != nil {
		return err
	}

	s.updateProgress(state.ID, stepState, 20, "Mapping headers to contract fields...")

	headers := specs[0].Labels
	mapping := s.deps.Mapper.Map(headers, tpl)

	unmapped := mapping.UnmappedHeaders()
	if len(unmapped) > 0 {
		s.logger.WarnContext(ctx, "headers left unmapped",
			slog.Int("count", len(unmapped)),
			slog.Any("headers", unmapped))
	}

	state.SetContext(ContextKeyMapping, mapping)
	stepState.SetMetadata("mapped_count", len(headers)-len(unmapped))
	stepState.SetMetadata("unmapped_headers", unmapped)

	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Mapped %d of %d headers", len(headers)-len(unmapped), len(headers)))
	return nil
}

// TransformStep reshapes the framed sheets into the standardized table:
// renaming, combining, unpivoting, aggregating and cleanup.
type TransformStep struct {
	pipelineStep
}

// NewTransformStep creates the reshape step.
func NewTransformStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *TransformStep {
	return &TransformStep{
		pipelineStep: newPipelineStep(StepIDTransform, StepNameTransform, []string{StepIDMap}, deps, logger, options),
	}
}

// Execute runs the transform engine over the framed sheets and stores the
// result in the operation state.
func (s *TransformStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Engine == nil {
		return errors.New("transform step missing engine")
	}
	stepState := s.stepState(state)

	tpl, err := templateFromState(state)
	if err != nil {
		return err
	}
	sheets, err := sheetsFromState(state)
	if err != nil {
		return err
	}
	mapping, err := mappingFromState(state)
	if err != nil {
		return err
	}
	sourceFile, err := stringConfig(state, ContextKeySourceFile)
	if err != nil {
		return err
	}

	s.updateProgress(state.ID, stepState, 10, "Reshaping table...")

	result, err := s.deps.Engine.Run(sheets, mapping, tpl, filepath.Base(sourceFile))
	if err != nil {
		return fmt.Errorf("transform %s: %w", filepath.Base(sourceFile), err)
	}

	state.SetContext(ContextKeyTransformResult, result)
	stepState.SetMetadata("rows_in", result.Metrics.RowsIn)
	stepState.SetMetadata("rows_out", result.Metrics.RowsOut)
	stepState.SetMetadata("sheets_combined", result.Metrics.SheetsCombined)
	if len(result.Metrics.DroppedColumns) > 0 {
		stepState.SetMetadata("dropped_columns", result.Metrics.DroppedColumns)
	}

	if tracer := GetOperationTracer(); tracer != nil {
		tracer.RecordTableMetrics(ctx, result.Metrics.RowsIn, result.Metrics.RowsOut)
	}

	s.logger.InfoContext(ctx, "transform complete",
		slog.Int("rows_in", result.Metrics.RowsIn),
		slog.Int("rows_out", result.Metrics.RowsOut))
	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Reshaped %d rows into %d", result.Metrics.RowsIn, result.Metrics.RowsOut))
	return nil
}

// ValidateStep checks the transformed table against the contract.
type ValidateStep struct {
	pipelineStep
}

// NewValidateStep creates the contract validation step.
func NewValidateStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *ValidateStep {
	return &ValidateStep{
		pipelineStep: newPipelineStep(StepIDValidate, StepNameValidate, []string{StepIDTransform}, deps, logger, options),
	}
}

// Execute validates the transformed table and stores the result. An
// invalid table is a routing decision, not a step failure: the route step
// quarantines it.
func (s *ValidateStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Validator == nil {
		return errors.New("validate step missing validator")
	}
	stepState := s.stepState(state)

	tpl, err := templateFromState(state)
	if err != nil {
		return err
	}
	result, err := resultFromState(state)
	if err != nil {
		return err
	}

	level := s.deps.Level
	if v, err := stringConfig(state, ContextKeyValidationLevel); err == nil {
		level = domain.ValidationLevel(v)
	}
	if level == "" {
		level = domain.ValidationContract
	}

	s.updateProgress(state.ID, stepState, 20,
		fmt.Sprintf("Validating against contract at level %s...", level))

	vr := s.deps.Validator.Validate(result.Table, tpl, level)
	state.SetContext(ContextKeyValidation, vr)

	stepState.SetMetadata("valid", vr.Valid)
	stepState.SetMetadata("violation_count", len(vr.Violations))
	stepState.SetMetadata("level", string(level))

	if vr.Valid {
		s.updateProgress(state.ID, stepState, 100, "Validation passed")
		return nil
	}

	s.logger.WarnContext(ctx, "contract violations found",
		slog.Int("count", len(vr.Violations)),
		slog.String("level", string(level)))
	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Found %d contract violations", len(vr.Violations)))
	return nil
}

// RouteStep writes the standardized output and moves the source file to
// the archive or quarantine directory based on the validation result.
type RouteStep struct {
	pipelineStep
}

// NewRouteStep creates the outcome routing step.
func NewRouteStep(deps *Dependencies, logger *slog.Logger, options *StepOptions) *RouteStep {
	return &RouteStep{
		pipelineStep: newPipelineStep(StepIDRoute, StepNameRoute, []string{StepIDValidate}, deps, logger, options),
	}
}

// Execute routes the operation's outcome and stores the audit record.
func (s *RouteStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps == nil || s.deps.Router == nil {
		return errors.New("route step missing router")
	}
	stepState := s.stepState(state)

	tpl, err := templateFromState(state)
	if err != nil {
		return err
	}
	mapping, err := mappingFromState(state)
	if err != nil {
		return err
	}
	result, err := resultFromState(state)
	if err != nil {
		return err
	}
	vr, err := validationFromState(state)
	if err != nil {
		return err
	}
	sourceFile, err := stringConfig(state, ContextKeySourceFile)
	if err != nil {
		return err
	}

	s.updateProgress(state.ID, stepState, 20, "Routing outcome...")

	dropped := append([]string{}, result.Metrics.DroppedColumns...)
	dropped = append(dropped, result.Metrics.SparseColumnsDropped...)
	metrics := domain.PipelineMetrics{
		RowsIn:          result.Metrics.RowsIn,
		RowsOut:         result.Metrics.RowsOut,
		SheetsRead:      result.Metrics.SheetsCombined,
		UnmappedHeaders: mapping.UnmappedHeaders(),
		DroppedColumns:  dropped,
		ViolationCount:  len(vr.Violations),
		Duration:        state.Duration(),
	}

	rec, err := s.deps.Router.Route(outcome.Request{
		SourceFile:  sourceFile,
		Provider:    tpl.Provider,
		Template:    tpl,
		Result:      vr,
		Transformed: result.Table,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("route %s: %w", filepath.Base(sourceFile), err)
	}

	state.SetContext(ContextKeyOutcome, rec)
	if tracer := GetOperationTracer(); tracer != nil {
		tracer.RecordOutcome(ctx, rec)
	}

	stepState.SetMetadata("outcome", string(rec.State))
	if rec.Archived() {
		stepState.SetMetadata("output_path", rec.OutputPath)
		s.logger.InfoContext(ctx, "file archived",
			slog.String("source_file", rec.SourceFile),
			slog.String("output", rec.OutputPath))
		s.updateProgress(state.ID, stepState, 100,
			fmt.Sprintf("Archived as %s", filepath.Base(rec.OutputPath)))
		return nil
	}

	stepState.SetMetadata("error_log_path", rec.ErrorLogPath)
	s.logger.WarnContext(ctx, "file quarantined",
		slog.String("source_file", rec.SourceFile),
		slog.Int("violations", len(rec.Violations)))
	s.updateProgress(state.ID, stepState, 100,
		fmt.Sprintf("Quarantined with %d violations", len(rec.Violations)))
	return nil
}

// ProducedOutputs reports the directories the routing step writes into.
func (s *RouteStep) ProducedOutputs() []DataOutput {
	outputDir := "data/output"
	archiveDir := "data/archive"
	quarantineDir := "data/quarantine"
	if s.deps != nil && s.deps.Paths != nil {
		outputDir = s.deps.Paths.OutputDir
		archiveDir = s.deps.Paths.ArchiveDir
		quarantineDir = s.deps.Paths.QuarantineDir
	}
	return []DataOutput{
		{Type: DataTypeCleanedOutputs, Location: outputDir, Pattern: "*_clean.*"},
		{Type: DataTypeArchivedFiles, Location: archiveDir, Pattern: "*.*"},
		{Type: DataTypeQuarantinedFiles, Location: quarantineDir, Pattern: "*.*"},
	}
}

// StepFactory creates the six pipeline steps wired to the shared
// dependencies, keyed by step ID.
func StepFactory(deps *Dependencies, logger *slog.Logger, options *StepOptions) map[string]Step {
	return map[string]Step{
		StepIDIngest:    NewIngestStep(deps, logger, options),
		StepIDResolve:   NewResolveStep(deps, logger, options),
		StepIDMap:       NewMapStep(deps, logger, options),
		StepIDTransform: NewTransformStep(deps, logger, options),
		StepIDValidate:  NewValidateStep(deps, logger, options),
		StepIDRoute:     NewRouteStep(deps, logger, options),
	}
}

// stringConfig reads a required string from the operation config.
func stringConfig(state *OperationState, key string) (string, error) {
	v, ok := state.GetConfig(key)
	if !ok {
		return "", fmt.Errorf("missing %s in operation config", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing %s in operation config", key)
	}
	return s, nil
}

func templateFromState(state *OperationState) (*domain.Template, error) {
	if v, ok := state.GetContext(ContextKeyTemplate); ok {
		if tpl, ok := v.(*domain.Template); ok && tpl != nil {
			return tpl, nil
		}
	}
	return nil, errors.New("no template in operation state, run the ingest step first")
}

func rawTablesFromState(state *OperationState) ([]domain.RawTable, error) {
	if v, ok := state.GetContext(ContextKeyRawTables); ok {
		if tables, ok := v.([]domain.RawTable); ok && len(tables) > 0 {
			return tables, nil
		}
	}
	return nil, errors.New("no raw tables in operation state, run the ingest step first")
}

func specsFromState(state *OperationState) ([]domain.HeaderSpec, error) {
	if v, ok := state.GetContext(ContextKeyHeaderSpecs); ok {
		if specs, ok := v.([]domain.HeaderSpec); ok && len(specs) > 0 {
			return specs, nil
		}
	}
	return nil, errors.New("no header specs in operation state, run the resolve step first")
}

func sheetsFromState(state *OperationState) ([]transform.Sheet, error) {
	if v, ok := state.GetContext(ContextKeySheets); ok {
		if sheets, ok := v.([]transform.Sheet); ok && len(sheets) > 0 {
			return sheets, nil
		}
	}
	return nil, errors.New("no framed sheets in operation state, run the resolve step first")
}

func mappingFromState(state *OperationState) (*domain.ColumnMapping, error) {
	if v, ok := state.GetContext(ContextKeyMapping); ok {
		if mapping, ok := v.(*domain.ColumnMapping); ok && mapping != nil {
			return mapping, nil
		}
	}
	return nil, errors.New("no column mapping in operation state, run the map step first")
}

func resultFromState(state *OperationState) (*transform.Result, error) {
	if v, ok := state.GetContext(ContextKeyTransformResult); ok {
		if result, ok := v.(*transform.Result); ok && result != nil {
			return result, nil
		}
	}
	return nil, errors.New("no transform result in operation state, run the transform step first")
}

func validationFromState(state *OperationState) (domain.ValidationResult, error) {
	if v, ok := state.GetContext(ContextKeyValidation); ok {
		if vr, ok := v.(domain.ValidationResult); ok {
			return vr, nil
		}
	}
	return domain.ValidationResult{}, errors.New("no validation result in operation state, run the validate step first")
}

// Compile-time interface checks to catch method receiver issues early.
var (
	_ Step = (*IngestStep)(nil)
	_ Step = (*ResolveStep)(nil)
	_ Step = (*MapStep)(nil)
	_ Step = (*TransformStep)(nil)
	_ Step = (*ValidateStep)(nil)
	_ Step = (*RouteStep)(nil)
)
