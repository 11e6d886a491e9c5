package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"schemapipe/internal/config"
	"schemapipe/internal/diagnostics"
	"schemapipe/internal/exporter"
	"schemapipe/internal/headerresolve"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/ingest"
	"schemapipe/internal/mapper"
	"schemapipe/internal/operations"
	"schemapipe/internal/outcome"
	"schemapipe/internal/schema"
	"schemapipe/internal/services"
	"schemapipe/internal/templates"
	"schemapipe/internal/transform"
	"schemapipe/internal/validation"
	"schemapipe/pkg/contracts/domain"
)

// quietHub drops operation broadcasts. The CLI reports through its
// summary output instead of a websocket channel.
type quietHub struct{}

func (quietHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {}

func main() {
	in := flag.String("in", "", "input directory containing provider exports (defaults to data/input)")
	provider := flag.String("provider", "", "provider tag for files at the top level of the input directory")
	templateKey := flag.String("template", "", "template key applied to every file (defaults to per-file template lookup)")
	level := flag.String("level", "", "validation level: off, contract or strict (defaults to configuration)")
	workers := flag.Int("workers", 0, "maximum files processed in parallel (defaults to configuration)")
	flag.Parse()

	// Optional .env file for local development; the environment wins when
	// both define a key.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
		cfg.Logging.FilePath = "logs/processor.log"
	}
	if *level != "" {
		cfg.Pipeline.ValidationLevel = *level
	}
	if *workers > 0 {
		cfg.Pipeline.MaxWorkers = *workers
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		slog.Error("Failed to resolve data directories", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	inputDir := *in
	if inputDir == "" {
		inputDir = paths.InputDir
	}

	logger.Info("Starting batch processing",
		slog.String("input_dir", inputDir),
		slog.String("provider", *provider),
		slog.String("template", *templateKey),
		slog.String("validation_level", cfg.Pipeline.ValidationLevel),
		slog.Int("workers", cfg.Pipeline.MaxWorkers))

	pipeline, err := buildPipeline(cfg, paths, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Interrupts stop scheduling new files; files already running finish
	// their routing so nothing is left half-moved.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn("Received shutdown signal, finishing in-flight files", slog.String("signal", sig.String()))
		cancel()
	}()

	summary, err := pipeline.ProcessBatch(ctx, services.BatchRequest{
		InputDir:        inputDir,
		Provider:        *provider,
		TemplateKey:     *templateKey,
		ValidationLevel: domain.ValidationLevel(cfg.Pipeline.ValidationLevel),
		MaxWorkers:      cfg.Pipeline.MaxWorkers,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoSourceFiles) {
			logger.Info("No source files to process", slog.String("input_dir", inputDir))
			fmt.Printf("No source files found in %s\n", inputDir)
			return
		}
		logger.Error("Batch processing failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Processed %d files\n", summary.Total)
	for _, item := range summary.Items {
		fmt.Println(formatItem(item))
	}
	fmt.Printf("Batch complete: %d archived, %d quarantined, %d failed (%s)\n",
		summary.Archived, summary.Quarantined, summary.Failed, summary.Duration.Round(time.Millisecond))

	logger.Info("Batch processing complete",
		slog.Int("total", summary.Total),
		slog.Int("archived", summary.Archived),
		slog.Int("quarantined", summary.Quarantined),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// buildPipeline wires the pipeline components the same way the server
// does, minus the websocket hub and the job queue the CLI has no use for.
func buildPipeline(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*services.PipelineService, error) {
	store, err := templates.NewStore(context.Background(), cfg.Templates, paths.TemplatesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize template store: %w", err)
	}

	layers, err := schema.LoadLayers(paths.SynonymsFile, paths.UserSynonymsFile)
	if err != nil {
		return nil, fmt.Errorf("load synonym layers: %w", err)
	}

	contract := schema.DefaultContract()
	audit := outcome.NewAuditLog(paths.AuditLogFile, logger)

	deps := &operations.Dependencies{
		Reader: ingest.NewReader(logger),
		Resolver: headerresolve.NewResolver(headerresolve.Config{
			ScanWindow:  cfg.Pipeline.HeaderScanWindow,
			StringRatio: cfg.Pipeline.HeaderStringRatio,
			WidthRatio:  cfg.Pipeline.HeaderWidthRatio,
		}, logger),
		Mapper: mapper.New(contract, layers, mapper.Config{
			SimilarityThreshold:     cfg.Pipeline.SimilarityThreshold,
			TemplateReplayThreshold: cfg.Pipeline.TemplateReplayThreshold,
		}, logger),
		Engine: transform.NewEngine(contract, transform.Config{
			SparseColumnThreshold: cfg.Pipeline.SparseColumnThreshold,
		}, logger),
		Validator: validation.NewValidator(contract, logger),
		Router: outcome.NewRouter(paths, exporter.NewWriter(logger),
			diagnostics.NewProfiler(logger), audit, logger),
		Templates: store,
		Paths:     paths,
		Level:     domain.ValidationLevel(cfg.Pipeline.ValidationLevel),
	}

	manager := operations.NewManager(quietHub{}, operations.NewRegistry(), operations.NewConfig())
	options := &operations.StepOptions{StatusBroadcaster: manager.GetBroadcaster()}
	for _, step := range operations.StepFactory(deps, logger, options) {
		if err := manager.GetRegistry().Register(step); err != nil {
			return nil, fmt.Errorf("register step: %w", err)
		}
	}

	return services.NewPipelineService(deps, manager, cfg.Pipeline, logger), nil
}

// formatItem renders one per-file result line for the batch summary.
func formatItem(item services.BatchItem) string {
	name := filepath.Base(item.SourceFile)
	record := item.Record
	switch {
	case record == nil:
		return fmt.Sprintf("  failed       %s: %s", name, item.Error)
	case record.Archived():
		return fmt.Sprintf("  archived     %s -> %s (%d rows)", name, record.OutputPath, record.Metrics.RowsOut)
	case record.Metrics.ViolationCount > 0:
		return fmt.Sprintf("  quarantined  %s (%d violations, see %s)",
			name, record.Metrics.ViolationCount, filepath.Base(record.ErrorLogPath))
	default:
		return fmt.Sprintf("  quarantined  %s (%s)", name, record.FailureReason)
	}
}
