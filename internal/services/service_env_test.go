package services

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"schemapipe/internal/config"
	"schemapipe/internal/diagnostics"
	"schemapipe/internal/exporter"
	"schemapipe/internal/headerresolve"
	"schemapipe/internal/ingest"
	"schemapipe/internal/mapper"
	"schemapipe/internal/operations"
	"schemapipe/internal/outcome"
	"schemapipe/internal/schema"
	"schemapipe/internal/shared/testutil"
	"schemapipe/internal/templates"
	"schemapipe/internal/transform"
	"schemapipe/internal/validation"
	"schemapipe/pkg/contracts/domain"
)

// stubHub satisfies both the broadcaster's hub interface and the health
// service's client counter.
type stubHub struct {
	mu      sync.Mutex
	events  int
	clients int
}

func (h *stubHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	h.events++
	h.mu.Unlock()
}

func (h *stubHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// serviceEnv wires real pipeline components against a temp directory so
// service tests exercise the same stack the server runs.
type serviceEnv struct {
	paths    *config.Paths
	fixtures *testutil.TableFixtures
	contract domain.Contract
	store    templates.Store
	deps     *operations.Dependencies
	manager  *operations.Manager
	hub      *stubHub
	logger   *slog.Logger
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	fixtures := testutil.NewTableFixtures(paths.InputDir)
	contract := fixtures.GetSalesContract()

	store, err := templates.NewFileStore(paths.TemplatesDir, logger)
	require.NoError(t, err)

	deps := &operations.Dependencies{
		Reader:    ingest.NewReader(logger),
		Resolver:  headerresolve.NewResolver(headerresolve.Config{}, logger),
		Mapper:    mapper.New(&contract, schema.Layers{}, mapper.Config{}, logger),
		Engine:    transform.NewEngine(&contract, transform.Config{}, logger),
		Validator: validation.NewValidator(&contract, logger),
		Router: outcome.NewRouter(paths, exporter.NewWriter(logger), diagnostics.NewProfiler(logger),
			outcome.NewAuditLog(paths.AuditLogFile, logger), logger),
		Templates: store,
		Paths:     paths,
		Level:     domain.ValidationContract,
	}

	hub := &stubHub{}
	manager := operations.NewManager(hub, operations.NewRegistry(), operations.NewConfig())
	t.Cleanup(manager.GetBroadcaster().Stop)

	options := &operations.StepOptions{StatusBroadcaster: manager.GetBroadcaster()}
	for _, step := range operations.StepFactory(deps, logger, options) {
		require.NoError(t, manager.GetRegistry().Register(step))
	}

	return &serviceEnv{
		paths:    paths,
		fixtures: fixtures,
		contract: contract,
		store:    store,
		deps:     deps,
		manager:  manager,
		hub:      hub,
		logger:   logger,
	}
}

// writeCSV drops a CSV under the input directory, optionally in a
// provider subdirectory, and returns its absolute path.
func (e *serviceEnv) writeCSV(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(e.paths.InputDir, name)
	require.NoError(t, e.fixtures.CreateCSVFile(path, ',', rows))
	return path
}

func (e *serviceEnv) pipelineService() *PipelineService {
	return NewPipelineService(e.deps, e.manager, config.PipelineConfig{MaxWorkers: 2}, e.logger)
}

func cleanSalesRows() [][]string {
	return [][]string{
		{"Order #", "Order Date", "Cust ID", "Qty", "Unit Price"},
		{"1001", "2024-01-15", "C-19", "5", "9.99"},
		{"1002", "2024-01-16", "C-23", "2", "24.50"},
		{"1003", "2024-01-17", "C-19", "1", "105.00"},
	}
}
