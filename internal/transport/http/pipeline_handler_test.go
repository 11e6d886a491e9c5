package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/middleware"
	"schemapipe/internal/services"
	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

// MockPipelineService is a mock implementation of PipelineServiceInterface.
type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) ProcessFile(ctx context.Context, req services.ProcessRequest) (*domain.OutcomeRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutcomeRecord), args.Error(1)
}

func (m *MockPipelineService) ProcessBatch(ctx context.Context, req services.BatchRequest) (*services.BatchSummary, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BatchSummary), args.Error(1)
}

func (m *MockPipelineService) Preview(ctx context.Context, req services.IngestPreviewRequest) (*services.IngestPreview, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IngestPreview), args.Error(1)
}

func (m *MockPipelineService) TransformPreview(ctx context.Context, tpl *domain.Template, rows [][]string) (*transform.Result, error) {
	args := m.Called(ctx, tpl, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transform.Result), args.Error(1)
}

func (m *MockPipelineService) ValidatePreview(ctx context.Context, tpl *domain.Template, rows [][]string, level domain.ValidationLevel) (domain.ValidationResult, error) {
	args := m.Called(ctx, tpl, rows, level)
	return args.Get(0).(domain.ValidationResult), args.Error(1)
}

// recorderHub records broadcasts for assertions.
type recorderHub struct {
	mu        sync.Mutex
	errorCodes []string
	refreshes  []string
}

func (h *recorderHub) BroadcastError(code, message, details, step string, recoverable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCodes = append(h.errorCodes, code)
}

func (h *recorderHub) BroadcastRefresh(source string, components []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes = append(h.refreshes, source)
}

func (h *recorderHub) ErrorCodes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errorCodes...)
}

func (h *recorderHub) Refreshes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.refreshes...)
}

func setupPipelineHandler(t *testing.T) (*PipelineHandler, *MockPipelineService, *MockTemplateService, *recorderHub) {
	t.Helper()
	service := &MockPipelineService{}
	templates := &MockTemplateService{}
	hub := &recorderHub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewPipelineHandler(service, templates, hub, logger)
	return handler, service, templates, hub
}

func setupPipelineRouter(handler *PipelineHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Post("/api/v1/process", handler.ProcessFile)
	r.Post("/api/v1/process/batch", handler.ProcessBatch)
	r.Post("/api/v1/ingest", handler.Ingest)
	r.Post("/api/v1/transform", handler.Transform)
	r.Post("/api/v1/validate", handler.Validate)
	return r
}

func archivedRecord() *domain.OutcomeRecord {
	return &domain.OutcomeRecord{
		ID:           "rec-1",
		SourceFile:   "sales.xlsx",
		Provider:     "broker_x",
		State:        domain.OutcomeArchived,
		OutputPath:   "data/output/sales.csv",
		ArchivedPath: "data/archive/sales.xlsx",
		Metrics: domain.PipelineMetrics{
			RowsIn:   120,
			RowsOut:  118,
			Duration: 300 * time.Millisecond,
		},
		CompletedAt: time.Now().UTC(),
	}
}

func quarantinedRecord() *domain.OutcomeRecord {
	return &domain.OutcomeRecord{
		ID:            "rec-2",
		SourceFile:    "broken.xlsx",
		State:         domain.OutcomeQuarantined,
		ErrorLogPath:  "data/quarantine/broken.xlsx.error.log",
		FailureReason: "contract validation failed",
		Violations: []domain.Violation{
			{Row: 2, Column: "amount", Kind: domain.ViolationTypeMismatch, Message: "not a number"},
		},
		Metrics: domain.PipelineMetrics{
			RowsIn:         10,
			ViolationCount: 1,
		},
		CompletedAt: time.Now().UTC(),
	}
}

func TestProcessFileArchived(t *testing.T) {
	handler, service, _, hub := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessFile", mock.Anything, mock.MatchedBy(func(req services.ProcessRequest) bool {
		return req.SourceFile == "sales.xlsx" && req.ValidationLevel == domain.ValidationStrict
	})).Return(archivedRecord(), nil)

	rec := postJSON(t, router, "/api/v1/process", map[string]interface{}{
		"source_file":      "sales.xlsx",
		"validation_level": "strict",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "data/output/sales.csv", body["output_path"])
	assert.Equal(t, float64(118), body["row_count"])
	assert.Empty(t, hub.ErrorCodes())
	service.AssertExpectations(t)
}

func TestProcessFileQuarantinedReturnsProblem(t *testing.T) {
	handler, service, _, hub := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessFile", mock.Anything, mock.Anything).Return(quarantinedRecord(), nil)

	rec := postJSON(t, router, "/api/v1/process", map[string]interface{}{
		"source_file": "broken.xlsx",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "File Quarantined", body["title"])
	assert.Equal(t, "quarantined", body["error_type"])
	assert.Equal(t, "broken.xlsx", body["source_file"])
	assert.Equal(t, float64(1), body["violation_count"])
	assert.Contains(t, body["error_log_path"], "error.log")
	assert.Equal(t, []string{"ERR_CONTRACT_VIOLATIONS"}, hub.ErrorCodes())
}

func TestProcessFileHardFailureBroadcasts(t *testing.T) {
	handler, service, _, hub := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessFile", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: source file is required", services.ErrInvalidInput))

	rec := postJSON(t, router, "/api/v1/process", map[string]interface{}{
		"source_file": "sales.xlsx",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"ERR_PROCESS_FAILED"}, hub.ErrorCodes())
}

func TestProcessFileBindRejectsEmptyBody(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	rec := postJSON(t, router, "/api/v1/process", map[string]interface{}{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "ProcessFile")
}

func TestProcessFileMapsTemplateMissing(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessFile", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("load template: %w", apierrors.ErrTemplateMissing))

	rec := postJSON(t, router, "/api/v1/process", map[string]interface{}{
		"source_file":  "sales.xlsx",
		"template_key": "nope",
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Template Not Found", body["title"])
}

func TestProcessBatchSummarizes(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessBatch", mock.Anything, mock.MatchedBy(func(req services.BatchRequest) bool {
		return req.InputDir == "drops" && req.MaxWorkers == 4
	})).Return(&services.BatchSummary{
		Total:       3,
		Archived:    2,
		Quarantined: 1,
		Items: []services.BatchItem{
			{SourceFile: "a.csv"},
			{SourceFile: "b.csv"},
			{SourceFile: "c.csv"},
		},
	}, nil)

	rec := postJSON(t, router, "/api/v1/process/batch", map[string]interface{}{
		"input_dir":   "drops",
		"max_workers": 4,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(2), body["archived"])
	service.AssertExpectations(t)
}

func TestProcessBatchNoFiles(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	service.On("ProcessBatch", mock.Anything, mock.Anything).
		Return(nil, services.ErrNoSourceFiles)

	rec := postJSON(t, router, "/api/v1/process/batch", map[string]interface{}{})

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "No Source Files", body["title"])
}

func TestIngestPreview(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	headerRow := 3
	service.On("Preview", mock.Anything, mock.MatchedBy(func(req services.IngestPreviewRequest) bool {
		return req.SourceFile == "sales.xlsx" && req.HeaderRow != nil && *req.HeaderRow == 3
	})).Return(&services.IngestPreview{
		SourceFile: "sales.xlsx",
		RowCount:   42,
		Sample:     [][]string{{"2024-01-02", "100"}},
	}, nil)

	rec := postJSON(t, router, "/api/v1/ingest", map[string]interface{}{
		"source_file": "sales.xlsx",
		"header_row":  headerRow,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(42), body["row_count"])
	service.AssertExpectations(t)
}

func TestIngestRejectsOversizedSample(t *testing.T) {
	handler, _, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	rec := postJSON(t, router, "/api/v1/ingest", map[string]interface{}{
		"source_file": "sales.xlsx",
		"sample_rows": 5000,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransformPreviewInlineTemplate(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	table := domain.NewTransformedTable([]string{"date", "amount"})
	table.Rows = [][]string{{"2024-01-02", "100"}}
	service.On("TransformPreview", mock.Anything, mock.Anything, mock.Anything).
		Return(&transform.Result{
			Table:   table,
			Metrics: transform.Metrics{RowsIn: 1, RowsOut: 1},
		}, nil)

	rec := postJSON(t, router, "/api/v1/transform", map[string]interface{}{
		"template": map[string]interface{}{"key": "broker_x"},
		"rows":     [][]string{{"2024-01-02", "100"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["row_count"])
	columns := body["columns"].([]interface{})
	assert.Equal(t, "date", columns[0])
}

func TestTransformPreviewLoadsTemplateByKey(t *testing.T) {
	handler, service, templates, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	tpl := &domain.Template{Key: "broker_x"}
	templates.On("Get", mock.Anything, "broker_x").Return(tpl, nil)
	table := domain.NewTransformedTable([]string{"date"})
	service.On("TransformPreview", mock.Anything, tpl, mock.Anything).
		Return(&transform.Result{Table: table}, nil)

	rec := postJSON(t, router, "/api/v1/transform", map[string]interface{}{
		"template_key": "broker_x",
		"rows":         [][]string{{"2024-01-02"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	templates.AssertExpectations(t)
	service.AssertExpectations(t)
}

func TestTransformPreviewRequiresRows(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	rec := postJSON(t, router, "/api/v1/transform", map[string]interface{}{
		"template_key": "broker_x",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "TransformPreview")
}

func TestValidatePreviewReportsViolations(t *testing.T) {
	handler, service, templates, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	tpl := &domain.Template{Key: "broker_x"}
	templates.On("Get", mock.Anything, "broker_x").Return(tpl, nil)
	service.On("ValidatePreview", mock.Anything, tpl, mock.Anything, domain.ValidationContract).
		Return(domain.InvalidResult(2, []domain.Violation{
			{Row: 1, Column: "amount", Kind: domain.ViolationNullInRequiredField, Message: "empty"},
		}), nil)

	rec := postJSON(t, router, "/api/v1/validate", map[string]interface{}{
		"template_key": "broker_x",
		"rows":         [][]string{{"a"}, {""}},
		"level":        "contract",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["is_valid"])
	violations := body["errors"].([]interface{})
	require.Len(t, violations, 1)
	assert.Equal(t, float64(2), body["row_count"])
}

func TestValidatePreviewRejectsBadLevel(t *testing.T) {
	handler, service, _, _ := setupPipelineHandler(t)
	router := setupPipelineRouter(handler)

	rec := postJSON(t, router, "/api/v1/validate", map[string]interface{}{
		"template_key": "broker_x",
		"rows":         [][]string{{"a"}},
		"level":        "everything",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "ValidatePreview")
}
