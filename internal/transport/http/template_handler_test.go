package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/middleware"
	"schemapipe/pkg/contracts/domain"
)

// MockTemplateService is a mock implementation of TemplateServiceInterface.
type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) Get(ctx context.Context, key string) (*domain.Template, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Template), args.Error(1)
}

func (m *MockTemplateService) List(ctx context.Context) ([]domain.TemplateInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TemplateInfo), args.Error(1)
}

func (m *MockTemplateService) Save(ctx context.Context, tpl *domain.Template) (int, error) {
	args := m.Called(ctx, tpl)
	return args.Int(0), args.Error(1)
}

func (m *MockTemplateService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func setupTemplateHandler(t *testing.T) (*TemplateHandler, *MockTemplateService, *recorderHub) {
	t.Helper()
	service := &MockTemplateService{}
	hub := &recorderHub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewTemplateHandler(service, hub, logger)
	return handler, service, hub
}

func setupTemplateRouter(handler *TemplateHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/v1/templates", handler.Routes())
	return r
}

func putJSON(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListTemplates(t *testing.T) {
	handler, service, _ := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("List", mock.Anything).Return([]domain.TemplateInfo{
		{Key: "broker_x", Provider: "broker_x", Version: 2},
		{Key: "broker_y", Provider: "broker_y", Version: 1},
	}, nil)

	rec := getPath(t, router, "/api/v1/templates")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	templates := body["templates"].([]interface{})
	first := templates[0].(map[string]interface{})
	assert.Equal(t, "broker_x", first["key"])
}

func TestGetTemplate(t *testing.T) {
	handler, service, _ := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("Get", mock.Anything, "broker_x").Return(&domain.Template{
		Key:      "broker_x",
		Provider: "broker_x",
		Version:  3,
	}, nil)

	rec := getPath(t, router, "/api/v1/templates/broker_x")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "broker_x", body["key"])
	assert.Equal(t, float64(3), body["template_version"])
}

func TestGetTemplateNotFound(t *testing.T) {
	handler, service, _ := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("Get", mock.Anything, "missing").
		Return(nil, fmt.Errorf("%q: %w", "missing", apierrors.ErrTemplateMissing))

	rec := getPath(t, router, "/api/v1/templates/missing")

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Template Not Found", body["title"])
}

func TestSaveTemplateURLKeyWins(t *testing.T) {
	handler, service, hub := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("Save", mock.Anything, mock.MatchedBy(func(tpl *domain.Template) bool {
		return tpl.Key == "broker_x"
	})).Return(5, nil)

	rec := putJSON(t, router, "/api/v1/templates/broker_x", map[string]interface{}{
		"key":      "something_else",
		"provider": "broker_x",
		"mapping":  map[string]interface{}{},
		"output":   map[string]interface{}{},
		"cleanup":  map[string]interface{}{},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "broker_x", body["key"])
	assert.Equal(t, float64(5), body["synonyms_learned"])
	assert.Equal(t, []string{"templates"}, hub.Refreshes())
	service.AssertExpectations(t)
}

func TestSaveTemplateRejectsBadJSON(t *testing.T) {
	handler, service, _ := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/templates/broker_x",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "Save")
}

func TestDeleteTemplate(t *testing.T) {
	handler, service, hub := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("Delete", mock.Anything, "broker_x").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/templates/broker_x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"templates"}, hub.Refreshes())
}

func TestDeleteTemplateMissing(t *testing.T) {
	handler, service, _ := setupTemplateHandler(t)
	router := setupTemplateRouter(handler)

	service.On("Delete", mock.Anything, "ghost").
		Return(fmt.Errorf("%q: %w", "ghost", apierrors.ErrTemplateMissing))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/templates/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
