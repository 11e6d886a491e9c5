package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler records slog output for assertions.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) Records() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]slog.Record(nil), h.records...)
}

func TestClientLogForwardsToServerLog(t *testing.T) {
	capture := &captureHandler{}
	handler := NewClientLogHandler(slog.New(capture))

	body := `{"level":"error","message":"mapping preview failed","source":"review-ui","data":{"template":"broker_x"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	respBody := decodeBody(t, rec)
	assert.Equal(t, true, respBody["success"])

	records := capture.Records()
	require.Len(t, records, 1)
	assert.Equal(t, slog.LevelError, records[0].Level)
	assert.Equal(t, "mapping preview failed", records[0].Message)
}

func TestClientLogDefaultsToInfoLevel(t *testing.T) {
	capture := &captureHandler{}
	handler := NewClientLogHandler(slog.New(capture))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs",
		strings.NewReader(`{"level":"shout","message":"hello"}`))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	records := capture.Records()
	require.Len(t, records, 1)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
}

func TestClientLogRejectsBadJSON(t *testing.T) {
	handler := NewClientLogHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs",
		strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
