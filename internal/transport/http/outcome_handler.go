package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/middleware"
	"schemapipe/pkg/contracts/domain"
)

// OutcomeHandler serves the audit endpoints over the outcome log.
type OutcomeHandler struct {
	service OutcomeServiceInterface
	logger  *slog.Logger
	params  *middleware.QueryParamValidator
}

// NewOutcomeHandler creates a new outcome handler.
func NewOutcomeHandler(service OutcomeServiceInterface, logger *slog.Logger) *OutcomeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "outcomes")),
		params:  middleware.NewQueryParamValidator(logger, apierrors.NewErrorHandler(logger, false)),
	}
}

// Routes returns the outcomes router.
func (h *OutcomeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListOutcomes)
	r.Get("/summary", h.GetSummary)
	return r
}

// ListOutcomes handles GET /api/v1/outcomes, newest first. An optional
// state filter keeps only archived or quarantined records.
func (h *OutcomeHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, ok := h.params.ValidateInt(w, r, "limit", 1, 500, 50)
	if !ok {
		return
	}
	state, ok := h.params.ValidateEnum(w, r, "state",
		[]string{"archived", "quarantined"}, "")
	if !ok {
		return
	}

	records, err := h.service.Recent(ctx, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if state != "" {
		filtered := records[:0]
		for i := range records {
			if string(records[i].State) == state {
				filtered = append(filtered, records[i])
			}
		}
		records = filtered
	}
	if records == nil {
		records = []domain.OutcomeRecord{}
	}

	render.JSON(w, r, map[string]interface{}{
		"outcomes": records,
		"count":    len(records),
	})
}

// GetSummary handles GET /api/v1/outcomes/summary.
func (h *OutcomeHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

func (h *OutcomeHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path))

	problem := apierrors.NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal-error",
		"Internal Server Error",
		"The audit log could not be read",
		r.URL.Path+"#"+reqID,
	).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)).
		WithExtension("request_id", reqID)
	render.Render(w, r, problem)
}
