package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/middleware"
	"schemapipe/internal/services"
	"schemapipe/pkg/contracts/domain"
)

// TemplateHandler serves the template CRUD endpoints. Saving promotes
// reviewed header overrides into the learned synonym layer, so the
// response reports how many new synonyms the save taught the mapper.
type TemplateHandler struct {
	service TemplateServiceInterface
	wsHub   Hub
	logger  *slog.Logger
}

// NewTemplateHandler creates a new template handler. The hub may be nil;
// refresh broadcasts are then skipped.
func NewTemplateHandler(service TemplateServiceInterface, wsHub Hub, logger *slog.Logger) *TemplateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateHandler{
		service: service,
		wsHub:   wsHub,
		logger:  logger.With(slog.String("handler", "templates")),
	}
}

// Routes returns the templates router.
func (h *TemplateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTemplates)
	r.Get("/{key}", h.GetTemplate)
	r.Put("/{key}", h.SaveTemplate)
	r.Delete("/{key}", h.DeleteTemplate)
	return r
}

// ListTemplates handles GET /api/v1/templates.
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	infos, err := h.service.List(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"templates": infos,
		"count":     len(infos),
	})
}

// GetTemplate handles GET /api/v1/templates/{key}. A fetch counts as a
// replay: callers load templates to apply them to the next file.
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	tracer := otel.Tracer("templates-handler")

	ctx, span := tracer.Start(ctx, "templates_handler.get_template")
	span.SetAttributes(attribute.String("template.key", key))
	defer span.End()
	r = r.WithContext(ctx)

	tpl, err := h.service.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template lookup failed")
		h.handleError(w, r, err)
		return
	}

	middleware.RecordTemplateMetrics(ctx, "replay")
	render.JSON(w, r, tpl)
}

// SaveTemplate handles PUT /api/v1/templates/{key}. The key in the URL
// wins over any key in the body.
func (h *TemplateHandler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("templates-handler")

	ctx, span := tracer.Start(ctx, "templates_handler.save_template")
	span.SetAttributes(attribute.String("template.key", key))
	defer span.End()
	r = r.WithContext(ctx)

	var tpl domain.Template
	if err := render.DecodeJSON(r.Body, &tpl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid template body")
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			"Request body is not a valid template document",
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}
	tpl.Key = key

	learned, err := h.service.Save(ctx, &tpl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template save failed")
		h.handleError(w, r, err)
		return
	}

	middleware.RecordTemplateMetrics(ctx, "save")
	if h.wsHub != nil {
		h.wsHub.BroadcastRefresh("templates", []string{tpl.Key})
	}

	h.logger.InfoContext(ctx, "template saved",
		slog.String("key", tpl.Key),
		slog.Int("version", tpl.Version),
		slog.Int("synonyms_learned", learned),
		slog.String("request_id", reqID))

	render.JSON(w, r, map[string]interface{}{
		"key":              tpl.Key,
		"version":          tpl.Version,
		"synonyms_learned": learned,
	})
}

// DeleteTemplate handles DELETE /api/v1/templates/{key}.
func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.service.Delete(ctx, key); err != nil {
		h.handleError(w, r, err)
		return
	}

	if h.wsHub != nil {
		h.wsHub.BroadcastRefresh("templates", []string{key})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.TraceIDFromContext(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path))

	instance := r.URL.Path + "#" + reqID
	var problem *apierrors.ProblemDetails

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		problem = apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			instance,
		)

	default:
		// ErrTemplateMissing maps to a 404 problem here.
		if pd, ok := apierrors.MapPipelineError(err, traceID).(*apierrors.ProblemDetails); ok {
			problem = pd
		} else {
			problem = apierrors.NewProblemDetails(
				http.StatusInternalServerError,
				"/errors/internal-error",
				"Internal Server Error",
				"An unexpected error occurred",
				instance,
			)
		}
	}

	problem.WithExtension("trace_id", traceID).
		WithExtension("request_id", reqID)
	render.Render(w, r, problem)
}
