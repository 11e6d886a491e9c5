package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"schemapipe/internal/config"
	"schemapipe/internal/diagnostics"
	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/exporter"
	"schemapipe/internal/headerresolve"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/ingest"
	"schemapipe/internal/mapper"
	customMiddleware "schemapipe/internal/middleware"
	"schemapipe/internal/operations"
	"schemapipe/internal/outcome"
	"schemapipe/internal/schema"
	"schemapipe/internal/services"
	"schemapipe/internal/templates"
	"schemapipe/internal/transform"
	handlers "schemapipe/internal/transport/http"
	"schemapipe/internal/validation"
	ws "schemapipe/internal/websocket"
	"schemapipe/pkg/contracts/domain"
)

const (
	Version = "1.0.0"
	AppName = "schemapipe"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(Version))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application is the composition root of the pipeline server: it owns the
// configuration, the wired pipeline components, the services, the router
// and the HTTP server.
type Application struct {
	Config           *config.Config
	Paths            *config.Paths
	Router           *chi.Mux
	Server           *http.Server
	WebSocketHub     *ws.Hub
	OperationService *services.OperationService
	PipelineService  *services.PipelineService
	TemplateService  *services.TemplateService
	OutcomeService   *services.OutcomeService
	HealthService    *services.HealthService
	TemplateStore    templates.Store
	JobQueue         *operations.JobQueue
	Logger           *slog.Logger
	OTelProviders    *infrastructure.OTelProviders
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, err
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	if err := operations.InitGlobalOperationTracer(otelProviders); err != nil {
		return nil, fmt.Errorf("failed to initialize operation tracer: %w", err)
	}

	if err := ws.InitOTelMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize WebSocket OpenTelemetry metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices wires the pipeline components bottom-up: store and
// synonym layers, then the step dependencies, then the manager with its
// registered steps, then the services the handlers talk to.
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	store, err := templates.NewStore(context.Background(), a.Config.Templates, a.Paths.TemplatesDir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize template store: %w", err)
	}
	a.TemplateStore = store

	layers, err := schema.LoadLayers(a.Paths.SynonymsFile, a.Paths.UserSynonymsFile)
	if err != nil {
		return fmt.Errorf("failed to load synonym layers: %w", err)
	}

	contract := schema.DefaultContract()
	audit := outcome.NewAuditLog(a.Paths.AuditLogFile, a.Logger)

	deps := &operations.Dependencies{
		Reader: ingest.NewReader(a.Logger),
		Resolver: headerresolve.NewResolver(headerresolve.Config{
			ScanWindow:  a.Config.Pipeline.HeaderScanWindow,
			StringRatio: a.Config.Pipeline.HeaderStringRatio,
			WidthRatio:  a.Config.Pipeline.HeaderWidthRatio,
		}, a.Logger),
		Mapper: mapper.New(contract, layers, mapper.Config{
			SimilarityThreshold:     a.Config.Pipeline.SimilarityThreshold,
			TemplateReplayThreshold: a.Config.Pipeline.TemplateReplayThreshold,
		}, a.Logger),
		Engine: transform.NewEngine(contract, transform.Config{
			SparseColumnThreshold: a.Config.Pipeline.SparseColumnThreshold,
		}, a.Logger),
		Validator: validation.NewValidator(contract, a.Logger),
		Router: outcome.NewRouter(a.Paths, exporter.NewWriter(a.Logger),
			diagnostics.NewProfiler(a.Logger), audit, a.Logger),
		Templates: store,
		Paths:     a.Paths,
		Level:     domain.ValidationLevel(a.Config.Pipeline.ValidationLevel),
	}

	manager := operations.NewManager(hub, operations.NewRegistry(), operations.NewConfig())
	options := &operations.StepOptions{StatusBroadcaster: manager.GetBroadcaster()}
	for _, step := range operations.StepFactory(deps, a.Logger, options) {
		if err := manager.GetRegistry().Register(step); err != nil {
			return fmt.Errorf("failed to register step: %w", err)
		}
	}

	a.JobQueue = operations.NewJobQueue(a.Config.Pipeline.MaxWorkers,
		operations.NewMemoryJobStore(), manager, a.Paths, a.Logger)
	a.JobQueue.Start(context.Background())

	learned := schema.NewLearnedStore(a.Paths.UserSynonymsFile, a.Logger)

	a.OperationService = services.NewOperationService(manager, a.JobQueue, a.Logger)
	a.PipelineService = services.NewPipelineService(deps, manager, a.Config.Pipeline, a.Logger)
	a.TemplateService = services.NewTemplateService(store, learned, contract, layers, a.Logger)
	a.OutcomeService = services.NewOutcomeService(audit, a.Logger)
	a.HealthService = services.NewHealthService(
		services.BuildInfo{Version: Version, BuildTime: BuildTime, Commit: BuildID},
		a.Paths, store, manager, hub, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Unknown routes and wrong methods render RFC 7807 problems like
	// every other error surface.
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.isDevelopmentMode())
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Minimal middleware that won't interfere with WebSocket upgrades.
	// These are safe because they don't wrap the ResponseWriter.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// WebSocket route with minimal middleware and tracing, registered
	// before the full group so the upgrade never passes a wrapped writer.
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	// Probes and the Prometheus endpoint stay outside the full group:
	// orchestrators poll them hard and they must not hit the rate limiter.
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/healthz", healthHandler.HealthCheck)
	r.Get("/readyz", healthHandler.ReadinessCheck)
	r.Get("/livez", healthHandler.LivenessCheck)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	// Everything else runs under the full middleware chain:
	// RequestID → RealIP → OTel → BusinessMetrics → Logger → Recoverer →
	// SecurityHeaders → CORS → RateLimiter → Timeout (per route group).
	r.Group(func(r chi.Router) {
		if a.OTelProviders.Tracer != nil && a.OTelProviders.Meter != nil {
			otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
			if err != nil {
				a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
			} else {
				r.Use(otelMiddleware.Handler)
				r.Use(customMiddleware.BusinessMetricsMiddleware(otelMiddleware.BusinessMetrics()))
			}
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.getCORSConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r, healthHandler)
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, healthHandler *handlers.HealthHandler) {
	pipelineHandler := handlers.NewPipelineHandler(a.PipelineService, a.TemplateService, a.WebSocketHub, a.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Standard timeout for reads, previews and template CRUD.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.SystemStats)

			templateHandler := handlers.NewTemplateHandler(a.TemplateService, a.WebSocketHub, a.Logger)
			r.Mount("/templates", templateHandler.Routes())

			outcomeHandler := handlers.NewOutcomeHandler(a.OutcomeService, a.Logger)
			r.Mount("/outcomes", outcomeHandler.Routes())

			r.Post("/ingest", pipelineHandler.Ingest)
			r.Post("/transform", pipelineHandler.Transform)
			r.Post("/validate", pipelineHandler.Validate)

			r.Post("/logs", handlers.NewClientLogHandler(a.Logger).Handle)
		})

		// Longer timeout for pipeline runs and the operations surface.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout, a.Logger))

			operationsHandler := handlers.NewOperationsHandler(a.OperationService, a.Logger)
			r.Mount("/operations", operationsHandler.Routes())

			r.Post("/process", customMiddleware.PipelineTraceHandler("process", pipelineHandler.ProcessFile))
			r.Post("/process/batch", customMiddleware.PipelineTraceHandler("batch", pipelineHandler.ProcessBatch))
		})
	})
}

// getCORSConfig returns CORS configuration based on environment
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}

	serverOrigin := fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)
	if a.isDevelopmentMode() {
		// Development allows the review UI dev server alongside the API.
		cfg.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			serverOrigin,
			fmt.Sprintf("http://127.0.0.1:%d", a.Config.Server.Port),
		}
		a.Logger.Info("CORS configured for development mode",
			slog.Any("allowed_origins", cfg.AllowedOrigins))
	} else {
		cfg.AllowedOrigins = []string{serverOrigin}
		if a.Config.Security.EnableCORS && len(a.Config.Security.AllowedOrigins) > 0 {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, a.Config.Security.AllowedOrigins...)
		}
		a.Logger.Info("CORS configured for production mode",
			slog.Any("allowed_origins", cfg.AllowedOrigins))
	}

	return cfg
}

// isDevelopmentMode detects if we're running in development mode
func (a *Application) isDevelopmentMode() bool {
	if env := os.Getenv("APP_ENV"); env == "development" {
		return true
	}
	if env := os.Getenv("GO_ENV"); env == "development" {
		return true
	}
	return a.Config.Logging.Development
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server and reports startup problems through the
// cancel function so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "Application paths",
		slog.String("input", a.Paths.InputDir),
		slog.String("output", a.Paths.OutputDir),
		slog.String("archive", a.Paths.ArchiveDir),
		slog.String("quarantine", a.Paths.QuarantineDir),
		slog.String("templates", a.Paths.TemplatesDir),
		slog.String("logs", a.Paths.LogsDir))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.JobQueue != nil {
		a.Logger.InfoContext(ctx, "Stopping job queue")
		if err := a.JobQueue.Stop(30 * time.Second); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
		}
	}

	// Cancel operations still running outside the queue.
	for _, snap := range a.OperationService.ListSnapshots(ctx) {
		if snap.Status != string(operations.OperationStatusRunning) &&
			snap.Status != string(operations.OperationStatusPending) {
			continue
		}
		if err := a.OperationService.CancelOperation(ctx, snap.OperationID); err != nil {
			a.Logger.ErrorContext(ctx, "Error cancelling operation",
				slog.String("operation_id", snap.OperationID),
				slog.String("error", err.Error()))
		}
	}

	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped")
	}

	return a.Stop(context.Background())
}

// handleWebSocket handles WebSocket connections
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}

	ctx := infrastructure.WithTraceID(r.Context(), reqID)
	a.Logger.InfoContext(ctx, "WebSocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")),
		slog.String("host", r.Host))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// No origin means a same-origin or non-browser client.
			if origin == "" {
				return true
			}
			if a.isDevelopmentMode() {
				return true
			}
			for _, allowed := range a.getCORSConfig().AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			a.Logger.WarnContext(ctx, "WebSocket origin rejected",
				slog.String("origin", origin))
			return false
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(ctx, "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()))
			http.Error(w, http.StatusText(status), status)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.GetMetrics().RecordFailedConnection()
		a.Logger.ErrorContext(ctx, "WebSocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClientWithTrace(a.WebSocketHub, conn, reqID, a.Logger)
	a.WebSocketHub.Register(client)

	a.Logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", reqID))

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				a.Logger.ErrorContext(ctx, "WebSocket write pump panic",
					slog.Any("panic", rec),
					slog.String("request_id", reqID))
			}
		}()
		client.WritePump()
	}()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				a.Logger.ErrorContext(ctx, "WebSocket read pump panic",
					slog.Any("panic", rec),
					slog.String("request_id", reqID))
			}
		}()
		client.ReadPump()
	}()
}

// performStartupHealthCheck verifies the pipeline directories are writable
// before the first file arrives.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	directories := map[string]string{
		"Input":      a.Paths.InputDir,
		"Output":     a.Paths.OutputDir,
		"Archive":    a.Paths.ArchiveDir,
		"Quarantine": a.Paths.QuarantineDir,
		"Templates":  a.Paths.TemplatesDir,
		"Logs":       a.Paths.LogsDir,
	}

	for name, dir := range directories {
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if !config.FileExists(a.Paths.SynonymsFile) {
		a.Logger.InfoContext(ctx, "Base synonyms file not found, mapping uses built-in synonyms only",
			slog.String("path", a.Paths.SynonymsFile))
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}
