package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"schemapipe/internal/config"
	"schemapipe/internal/files"
	"schemapipe/internal/operations"
	"schemapipe/internal/templates"
	"schemapipe/internal/websocket"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// HealthStatus is the envelope returned by the health endpoints.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth reports one dependency inside a HealthStatus.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// WebSocketHub is the slice of the hub the health service reads.
type WebSocketHub interface {
	ClientCount() int
}

// HealthService answers liveness, readiness and statistics queries for
// the monitoring endpoints.
type HealthService struct {
	build     BuildInfo
	paths     *config.Paths
	store     templates.Store
	manager   *operations.Manager
	hub       WebSocketHub
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. The hub may be nil outside
// the web server; the readiness check then skips it.
func NewHealthService(build BuildInfo, paths *config.Paths, store templates.Store, manager *operations.Manager, hub WebSocketHub, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		build:     build,
		paths:     paths,
		store:     store,
		manager:   manager,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports basic process health.
func (s *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    healthStatusHealthy,
		Timestamp: time.Now(),
		Version:   s.build.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}
}

// ReadinessCheck probes the dependencies a request would touch. The
// overall status degrades when any probe fails.
func (s *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	checks := map[string]ServiceHealth{
		"templates":  s.checkTemplates(ctx),
		"data":       s.checkData(),
		"operations": s.checkOperations(),
	}
	if s.hub != nil {
		checks["websocket"] = ServiceHealth{
			Status:  healthStatusHealthy,
			Message: fmt.Sprintf("%d clients connected", s.hub.ClientCount()),
		}
	}

	status := HealthStatus{
		Status:    healthStatusHealthy,
		Timestamp: time.Now(),
		Version:   s.build.Version,
		Services:  checks,
	}
	for _, check := range checks {
		if check.Status != healthStatusHealthy {
			status.Status = healthStatusDegraded
			break
		}
	}
	return status
}

func (s *HealthService) checkTemplates(ctx context.Context) ServiceHealth {
	if s.store == nil {
		return ServiceHealth{Status: healthStatusDegraded, Message: "template store not configured"}
	}
	infos, err := s.store.List(ctx)
	if err != nil {
		return ServiceHealth{Status: healthStatusDegraded, Message: err.Error()}
	}
	return ServiceHealth{Status: healthStatusHealthy, Message: fmt.Sprintf("%d templates", len(infos))}
}

func (s *HealthService) checkData() ServiceHealth {
	if s.paths == nil {
		return ServiceHealth{Status: healthStatusDegraded, Message: "paths not configured"}
	}
	for _, dir := range []string{s.paths.InputDir, s.paths.ArchiveDir, s.paths.QuarantineDir, s.paths.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return ServiceHealth{Status: healthStatusDegraded, Message: fmt.Sprintf("%s: %v", dir, err)}
		}
		if !info.IsDir() {
			return ServiceHealth{Status: healthStatusDegraded, Message: fmt.Sprintf("%s is not a directory", dir)}
		}
	}
	return ServiceHealth{Status: healthStatusHealthy}
}

func (s *HealthService) checkOperations() ServiceHealth {
	if s.manager == nil {
		return ServiceHealth{Status: healthStatusDegraded, Message: "manager not configured"}
	}
	steps := s.manager.GetRegistry().ListIDs()
	if len(steps) == 0 {
		return ServiceHealth{Status: healthStatusDegraded, Message: "no steps registered"}
	}
	return ServiceHealth{Status: healthStatusHealthy, Message: fmt.Sprintf("%d steps registered", len(steps))}
}

// LivenessCheck reports process level runtime facts.
func (s *HealthService) LivenessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"status":     "alive",
		"timestamp":  time.Now(),
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}
}

// Version reports the build stamp.
func (s *HealthService) Version(ctx context.Context) BuildInfo {
	return s.build
}

// SystemStats summarizes what the pipeline holds on disk along with live
// process counters.
func (s *HealthService) SystemStats(ctx context.Context) (map[string]interface{}, error) {
	var fileCount int
	var totalBytes int64
	err := filepath.Walk(s.paths.DataDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !info.IsDir() {
			fileCount++
			totalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir: %w", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := map[string]interface{}{
		"data_files": fileCount,
		"data_bytes": totalBytes,
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": mem.HeapAlloc,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	}

	discovery := files.NewDiscovery(s.paths.Root)
	if outputs, err := discovery.FindCleanedOutputs(s.paths.OutputDir); err == nil {
		stats["output_files"] = len(outputs)
		if latest, ok := files.GetLatestFile(outputs); ok {
			stats["latest_output"] = latest.Name
			stats["latest_output_at"] = latest.ModTime
		}
	}
	if logs, err := discovery.FindFilesByPattern(s.paths.QuarantineDir, "*.error.log"); err == nil {
		stats["quarantine_error_logs"] = len(logs)
	}
	if s.manager != nil {
		stats["active_operations"] = len(s.manager.ListOperations())
	}
	if s.hub != nil {
		stats["websocket_clients"] = s.hub.ClientCount()
		stats["websocket"] = websocket.GetMetrics().GetSnapshot()
	}
	return stats, nil
}
