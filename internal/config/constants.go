package config

import "time"

// Application constants for the schema mapping pipeline
const (
	// Application Info
	AppName    = "SchemaPipe"
	AppVersion = "3.0.0"

	// Template persistence
	TemplateFileSuffix = ".df-template.json"

	// Supported input extensions
	ExcelFilePattern = ".*\\.xlsx?$"
	CSVFilePattern   = ".*\\.csv$"

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Rate Limiting
	DefaultRateLimit = 100 // requests per minute
	DefaultBurstSize = 50

	// Operation Timeouts
	DefaultOperationTimeout = 30 * time.Minute
	ProcessorTimeout        = 10 * time.Minute
	CombineTimeout          = 10 * time.Minute

	// WebSocket Buffer Sizes
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	// Log Settings
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	MaxLogFileSize    = 100 * 1024 * 1024 // 100MB
	MaxLogFileAge     = 30                // days
	MaxLogFileBackups = 10

	// API Endpoints (internal)
	APIBasePath       = "/api/v1"
	IngestEndpoint    = "/api/v1/ingest"
	TransformEndpoint = "/api/v1/transform"
	ValidateEndpoint  = "/api/v1/validate"
	ProcessEndpoint   = "/api/v1/process"
	TemplatesEndpoint = "/api/v1/templates"
	OutcomesEndpoint  = "/api/v1/outcomes"
	HealthEndpoint    = "/health"
	MetricsEndpoint   = "/metrics"

	// WebSocket Endpoints
	WebSocketEndpoint = "/ws"
)
