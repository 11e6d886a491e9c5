package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Templates TemplatesConfig `yaml:"templates" envconfig:"TEMPLATES"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// OperationTimeout bounds the long-running routes (process, batch,
	// operations) separately from ReadTimeout.
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"1h"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PipelineConfig contains the tunable thresholds of the mapping and
// transformation pipeline. The heuristics these feed are inherently fuzzy,
// so every threshold is named configuration rather than a literal.
type PipelineConfig struct {
	// HeaderScanWindow bounds how many leading rows header detection
	// inspects before giving up.
	HeaderScanWindow int `yaml:"header_scan_window" envconfig:"HEADER_SCAN_WINDOW" default:"10"`

	// HeaderStringRatio is the minimum fraction of string-typed cells for a
	// row to qualify as a header candidate.
	HeaderStringRatio float64 `yaml:"header_string_ratio" envconfig:"HEADER_STRING_RATIO" default:"0.8"`

	// HeaderWidthRatio is the minimum fraction of non-empty cells for a row
	// to qualify as a header candidate.
	HeaderWidthRatio float64 `yaml:"header_width_ratio" envconfig:"HEADER_WIDTH_RATIO" default:"0.5"`

	// SimilarityThreshold is the minimum normalized similarity score for
	// the fuzzy mapping stage to assign a canonical field.
	SimilarityThreshold float64 `yaml:"similarity_threshold" envconfig:"SIMILARITY_THRESHOLD" default:"0.8"`

	// TemplateReplayThreshold is the minimum fraction of template headers
	// that must match the current headers for template replay to apply.
	TemplateReplayThreshold float64 `yaml:"template_replay_threshold" envconfig:"TEMPLATE_REPLAY_THRESHOLD" default:"0.6"`

	// SparseColumnThreshold is the fallback non-null ratio below which
	// cleanup drops a column when a template enables the step without its
	// own threshold. Zero leaves the step off.
	SparseColumnThreshold float64 `yaml:"sparse_column_threshold" envconfig:"SPARSE_COLUMN_THRESHOLD" default:"0"`

	// ValidationLevel selects the default validation depth: off, contract
	// or strict.
	ValidationLevel string `yaml:"validation_level" envconfig:"VALIDATION_LEVEL" default:"contract"`

	// MaxWorkers bounds how many files a batch run processes in parallel.
	MaxWorkers int `yaml:"max_workers" envconfig:"MAX_WORKERS" default:"4"`
}

// TemplatesConfig selects the template store backend.
type TemplatesConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" default:"file"`
	DSN     string `yaml:"dsn" envconfig:"DSN"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	Root string `yaml:"root" envconfig:"ROOT"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if envConfig.Paths.Root == "" {
		envConfig.Paths.Root = fileConfig.Paths.Root
	}
	if envConfig.Templates.Backend == "" {
		envConfig.Templates.Backend = fileConfig.Templates.Backend
	}
	if envConfig.Templates.DSN == "" {
		envConfig.Templates.DSN = fileConfig.Templates.DSN
	}
	if envConfig.Pipeline.HeaderScanWindow == 0 {
		envConfig.Pipeline.HeaderScanWindow = fileConfig.Pipeline.HeaderScanWindow
	}
	if envConfig.Pipeline.SimilarityThreshold == 0 {
		envConfig.Pipeline.SimilarityThreshold = fileConfig.Pipeline.SimilarityThreshold
	}

	return envConfig
}

// ResolvePaths builds the path layout from the configured root, falling back
// to the executable directory when no root is set, and creates the required
// directories.
func (c *Config) ResolvePaths() (*Paths, error) {
	var paths *Paths
	var err error
	if c.Paths.Root != "" {
		paths = PathsFrom(c.Paths.Root)
	} else {
		paths, err = GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to get paths: %w", err)
		}
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	return paths, nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Server.OperationTimeout <= 0 {
		c.Server.OperationTimeout = time.Hour
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	switch c.Pipeline.ValidationLevel {
	case "off", "contract", "strict":
	case "":
		c.Pipeline.ValidationLevel = "contract"
	default:
		return fmt.Errorf("invalid validation level: %s", c.Pipeline.ValidationLevel)
	}

	if c.Pipeline.SimilarityThreshold < 0 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1]: %f", c.Pipeline.SimilarityThreshold)
	}

	if c.Pipeline.MaxWorkers <= 0 {
		c.Pipeline.MaxWorkers = 1
	}

	switch c.Templates.Backend {
	case "", "file":
		c.Templates.Backend = "file"
	case "postgres":
		if c.Templates.DSN == "" {
			return fmt.Errorf("templates backend postgres requires a DSN")
		}
	default:
		return fmt.Errorf("invalid templates backend: %s", c.Templates.Backend)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20,
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: time.Hour,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Pipeline: PipelineConfig{
			HeaderScanWindow:        10,
			HeaderStringRatio:       0.8,
			HeaderWidthRatio:        0.5,
			SimilarityThreshold:     0.8,
			TemplateReplayThreshold: 0.6,
			ValidationLevel:         "contract",
			MaxWorkers:              4,
		},
		Templates: TemplatesConfig{
			Backend: "file",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
