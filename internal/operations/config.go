package operations

import (
	"time"
)

// Config holds the configuration for operation execution
type Config struct {
	// ExecutionMode determines how steps are executed
	ExecutionMode ExecutionMode `json:"execution_mode"`

	// StepTimeouts maps step IDs to their timeout durations
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	// RetryConfig holds retry settings for failed steps
	RetryConfig RetryConfig `json:"retry_config"`

	// ContinueOnError determines if the operation continues after a step fails
	ContinueOnError bool `json:"continue_on_error"`

	// MaxConcurrency limits parallel step execution
	MaxConcurrency int `json:"max_concurrency"`

	// EnableCheckpoints enables saving operation state for recovery
	EnableCheckpoints bool `json:"enable_checkpoints"`

	// CheckpointDir is where checkpoint files are stored
	CheckpointDir string `json:"checkpoint_dir"`

	// StepConfigs holds step-specific configuration keyed by step ID
	StepConfigs map[string]interface{} `json:"step_configs"`
}

// NewConfig creates a config with default values
func NewConfig() *Config {
	return &Config{
		ExecutionMode: ExecutionModeSequential,
		StepTimeouts: map[string]time.Duration{
			StepIDIngest:    DefaultIngestTimeout,
			StepIDResolve:   DefaultResolveTimeout,
			StepIDMap:       DefaultMapTimeout,
			StepIDTransform: DefaultTransformTimeout,
			StepIDValidate:  DefaultValidateTimeout,
			StepIDRoute:     DefaultRouteTimeout,
		},
		RetryConfig:       NewRetryConfig(),
		ContinueOnError:   false,
		MaxConcurrency:    1,
		EnableCheckpoints: false,
		CheckpointDir:     "data/checkpoints",
		StepConfigs:       make(map[string]interface{}),
	}
}

// GetStepTimeout returns the timeout for a specific step
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if timeout, exists := c.StepTimeouts[stepID]; exists {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for a specific step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// GetStepConfig returns the configuration for a specific step
func (c *Config) GetStepConfig(stepID string) (interface{}, bool) {
	config, exists := c.StepConfigs[stepID]
	return config, exists
}

// SetStepConfig sets the configuration for a specific step
func (c *Config) SetStepConfig(stepID string, config interface{}) {
	if c.StepConfigs == nil {
		c.StepConfigs = make(map[string]interface{})
	}
	c.StepConfigs[stepID] = config
}

// ConfigBuilder provides a fluent interface for building configs
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new config builder with defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithExecutionMode sets the execution mode
func (b *ConfigBuilder) WithExecutionMode(mode ExecutionMode) *ConfigBuilder {
	b.config.ExecutionMode = mode
	return b
}

// WithStepTimeout sets a step timeout
func (b *ConfigBuilder) WithStepTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStepTimeout(stepID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(retry RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = retry
	return b
}

// WithContinueOnError sets the continue-on-error flag
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// WithMaxConcurrency sets the maximum concurrency
func (b *ConfigBuilder) WithMaxConcurrency(max int) *ConfigBuilder {
	b.config.MaxConcurrency = max
	return b
}

// WithCheckpoints enables checkpointing to the given directory
func (b *ConfigBuilder) WithCheckpoints(enabled bool, dir string) *ConfigBuilder {
	b.config.EnableCheckpoints = enabled
	if dir != "" {
		b.config.CheckpointDir = dir
	}
	return b
}

// WithStepConfig sets a step-specific configuration
func (b *ConfigBuilder) WithStepConfig(stepID string, config interface{}) *ConfigBuilder {
	b.config.SetStepConfig(stepID, config)
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
