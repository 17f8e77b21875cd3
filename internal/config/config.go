package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the engine.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CORTEX_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CORTEX_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Workflows is the directory of workflow JSON documents used by the
	// filesystem store.
	WorkflowDir string `env:"CORTEX_WORKFLOW_DIR" envDefault:"./workflows"`

	// GraphStore selects the workflow document backend: fs or redis.
	GraphStore string `env:"CORTEX_GRAPH_STORE" envDefault:"fs"`

	// AuditSink selects the audit backend: log or redis.
	AuditSink string `env:"CORTEX_AUDIT_SINK" envDefault:"log"`

	Redis    RedisConfig
	LLM      LLMConfig
	Workers  WorkerConfig
	Stream   StreamConfig
	Boundary BoundaryConfig
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration. Redis is required
// only when the graph store or audit sink selects it.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds model provider configuration.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-20250514"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// WorkerConfig holds dispatch pool configuration.
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// StreamConfig holds frame feed pacing configuration.
type StreamConfig struct {
	ProgressInterval   time.Duration `env:"STREAM_PROGRESS_INTERVAL" envDefault:"250ms"`
	CancelPollInterval time.Duration `env:"STREAM_CANCEL_POLL_INTERVAL" envDefault:"100ms"`
}

// BoundaryConfig holds error boundary retry and fallback configuration.
type BoundaryConfig struct {
	MaxRetries int           `env:"BOUNDARY_MAX_RETRIES" envDefault:"2"`
	BaseDelay  time.Duration `env:"BOUNDARY_BASE_DELAY" envDefault:"500ms"`
	Fallback   bool          `env:"BOUNDARY_FALLBACK" envDefault:"true"`
}

// TimeoutConfig holds the engine's timeouts.
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"120s"`
	NodeTimeout     time.Duration `env:"TIMEOUT_NODE" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.GraphStore {
	case "fs", "redis":
	default:
		return fmt.Errorf("unsupported graph store: %s (must be fs or redis)", c.GraphStore)
	}
	switch c.AuditSink {
	case "log", "redis":
	default:
		return fmt.Errorf("unsupported audit sink: %s (must be log or redis)", c.AuditSink)
	}

	if (c.GraphStore == "redis" || c.AuditSink == "redis") && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	if c.Boundary.MaxRetries < 0 {
		return fmt.Errorf("boundary max retries must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
