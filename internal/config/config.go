// Package config provides configuration management for the research report service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the research report service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains text generation client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Search contains web search provider settings.
	Search SearchConfig `mapstructure:"search"`
	// Gateway contains retry and timeout policy for external calls.
	Gateway GatewayConfig `mapstructure:"gateway"`
	// Pipeline contains run-level pipeline settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Kafka contains Kafka publisher settings for run events.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 50).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 10).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for report pipeline workflows.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds text generation client configuration.
type LLMConfig struct {
	// Provider is the generation provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// MaxTokens is the maximum completion length per call.
	MaxTokens int `mapstructure:"max_tokens"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from RESEARCH_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from RESEARCH_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig holds web search provider configuration.
type SearchConfig struct {
	// Provider is the search provider (tavily, duckduckgo).
	Provider string `mapstructure:"provider"`
	// MaxResults is the maximum results returned per query.
	MaxResults int `mapstructure:"max_results"`
	// Tavily contains Tavily API settings.
	Tavily SearchProviderConfig `mapstructure:"tavily"`
	// DuckDuckGo contains DuckDuckGo API settings.
	DuckDuckGo SearchProviderConfig `mapstructure:"duckduckgo"`
}

// SearchProviderConfig holds configuration for a single search provider.
type SearchProviderConfig struct {
	// APIKey is the API key (loaded from environment variable, e.g. RESEARCH_SEARCH_TAVILY_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the HTTP client timeout for search calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst"`
}

// GatewayConfig holds the retry and timeout policy applied to every
// external call (text generation and web search).
type GatewayConfig struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxAttempts is the maximum number of attempts per call (default: 3).
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryBaseDelay is the backoff before the first retry; it doubles per attempt.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
	// RateLimitDelay is the minimum backoff after a rate-limited response.
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

// PipelineConfig holds run-level pipeline settings.
type PipelineConfig struct {
	// DefaultSectionCount is the section count when a request does not specify one.
	DefaultSectionCount int `mapstructure:"default_section_count"`
	// DefaultSearchDepth is the searches-per-section when not specified.
	DefaultSearchDepth int `mapstructure:"default_search_depth"`
	// ConcurrencyLimit caps concurrently running section sub-pipelines.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// MinSectionSuccessRatio is the fraction of sections that must succeed
	// for the run to proceed to the report stage (default: 1.0).
	MinSectionSuccessRatio float64 `mapstructure:"min_section_success_ratio"`
	// StageTimeout bounds each of the planning and report stages.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	// ResearchTimeout bounds the whole research stage across all sections.
	ResearchTimeout time.Duration `mapstructure:"research_timeout"`
}

// KafkaConfig holds Kafka publisher settings for run events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish run events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-report-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	// Generation provider API keys.
	cfg.LLM.OpenAI.APIKey = os.Getenv("RESEARCH_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("RESEARCH_LLM_ANTHROPIC_API_KEY")

	// Search provider API keys.
	cfg.Search.Tavily.APIKey = os.Getenv("RESEARCH_SEARCH_TAVILY_API_KEY")
	cfg.Search.DuckDuckGo.APIKey = os.Getenv("RESEARCH_SEARCH_DUCKDUCKGO_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "research")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "research_report_service")
	// Default to "require" for production security. Use RESEARCH_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "research-report")
	v.SetDefault("temporal.task_queue", "research-report-tasks")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4-turbo")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Search defaults
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.tavily.base_url", "https://api.tavily.com")
	v.SetDefault("search.tavily.timeout", "30s")
	v.SetDefault("search.tavily.rate_limit", 5.0)
	v.SetDefault("search.tavily.burst", 5)
	v.SetDefault("search.duckduckgo.base_url", "https://html.duckduckgo.com")
	v.SetDefault("search.duckduckgo.timeout", "30s")
	v.SetDefault("search.duckduckgo.rate_limit", 1.0)
	v.SetDefault("search.duckduckgo.burst", 2)

	// Gateway defaults
	v.SetDefault("gateway.call_timeout", "60s")
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.retry_base_delay", "1s")
	v.SetDefault("gateway.retry_max_delay", "30s")
	v.SetDefault("gateway.rate_limit_delay", "5s")

	// Pipeline defaults
	v.SetDefault("pipeline.default_section_count", 5)
	v.SetDefault("pipeline.default_search_depth", 3)
	v.SetDefault("pipeline.concurrency_limit", 3)
	v.SetDefault("pipeline.min_section_success_ratio", 1.0)
	v.SetDefault("pipeline.stage_timeout", "10m")
	v.SetDefault("pipeline.research_timeout", "30m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.research_report_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate that the configured generation provider has its API key set.
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCH_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCH_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	// Validate search config. DuckDuckGo works without an API key.
	switch strings.ToLower(c.Search.Provider) {
	case "tavily":
		if c.Search.Tavily.APIKey == "" {
			return fmt.Errorf("search provider %q requires RESEARCH_SEARCH_TAVILY_API_KEY to be set", c.Search.Provider)
		}
	case "duckduckgo":
	default:
		return fmt.Errorf("unsupported search provider: %s", c.Search.Provider)
	}

	// Validate gateway config
	if c.Gateway.MaxAttempts <= 0 {
		return fmt.Errorf("gateway max_attempts must be positive")
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway call_timeout must be positive")
	}

	// Validate pipeline config
	if c.Pipeline.DefaultSectionCount < 1 || c.Pipeline.DefaultSectionCount > 10 {
		return fmt.Errorf("pipeline default_section_count must be between 1 and 10")
	}
	if c.Pipeline.ConcurrencyLimit <= 0 {
		return fmt.Errorf("pipeline concurrency_limit must be positive")
	}
	if c.Pipeline.MinSectionSuccessRatio < 0 || c.Pipeline.MinSectionSuccessRatio > 1 {
		return fmt.Errorf("pipeline min_section_success_ratio must be between 0 and 1")
	}

	return nil
}
