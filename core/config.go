package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide configuration for the engine. It supports
// three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name      string `json:"name" env:"PATTERNRUNNER_NAME" default:"patternrunner"`
	Port      int    `json:"port" env:"PORT" default:"8080"`
	Namespace string `json:"namespace" env:"PATTERNRUNNER_NAMESPACE" default:"default"`

	HTTP       HTTPConfig       `json:"http"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Store      StoreConfig      `json:"store"`
	Execution  ExecutionConfig  `json:"execution"`

	logger Logger `json:"-"`
}

// HTTPConfig contains HTTP server configuration for the Request API.
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" env:"PATTERNRUNNER_HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"PATTERNRUNNER_HTTP_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"PATTERNRUNNER_HTTP_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"PATTERNRUNNER_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	CORS            CORSConfig    `json:"cors"`
}

// ResilienceConfig groups Agent Runtime fault-tolerance settings.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
}

// CircuitBreakerConfig configures the per-agent circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"PATTERNRUNNER_CB_ENABLED" default:"true"`
	WindowSize       int           `json:"window_size" env:"PATTERNRUNNER_CB_WINDOW" default:"20"`
	FailureRate      float64       `json:"failure_rate" env:"PATTERNRUNNER_CB_FAILURE_RATE" default:"0.5"`
	MinFailures      int           `json:"min_failures" env:"PATTERNRUNNER_CB_MIN_FAILURES" default:"5"`
	Cooldown         time.Duration `json:"cooldown" env:"PATTERNRUNNER_CB_COOLDOWN" default:"30s"`
	CooldownCeiling  time.Duration `json:"cooldown_ceiling" env:"PATTERNRUNNER_CB_COOLDOWN_CEILING" default:"10m"`
	Threshold        int           `json:"threshold" env:"PATTERNRUNNER_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"PATTERNRUNNER_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" env:"PATTERNRUNNER_CB_HALF_OPEN" default:"1"`
}

// RetryConfig configures the Agent Runtime's retry policy.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" env:"PATTERNRUNNER_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay     time.Duration `json:"base_delay" env:"PATTERNRUNNER_RETRY_BASE_DELAY" default:"250ms"`
	MaxDelay      time.Duration `json:"max_delay" env:"PATTERNRUNNER_RETRY_MAX_DELAY" default:"5s"`
	BackoffFactor float64       `json:"backoff_factor" env:"PATTERNRUNNER_RETRY_BACKOFF_FACTOR" default:"2.0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" env:"PATTERNRUNNER_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"PATTERNRUNNER_LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"PATTERNRUNNER_LOG_OUTPUT" default:"stdout"`
}

// TelemetryConfig configures distributed tracing export. When Endpoint is
// empty, traces are written to stdout instead of an OTLP collector — useful
// for local development without standing up a collector.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"PATTERNRUNNER_TELEMETRY_ENABLED" default:"false"`
	Endpoint string `json:"endpoint" env:"PATTERNRUNNER_TELEMETRY_ENDPOINT"`
}

// StoreConfig configures the Pricing Pack Store and Execution Cache
// backing stores.
type StoreConfig struct {
	PostgresURL  string        `json:"postgres_url" env:"PATTERNRUNNER_POSTGRES_URL"`
	RedisURL     string        `json:"redis_url" env:"PATTERNRUNNER_REDIS_URL" default:"redis://localhost:6379/0"`
	CacheMaxKeys int           `json:"cache_max_keys" env:"PATTERNRUNNER_CACHE_MAX_KEYS" default:"100000"`
	CacheSweep   time.Duration `json:"cache_sweep" env:"PATTERNRUNNER_CACHE_SWEEP" default:"1m"`
}

// ExecutionConfig bounds pattern execution.
type ExecutionConfig struct {
	PatternDir        string        `json:"pattern_dir" env:"PATTERNRUNNER_PATTERN_DIR" default:"./patterns"`
	MaxInFlight       int           `json:"max_in_flight" env:"PATTERNRUNNER_MAX_IN_FLIGHT" default:"256"`
	DefaultTimeout    time.Duration `json:"default_timeout" env:"PATTERNRUNNER_DEFAULT_TIMEOUT" default:"30s"`
	MaxParallelWidth  int           `json:"max_parallel_width" env:"PATTERNRUNNER_MAX_PARALLEL_WIDTH" default:"16"`
	MaxStepsPerPattern int          `json:"max_steps_per_pattern" env:"PATTERNRUNNER_MAX_STEPS" default:"100"`
}

// CORSConfig contains Cross-Origin Resource Sharing configuration for the
// Request API surface exposed to panel rendering clients.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" env:"PATTERNRUNNER_CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" env:"PATTERNRUNNER_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials" env:"PATTERNRUNNER_CORS_CREDENTIALS" default:"false"`
	MaxAge           int      `json:"max_age" env:"PATTERNRUNNER_CORS_MAX_AGE" default:"86400"`
}

// Option is a functional option for configuring the engine.
type Option func(*Config) error

// WithName overrides the service name used in logs and metrics.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort overrides the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.Port = port
		return nil
	}
}

// WithLogger injects a pre-built logger instead of constructing one from
// LoggingConfig.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// DefaultConfig returns a configuration with sensible defaults, matching
// the `default:` struct tags above.
func DefaultConfig() *Config {
	return &Config{
		Name:      "patternrunner",
		Port:      8080,
		Namespace: "default",
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				Enabled:          false,
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
				MaxAge:           86400,
			},
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				WindowSize:       20,
				FailureRate:      0.5,
				MinFailures:      5,
				Cooldown:         30 * time.Second,
				CooldownCeiling:  10 * time.Minute,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 1,
			},
			Retry: RetryConfig{
				MaxAttempts:   3,
				BaseDelay:     250 * time.Millisecond,
				MaxDelay:      5 * time.Second,
				BackoffFactor: 2.0,
			},
		},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Telemetry: TelemetryConfig{Enabled: false},
		Store: StoreConfig{
			RedisURL:     "redis://localhost:6379/0",
			CacheMaxKeys: 100000,
			CacheSweep:   time.Minute,
		},
		Execution: ExecutionConfig{
			PatternDir:         "./patterns",
			MaxInFlight:        DefaultMaxInFlight,
			DefaultTimeout:     30 * time.Second,
			MaxParallelWidth:   MaxParallelGroupWidth,
			MaxStepsPerPattern: MaxStepsPerPattern,
		},
	}
}

// LoadFromEnv overlays environment variables onto the current config. Only
// variables that are explicitly set override the existing value, so callers
// can layer DefaultConfig()'s defaults, then LoadFromEnv(), then functional
// options without losing precedence. It reads the fixed list of variables
// below; the `env:` struct tags are not consulted, so a field whose tag names
// a variable outside this list (for example Name) is not loaded from the
// environment.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvPatternDir); v != "" {
		c.Execution.PatternDir = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv(EnvPostgresURL); v != "" {
		c.Store.PostgresURL = v
	}
	if v := os.Getenv(EnvMaxInFlight); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.MaxInFlight = n
		}
	}
	if v := os.Getenv("PATTERNRUNNER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PATTERNRUNNER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PATTERNRUNNER_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PATTERNRUNNER_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	return nil
}

// Validate checks invariants that must hold before the engine starts.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return NewEngineError(KindInvalidInput, "Config.Validate", fmt.Sprintf("invalid port %d", c.Port), ErrInvalidInput)
	}
	if c.Execution.MaxStepsPerPattern <= 0 {
		return NewEngineError(KindInvalidInput, "Config.Validate", "max_steps_per_pattern must be positive", ErrInvalidInput)
	}
	if c.Resilience.Retry.MaxAttempts <= 0 {
		return NewEngineError(KindInvalidInput, "Config.Validate", "retry.max_attempts must be positive", ErrInvalidInput)
	}
	return nil
}

// Logger returns the configured logger, constructing a ProductionLogger
// from LoggingConfig on first use.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		c.logger = NewProductionLogger(c.Logging, c.Name)
	}
	return c.logger
}

// NewConfig builds a Config from defaults, environment variables, and
// functional options (in that priority order), then validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger - layered JSON/text logger shared by every package.
// ============================================================================

// ProductionLogger is the default Logger implementation: JSON lines in
// production, human-readable text when Format != "json". It implements
// ComponentAwareLogger so packages can scope log lines without threading
// extra constructor parameters.
type ProductionLogger struct {
	level          string
	debug          bool
	serviceName    string
	component      string
	format         string
	output         io.Writer
	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}
	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       strings.ToLower(logging.Level) == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

// WithComponent returns a logger scoped to the given component string,
// sharing the parent's output stream and level configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called by the telemetry package once a MetricsRegistry
// has been wired up, turning on metric emission for every log call.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = "engine"
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		if ctx != nil {
			if cid := correlationIDFromContext(ctx); cid != "" {
				entry["correlation_id"] = cid
			}
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var b strings.Builder
		if len(fields) > 0 {
			b.WriteString(" ")
			for k, v := range fields {
				fmt.Fprintf(&b, "%s=%v ", k, v)
			}
		}
		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n", timestamp, level, p.serviceName, component, msg, b.String())
	}

	if p.metricsEnabled {
		p.emitMetric(level, fields)
	}
}

func (p *ProductionLogger) emitMetric(level string, fields map[string]interface{}) {
	registry := GetGlobalMetricsRegistry()
	if registry == nil {
		return
	}
	labels := []string{"level", level, "service", p.serviceName}
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_kind", "pattern_id", "capability":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}
	registry.Counter("engine.log_events", labels...)
}

// correlationIDContextKey is used by the request context package to attach
// a correlation id that ProductionLogger surfaces on every log line.
type correlationIDContextKey struct{}

// ContextWithCorrelationID returns a context carrying correlationID for log
// correlation.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, correlationID)
}

func correlationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDContextKey{}).(string); ok {
		return v
	}
	return ""
}
