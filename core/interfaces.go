package core

import (
	"context"
	"sync"
)

// Logger is the minimal structured logging interface shared across every
// package in this module. Implementations must be safe for concurrent use.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with component context support so the
// same logger type can be scoped to a package without threading extra
// parameters through every constructor.
//
// Component naming convention:
//   - "engine/orchestrator"  - Pattern Orchestrator
//   - "engine/runtime"       - Agent Runtime
//   - "engine/pricingpack"   - Pricing Pack Store
//   - "engine/cache"         - Execution Cache
//   - "agent/<name>"         - individual capability-providing agents
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional tracing/metrics facade. Components accept this
// interface rather than importing go.opentelemetry.io/otel directly so they
// remain testable without a configured tracer provider.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single unit of tracing work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpLogger discards everything. Used as the zero-value default so
// components never need a nil check before logging.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry discards spans and metrics. Default when no tracer provider
// has been wired up (e.g. in unit tests).
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards attributes and errors.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// MetricsRegistry lets the telemetry package register itself with core
// without creating an import cycle, using a deferred-registration pattern
// for metrics emission from low-level packages
// (circuit breaker, cache, orchestrator) that must not import telemetry
// directly.
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
}

var (
	globalMetricsRegistry MetricsRegistry
	metricsRegistryMu     sync.RWMutex
)

// SetMetricsRegistry allows the telemetry package to register itself as the
// process-wide metrics sink during startup.
func SetMetricsRegistry(registry MetricsRegistry) {
	metricsRegistryMu.Lock()
	defer metricsRegistryMu.Unlock()
	globalMetricsRegistry = registry
}

// GetGlobalMetricsRegistry returns the registered metrics sink, or nil if
// telemetry has not been initialized.
func GetGlobalMetricsRegistry() MetricsRegistry {
	metricsRegistryMu.RLock()
	defer metricsRegistryMu.RUnlock()
	return globalMetricsRegistry
}
