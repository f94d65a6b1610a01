// Package telemetry implements core.Telemetry with OpenTelemetry, exporting
// traces and metrics over OTLP/HTTP. Components never import
// go.opentelemetry.io/otel directly; they accept a core.Telemetry and stay
// testable against core.NoOpTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelfi/patternrunner/core"
)

// OTelProvider implements core.Telemetry with OpenTelemetry. With a
// configured endpoint it exports to an OTLP/HTTP collector; with no
// endpoint it writes spans to stdout, which is enough to see request traces
// during local development without standing up a collector.
type OTelProvider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	metricMu       sync.RWMutex
	counters      map[string]metric.Float64Counter
	histograms    map[string]metric.Float64Histogram

	shutdownOnce sync.Once
	mu           sync.RWMutex
	shutdown     bool
}

// NewOTelProvider builds an OTelProvider for serviceName. endpoint is an
// OTLP/HTTP collector address (host:port, typically port 4318); an empty
// endpoint falls back to a stdout trace exporter.
func NewOTelProvider(ctx context.Context, serviceName, endpoint string) (*OTelProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("1.0.0"),
	)

	var traceExporter sdktrace.SpanExporter
	var metricReader sdkmetric.Reader
	var err error

	if endpoint == "" {
		traceExporter, err = stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
	} else {
		traceExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp trace exporter for %s: %w", endpoint, err)
		}

		metricExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			_ = traceExporter.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: otlp metric exporter for %s: %w", endpoint, err)
		}
		metricReader = sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if metricReader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(metricReader))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:         tp.Tracer("patternrunner"),
		meter:          mp.Meter("patternrunner"),
		traceProvider:  tp,
		metricProvider: mp,
		counters:       make(map[string]metric.Float64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan implements core.Telemetry.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.shutdown || o.tracer == nil {
		return ctx, &core.NoOpSpan{}
	}
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, routing to a histogram for
// duration-shaped names and a counter otherwise.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.RLock()
	shutdown := o.shutdown
	o.mu.RUnlock()
	if shutdown {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	opt := metric.WithAttributes(attrs...)
	ctx := context.Background()

	if hasSuffixAny(name, "duration", "latency", "time") {
		o.histogramFor(name).Record(ctx, value, opt)
		return
	}
	o.counterFor(name).Add(ctx, value, opt)
}

func (o *OTelProvider) counterFor(name string) metric.Float64Counter {
	o.metricMu.RLock()
	c, ok := o.counters[name]
	o.metricMu.RUnlock()
	if ok {
		return c
	}

	o.metricMu.Lock()
	defer o.metricMu.Unlock()
	if c, ok = o.counters[name]; ok {
		return c
	}
	c, _ = o.meter.Float64Counter(name)
	o.counters[name] = c
	return c
}

func (o *OTelProvider) histogramFor(name string) metric.Float64Histogram {
	o.metricMu.RLock()
	h, ok := o.histograms[name]
	o.metricMu.RUnlock()
	if ok {
		return h
	}

	o.metricMu.Lock()
	defer o.metricMu.Unlock()
	if h, ok = o.histograms[name]; ok {
		return h
	}
	h, _ = o.meter.Float64Histogram(name)
	o.histograms[name] = h
	return h
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// Shutdown flushes and stops the trace provider. Safe to call more than
// once.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	var errs []error
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.shutdown = true
		o.mu.Unlock()
		if o.metricProvider != nil {
			if e := o.metricProvider.Shutdown(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		if o.traceProvider != nil {
			if e := o.traceProvider.Shutdown(ctx); e != nil {
				errs = append(errs, e)
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}
	return nil
}

// otelSpan wraps an OpenTelemetry span to implement core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
