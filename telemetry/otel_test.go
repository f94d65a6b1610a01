package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOTelProvider_EmptyEndpointUsesStdoutFallback(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
}

func TestNewOTelProvider_EmptyServiceNameFails(t *testing.T) {
	_, err := NewOTelProvider(context.Background(), "", "")
	require.Error(t, err)
}

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx, span := p.StartSpan(context.Background(), "test.op")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	span.SetAttribute("pattern_id", "macro-risk-dashboard")
	span.SetAttribute("step_count", 3)
	span.RecordError(nil)
	span.End()
}

func TestStartSpan_AfterShutdownReturnsNoOpSpan(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, span := p.StartSpan(context.Background(), "test.op")
	require.NotNil(t, span)
	span.End()
}

func TestRecordMetric_RoutesDurationSuffixToHistogramAndOtherwiseToCounter(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.RecordMetric("step.duration", 12.5, map[string]string{"step": "fetch_price"})
	p.RecordMetric("step.count", 1, map[string]string{"step": "fetch_price"})

	assert.Len(t, p.histograms, 1)
	assert.Len(t, p.counters, 1)
}

func TestRecordMetric_AfterShutdownIsNoop(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	p.RecordMetric("step.duration", 1, nil)
	assert.Empty(t, p.histograms)
}

func TestShutdown_IsSafeToCallMoreThanOnce(t *testing.T) {
	p, err := NewOTelProvider(context.Background(), "patternrunner-test", "")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestHasSuffixAny(t *testing.T) {
	assert.True(t, hasSuffixAny("step.duration", "duration", "latency", "time"))
	assert.True(t, hasSuffixAny("request.latency", "duration", "latency", "time"))
	assert.False(t, hasSuffixAny("step.count", "duration", "latency", "time"))
	assert.False(t, hasSuffixAny("dur", "duration"))
}
