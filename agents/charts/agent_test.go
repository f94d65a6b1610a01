package charts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareSeries_ZipsLabelsAndValues(t *testing.T) {
	a := New()
	out, err := a.Invoke(context.Background(), "chart.prepare_series", map[string]interface{}{
		"labels": []interface{}{"Jan", "Feb"},
		"values": []interface{}{1.0, 2.0},
	})
	require.NoError(t, err)

	series := out.(map[string]interface{})["series"].([]map[string]interface{})
	require.Len(t, series, 2)
	assert.Equal(t, "Jan", series[0]["label"])
	assert.Equal(t, 2.0, series[1]["value"])
}

func TestPrepareSeries_MismatchedLengthsFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "chart.prepare_series", map[string]interface{}{
		"labels": []interface{}{"Jan", "Feb"},
		"values": []interface{}{1.0},
	})
	require.Error(t, err)
}

func TestNormalizeToBase100_ScalesRelativeToFirstValue(t *testing.T) {
	a := New()
	out, err := a.Invoke(context.Background(), "chart.normalize_to_base100", map[string]interface{}{
		"values": []interface{}{50.0, 75.0, 100.0},
	})
	require.NoError(t, err)

	normalized := out.(map[string]interface{})["normalized"].([]float64)
	assert.Equal(t, []float64{100, 150, 200}, normalized)
}

func TestNormalizeToBase100_ZeroBaseFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "chart.normalize_to_base100", map[string]interface{}{
		"values": []interface{}{0.0, 1.0},
	})
	require.Error(t, err)
}

func TestNormalizeToBase100_NonNumericValueFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "chart.normalize_to_base100", map[string]interface{}{
		"values": []interface{}{10.0, "oops"},
	})
	require.Error(t, err)
}

func TestInvoke_UnknownCapabilityFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "chart.nonexistent", nil)
	require.Error(t, err)
}
