package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matrixArg(rows [][]float64) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		r := make([]interface{}, len(row))
		for j, v := range row {
			r[j] = v
		}
		out[i] = r
	}
	return out
}

func TestMinVarianceWeights_DiagonalMatrixWeightsInverselyToVariance(t *testing.T) {
	a := New()
	cov := matrixArg([][]float64{
		{1, 0},
		{0, 4},
	})

	out, err := a.Invoke(context.Background(), "optimize.min_variance_weights", map[string]interface{}{"covariance": cov})
	require.NoError(t, err)

	weights := out.(map[string]interface{})["weights"].([]float64)
	require.Len(t, weights, 2)
	assert.InDelta(t, 0.8, weights[0], 1e-9)
	assert.InDelta(t, 0.2, weights[1], 1e-9)
	assert.InDelta(t, 1.0, weights[0]+weights[1], 1e-9)
}

func TestMinVarianceWeights_SingularMatrixFails(t *testing.T) {
	a := New()
	cov := matrixArg([][]float64{
		{1, 1},
		{1, 1},
	})

	_, err := a.Invoke(context.Background(), "optimize.min_variance_weights", map[string]interface{}{"covariance": cov})
	require.Error(t, err)
}

func TestMinVarianceWeights_RejectsRaggedMatrix(t *testing.T) {
	a := New()
	cov := []interface{}{
		[]interface{}{1.0, 0.0},
		[]interface{}{0.0},
	}

	_, err := a.Invoke(context.Background(), "optimize.min_variance_weights", map[string]interface{}{"covariance": cov})
	require.Error(t, err)
}

func TestMinVarianceWeights_MissingArgFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "optimize.min_variance_weights", map[string]interface{}{})
	require.Error(t, err)
}

func TestInvoke_UnknownCapabilityFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "optimize.nonexistent", nil)
	require.Error(t, err)
}
