// Package optimizer implements the OptimizerAgent: portfolio weight
// optimization over a covariance matrix, using gonum for the linear
// algebra.
package optimizer

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "OptimizerAgent"

// Agent serves optimize.* capabilities. The allocation method is a
// representative minimum-variance solve, not a full mean-variance or
// risk-parity engine.
type Agent struct{}

// New returns an OptimizerAgent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"optimize.min_variance_weights"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return true }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	if capability != "optimize.min_variance_weights" {
		return nil, core.NewEngineError(core.KindUnknownCapability, "optimizer.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}
	return a.minVarianceWeights(args)
}

// minVarianceWeights solves for the global minimum-variance portfolio
// w = Sigma^-1 1 / (1' Sigma^-1 1) given a covariance matrix.
func (a *Agent) minVarianceWeights(args map[string]interface{}) (interface{}, error) {
	rows, ok := args["covariance"].([]interface{})
	if !ok || len(rows) == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "optimizer.minVarianceWeights",
			"missing required arg \"covariance\" (square matrix of rows)", core.ErrInvalidInput)
	}

	n := len(rows)
	data := make([]float64, 0, n*n)
	for i, rowRaw := range rows {
		row, ok := rowRaw.([]interface{})
		if !ok || len(row) != n {
			return nil, core.NewEngineError(core.KindInvalidInput, "optimizer.minVarianceWeights",
				fmt.Sprintf("covariance row %d is not a length-%d numeric array", i, n), core.ErrInvalidInput)
		}
		for j, v := range row {
			f, ok := v.(float64)
			if !ok {
				return nil, core.NewEngineError(core.KindInvalidInput, "optimizer.minVarianceWeights",
					fmt.Sprintf("covariance[%d][%d] is not numeric", i, j), core.ErrInvalidInput)
			}
			data = append(data, f)
		}
	}

	sigma := mat.NewDense(n, n, data)

	var sigmaInv mat.Dense
	if err := sigmaInv.Inverse(sigma); err != nil {
		return nil, core.NewEngineError(core.KindAgentPermanentFailure, "optimizer.minVarianceWeights",
			"covariance matrix is not invertible", core.ErrAgentPermanentFailure)
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1)
	}

	var numerator mat.VecDense
	numerator.MulVec(&sigmaInv, ones)

	var denom float64
	for i := 0; i < n; i++ {
		denom += numerator.AtVec(i)
	}
	if denom == 0 {
		return nil, core.NewEngineError(core.KindAgentPermanentFailure, "optimizer.minVarianceWeights",
			"degenerate covariance matrix: zero normalization denominator", core.ErrAgentPermanentFailure)
	}

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = numerator.AtVec(i) / denom
	}

	return map[string]interface{}{"weights": weights}, nil
}
