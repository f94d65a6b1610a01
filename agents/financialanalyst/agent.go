// Package financialanalyst implements the FinancialAnalyst agent: technical
// and performance-metric capabilities over a portfolio's return series.
package financialanalyst

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "FinancialAnalyst"

// Agent computes time-weighted return, volatility, and moving-average
// capabilities. The valuation bodies are representative, not a full DCF/
// factor model.
type Agent struct{}

// New returns a FinancialAnalyst agent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{
		"metrics.compute_twr",
		"metrics.compute_volatility",
		"metrics.moving_average",
	}
}

func (a *Agent) RequiresPricingPack(capability string) bool {
	return true
}

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	switch capability {
	case "metrics.compute_twr":
		return a.computeTWR(args)
	case "metrics.compute_volatility":
		return a.computeVolatility(args)
	case "metrics.moving_average":
		return a.movingAverage(args)
	default:
		return nil, core.NewEngineError(core.KindUnknownCapability, "financialanalyst.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}
}

func (a *Agent) computeTWR(args map[string]interface{}) (interface{}, error) {
	returns, err := floatSeries(args, "period_returns")
	if err != nil {
		return nil, err
	}

	twr := 1.0
	for _, r := range returns {
		twr *= 1 + r
	}
	twr -= 1

	return map[string]interface{}{
		"twr": twr,
		"_metadata": map[string]interface{}{
			"source": agentName + ":internal",
			"ttl":    float64(3600),
		},
	}, nil
}

func (a *Agent) computeVolatility(args map[string]interface{}) (interface{}, error) {
	returns, err := floatSeries(args, "period_returns")
	if err != nil {
		return nil, err
	}
	if len(returns) < 2 {
		return nil, core.NewEngineError(core.KindInvalidInput, "financialanalyst.computeVolatility",
			"period_returns needs at least 2 observations", core.ErrInvalidInput)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	stdev := math.Sqrt(sumSq / float64(len(returns)-1))
	annualized := stdev * math.Sqrt(252)

	return map[string]interface{}{
		"volatility":           stdev,
		"annualized_volatility": annualized,
	}, nil
}

func (a *Agent) movingAverage(args map[string]interface{}) (interface{}, error) {
	prices, err := floatSeries(args, "prices")
	if err != nil {
		return nil, err
	}
	period, ok := args["period"].(int)
	if !ok || period <= 0 {
		period = 20
	}
	if len(prices) < period {
		return nil, core.NewEngineError(core.KindInvalidInput, "financialanalyst.movingAverage",
			fmt.Sprintf("prices series has %d points, needs at least %d", len(prices), period), core.ErrInvalidInput)
	}

	sma := talib.Sma(prices, period)
	return map[string]interface{}{
		"sma":        sma,
		"sma_latest": sma[len(sma)-1],
		"period":     period,
	}, nil
}

func floatSeries(args map[string]interface{}, key string) ([]float64, error) {
	raw, ok := args[key]
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "financialanalyst.floatSeries",
			fmt.Sprintf("missing required arg %q", key), core.ErrInvalidInput)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "financialanalyst.floatSeries",
			fmt.Sprintf("arg %q must be a numeric array", key), core.ErrInvalidInput)
	}
	out := make([]float64, len(list))
	for i, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil, core.NewEngineError(core.KindInvalidInput, "financialanalyst.floatSeries",
				fmt.Sprintf("arg %q[%d] is not numeric", key, i), core.ErrInvalidInput)
		}
		out[i] = f
	}
	return out, nil
}
