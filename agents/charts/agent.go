// Package charts implements the ChartsAgent: series-preparation
// capabilities consumed by pattern steps that assemble panel-renderable
// output. Rendering itself (PDF/image generation) is a declared Non-goal;
// this agent only shapes data into a chart-ready series.
package charts

import (
	"context"
	"fmt"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "ChartsAgent"

// Agent serves chart.* capabilities.
type Agent struct{}

// New returns a ChartsAgent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"chart.prepare_series", "chart.normalize_to_base100"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return false }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	switch capability {
	case "chart.prepare_series":
		return a.prepareSeries(args)
	case "chart.normalize_to_base100":
		return a.normalizeToBase100(args)
	default:
		return nil, core.NewEngineError(core.KindUnknownCapability, "charts.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}
}

func (a *Agent) prepareSeries(args map[string]interface{}) (interface{}, error) {
	labels, ok := args["labels"].([]interface{})
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "charts.prepareSeries",
			"missing required arg \"labels\"", core.ErrInvalidInput)
	}
	values, ok := args["values"].([]interface{})
	if !ok || len(values) != len(labels) {
		return nil, core.NewEngineError(core.KindInvalidInput, "charts.prepareSeries",
			"\"values\" must be present and the same length as \"labels\"", core.ErrInvalidInput)
	}

	points := make([]map[string]interface{}, len(labels))
	for i := range labels {
		points[i] = map[string]interface{}{"label": labels[i], "value": values[i]}
	}
	return map[string]interface{}{"series": points}, nil
}

func (a *Agent) normalizeToBase100(args map[string]interface{}) (interface{}, error) {
	raw, ok := args["values"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "charts.normalizeToBase100",
			"missing required arg \"values\"", core.ErrInvalidInput)
	}

	base, ok := raw[0].(float64)
	if !ok || base == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "charts.normalizeToBase100",
			"values[0] must be a non-zero number", core.ErrInvalidInput)
	}

	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, core.NewEngineError(core.KindInvalidInput, "charts.normalizeToBase100",
				fmt.Sprintf("values[%d] is not numeric", i), core.ErrInvalidInput)
		}
		out[i] = f / base * 100
	}
	return map[string]interface{}{"normalized": out}, nil
}
