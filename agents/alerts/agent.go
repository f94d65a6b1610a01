// Package alerts implements the AlertsAgent: threshold evaluation over a
// metric value, producing a breach verdict for a pattern step to act on.
// Actual notification delivery is a declared Non-goal; this agent only
// decides whether an alert condition is met.
package alerts

import (
	"context"
	"fmt"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "AlertsAgent"

// Agent serves alert.* capabilities.
type Agent struct{}

// New returns an AlertsAgent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"alert.evaluate_threshold"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return false }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	if capability != "alert.evaluate_threshold" {
		return nil, core.NewEngineError(core.KindUnknownCapability, "alerts.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}

	value, ok := args["value"].(float64)
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "alerts.Invoke",
			"missing required arg \"value\"", core.ErrInvalidInput)
	}
	threshold, ok := args["threshold"].(float64)
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "alerts.Invoke",
			"missing required arg \"threshold\"", core.ErrInvalidInput)
	}
	direction, _ := args["direction"].(string)
	if direction == "" {
		direction = "above"
	}

	var breached bool
	switch direction {
	case "above":
		breached = value > threshold
	case "below":
		breached = value < threshold
	default:
		return nil, core.NewEngineError(core.KindInvalidInput, "alerts.Invoke",
			fmt.Sprintf("unknown direction %q, expected \"above\" or \"below\"", direction), core.ErrInvalidInput)
	}

	return map[string]interface{}{
		"breached":  breached,
		"value":     value,
		"threshold": threshold,
		"direction": direction,
	}, nil
}
