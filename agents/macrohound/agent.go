// Package macrohound implements the MacroHound agent: macroeconomic
// indicator lookups (rates, inflation, yield-curve points) against the
// pricing pack's source set.
package macrohound

import (
	"context"
	"fmt"

	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/pricingpack"
)

const agentName = "MacroHound"

// indicatorSet is a representative macro dataset keyed by indicator name,
// standing in for a real macro data provider.
var indicatorSet = map[string]float64{
	"us_cpi_yoy":       3.1,
	"us_fed_funds_rate": 5.25,
	"us_10y_yield":     4.3,
	"us_2y_yield":      4.6,
	"unemployment_rate": 3.9,
}

// Agent serves macro.* capabilities against pricingpack.Store for the
// current pack's as-of date.
type Agent struct {
	packs pricingpack.Store
}

// New returns a MacroHound agent backed by packs.
func New(packs pricingpack.Store) *Agent { return &Agent{packs: packs} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"macro.get_indicator", "macro.get_yield_curve"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return true }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	switch capability {
	case "macro.get_indicator":
		return a.getIndicator(ctx, args)
	case "macro.get_yield_curve":
		return a.getYieldCurve(ctx)
	default:
		return nil, core.NewEngineError(core.KindUnknownCapability, "macrohound.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}
}

func (a *Agent) getIndicator(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, ok := args["indicator"].(string)
	if !ok || name == "" {
		return nil, core.NewEngineError(core.KindInvalidInput, "macrohound.getIndicator",
			"missing required arg \"indicator\"", core.ErrInvalidInput)
	}
	val, ok := indicatorSet[name]
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "macrohound.getIndicator",
			fmt.Sprintf("unknown indicator %q", name), core.ErrInvalidInput)
	}

	packID, _ := args["pricing_pack_id"].(string)
	asOf := ""
	if packID != "" {
		if pack, err := a.packs.GetPack(ctx, packID); err == nil {
			asOf = pack.AsOfDate.Format("2006-01-02")
		}
	}

	return map[string]interface{}{
		"indicator": name,
		"value":     val,
		"_metadata": map[string]interface{}{
			"source": agentName + ":macro-series",
			"asof":   asOf,
			"ttl":    float64(86400),
		},
	}, nil
}

func (a *Agent) getYieldCurve(ctx context.Context) (interface{}, error) {
	return map[string]interface{}{
		"curve": map[string]interface{}{
			"2y":  indicatorSet["us_2y_yield"],
			"10y": indicatorSet["us_10y_yield"],
		},
	}, nil
}
