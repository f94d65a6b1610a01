// Package ratingsagent implements the RatingsAgent: credit/risk rating
// lookups and a representative scoring capability over portfolio holdings.
package ratingsagent

import (
	"context"
	"fmt"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "RatingsAgent"

var ratingTable = map[string]string{
	"AAA": "investment_grade",
	"AA":  "investment_grade",
	"A":   "investment_grade",
	"BBB": "investment_grade",
	"BB":  "speculative",
	"B":   "speculative",
	"CCC": "distressed",
}

// Agent serves ratings.* capabilities. The underlying rating table is a
// fixed representative lookup, not a live ratings-agency feed.
type Agent struct{}

// New returns a RatingsAgent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"ratings.lookup", "ratings.portfolio_quality_score"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return false }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	switch capability {
	case "ratings.lookup":
		return a.lookup(args)
	case "ratings.portfolio_quality_score":
		return a.qualityScore(args)
	default:
		return nil, core.NewEngineError(core.KindUnknownCapability, "ratingsagent.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}
}

func (a *Agent) lookup(args map[string]interface{}) (interface{}, error) {
	rating, ok := args["rating"].(string)
	if !ok || rating == "" {
		return nil, core.NewEngineError(core.KindInvalidInput, "ratingsagent.lookup",
			"missing required arg \"rating\"", core.ErrInvalidInput)
	}
	tier, ok := ratingTable[rating]
	if !ok {
		return nil, core.NewEngineError(core.KindInvalidInput, "ratingsagent.lookup",
			fmt.Sprintf("unknown rating %q", rating), core.ErrInvalidInput)
	}
	return map[string]interface{}{"rating": rating, "tier": tier}, nil
}

func (a *Agent) qualityScore(args map[string]interface{}) (interface{}, error) {
	raw, ok := args["holding_ratings"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "ratingsagent.qualityScore",
			"missing required arg \"holding_ratings\"", core.ErrInvalidInput)
	}

	tierWeight := map[string]float64{"investment_grade": 1.0, "speculative": 0.5, "distressed": 0.0}
	var total float64
	var n int
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		tier, ok := ratingTable[s]
		if !ok {
			continue
		}
		total += tierWeight[tier]
		n++
	}
	if n == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "ratingsagent.qualityScore",
			"no recognizable ratings in holding_ratings", core.ErrInvalidInput)
	}

	return map[string]interface{}{"quality_score": total / float64(n)}, nil
}
