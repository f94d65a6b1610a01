// Package reports implements the ReportsAgent: assembling a structured
// section list from upstream step outputs, for consumption by an external
// PDF/document renderer. Document generation itself is a declared Non-goal.
package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "ReportsAgent"

// Agent serves report.* capabilities.
type Agent struct{}

// New returns a ReportsAgent.
func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"report.assemble_sections"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return false }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	if capability != "report.assemble_sections" {
		return nil, core.NewEngineError(core.KindUnknownCapability, "reports.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}

	sections, ok := args["sections"].(map[string]interface{})
	if !ok || len(sections) == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "reports.Invoke",
			"missing required arg \"sections\" (mapping of title to content)", core.ErrInvalidInput)
	}

	titles := make([]string, 0, len(sections))
	for title := range sections {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	ordered := make([]map[string]interface{}, len(titles))
	for i, title := range titles {
		ordered[i] = map[string]interface{}{"title": title, "content": sections[title]}
	}

	return map[string]interface{}{"sections": ordered}, nil
}
