package pattern

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
)

type testAgent struct {
	name string
	caps []string
}

func (a *testAgent) Name() string          { return a.name }
func (a *testAgent) Capabilities() []string { return a.caps }
func (a *testAgent) Invoke(context.Context, string, map[string]interface{}) (interface{}, error) {
	return nil, nil
}
func (a *testAgent) RequiresPricingPack(string) bool { return false }

func registryWith(caps ...string) *capability.Registry {
	r := capability.New(nil)
	_ = r.Register(&testAgent{name: "test-agent", caps: caps})
	return r
}

func basicPattern() *Pattern {
	return &Pattern{
		ID:      "retrieve_quote",
		Version: "1.0.0",
		Outputs: map[string]string{},
		Steps: []Step{
			{Name: "fetch", Capability: "market.quote", Args: map[string]interface{}{"symbol": "{{inputs.symbol}}"}},
		},
	}
}

func TestValidate_AcceptsWellFormedPattern(t *testing.T) {
	p := basicPattern()
	err := Validate(p, registryWith("market.quote"))
	assert.NoError(t, err)
}

func TestValidate_RequiresID(t *testing.T) {
	p := basicPattern()
	p.ID = ""
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestValidate_RequiresVersion(t *testing.T) {
	p := basicPattern()
	p.Version = ""
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestValidate_RequiresOutputsMap(t *testing.T) {
	p := basicPattern()
	p.Outputs = nil
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outputs")
}

func TestValidate_RejectsTooManySteps(t *testing.T) {
	p := basicPattern()
	p.Steps = nil
	for i := 0; i < core.MaxStepsPerPattern+1; i++ {
		p.Steps = append(p.Steps, Step{Name: fmt.Sprintf("step%d", i), Capability: "market.quote"})
	}
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestValidate_RejectsDuplicateStepName(t *testing.T) {
	p := basicPattern()
	p.Steps = append(p.Steps, Step{Name: "fetch", Capability: "market.quote"})
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step name")
}

func TestValidate_RejectsDuplicateSaveAs(t *testing.T) {
	p := basicPattern()
	p.Steps[0].SaveAs = "shared"
	p.Steps = append(p.Steps, Step{Name: "fetch2", Capability: "market.quote", SaveAs: "shared"})
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate save_as")
}

func TestValidate_RejectsUnregisteredCapability(t *testing.T) {
	p := basicPattern()
	err := Validate(p, registryWith("other.capability"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestValidate_SkipsCapabilityCheckWhenRegistryNil(t *testing.T) {
	p := basicPattern()
	err := Validate(p, nil)
	assert.NoError(t, err)
}

func TestValidate_RejectsParallelGroupOverWidthLimit(t *testing.T) {
	p := basicPattern()
	p.Steps = nil
	for i := 0; i < core.MaxParallelGroupWidth+1; i++ {
		p.Steps = append(p.Steps, Step{
			Name:          "s" + string(rune('a'+i)),
			Capability:    "market.quote",
			ParallelGroup: "g1",
		})
	}
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel_group")
}

func TestValidate_RejectsForwardStepReference(t *testing.T) {
	p := basicPattern()
	p.Steps[0].Args["prior"] = "{{later_step.value}}"
	p.Steps = append(p.Steps, Step{Name: "later_step", Capability: "market.quote"})
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not precede")
}

func TestValidate_RejectsUnknownStepReference(t *testing.T) {
	p := basicPattern()
	p.Steps[0].Args["prior"] = "{{nonexistent.value}}"
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestValidate_RejectsCrossParallelGroupReference(t *testing.T) {
	p := basicPattern()
	p.Steps = []Step{
		{Name: "a", Capability: "market.quote", ParallelGroup: "g1"},
		{Name: "b", Capability: "market.quote", ParallelGroup: "g1", Args: map[string]interface{}{"x": "{{a.value}}"}},
	}
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel_group")
}

func TestValidate_AllowsReferenceByCustomSaveAs(t *testing.T) {
	p := basicPattern()
	p.Steps = []Step{
		{Name: "fetch_raw", Capability: "market.quote", SaveAs: "quote"},
		{Name: "use_it", Capability: "market.quote", Args: map[string]interface{}{"x": "{{quote.value}}"}},
	}
	err := Validate(p, registryWith("market.quote"))
	assert.NoError(t, err)
}

func TestValidate_RejectsReferenceByBareNameWhenSaveAsOverridesIt(t *testing.T) {
	p := basicPattern()
	p.Steps = []Step{
		{Name: "fetch_raw", Capability: "market.quote", SaveAs: "quote"},
		{Name: "use_it", Capability: "market.quote", Args: map[string]interface{}{"x": "{{fetch_raw.value}}"}},
	}
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestValidate_ValidatesOutputReferences(t *testing.T) {
	p := basicPattern()
	p.Outputs["result"] = "{{fetch.value}}"
	assert.NoError(t, Validate(p, registryWith("market.quote")))

	p.Outputs["bad"] = "{{missing_step.value}}"
	err := Validate(p, registryWith("market.quote"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outputs.bad")
}

func TestValidate_AcceptsInputsAndCtxAndStateReferences(t *testing.T) {
	p := basicPattern()
	p.Steps[0].Condition = "{{ctx.pricing_pack_id}}"
	p.Steps[0].Args["as_of"] = "{{state.some_key}}"
	err := Validate(p, registryWith("market.quote"))
	assert.NoError(t, err)
}
