package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfi/patternrunner/core"
)

func testRoot() Root {
	return Root{
		Inputs: map[string]interface{}{
			"symbol":    "AAPL",
			"run_it":    false,
			"threshold": 1.5,
		},
		Ctx: map[string]interface{}{
			"pricing_pack_id":    "PP_2026-01-15",
			"ledger_commit_hash": "abc123",
			"user_id":            "u1",
		},
		State: map[string]interface{}{
			"fetch": map[string]interface{}{
				"value": 42,
				"nested": map[string]interface{}{
					"inner": "deep",
				},
			},
		},
	}
}

func TestResolver_ResolvesInputsPath(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{inputs.symbol}}")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", v)
}

func TestResolver_ResolvesCtxPath(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{ctx.pricing_pack_id}}")
	require.NoError(t, err)
	assert.Equal(t, "PP_2026-01-15", v)
}

func TestResolver_ResolvesStatePath(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{state.fetch.value}}")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestResolver_ResolvesBareStepNameReference(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{fetch.value}}")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestResolver_ResolvesNestedPath(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{fetch.nested.inner}}")
	require.NoError(t, err)
	assert.Equal(t, "deep", v)
}

func TestResolver_MissingPathResolvesToNil(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{fetch.does_not_exist}}")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolver_UnknownStepResolvesToNil(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{never_ran.value}}")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolver_ExactTemplateRetainsNativeType(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{inputs.run_it}}")
	require.NoError(t, err)
	assert.IsType(t, false, v)
	assert.Equal(t, false, v)
}

func TestResolver_EmbeddedTemplateCoercesToString(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "symbol is {{inputs.symbol}} at {{fetch.value}}")
	require.NoError(t, err)
	assert.Equal(t, "symbol is AAPL at 42", v)
}

func TestResolver_LiteralStringPassesThroughUnchanged(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "just a literal string")
	require.NoError(t, err)
	assert.Equal(t, "just a literal string", v)
}

func TestResolver_RequiredContextMissingFails(t *testing.T) {
	r := New()
	root := testRoot()
	root.Ctx = map[string]interface{}{"user_id": "u1"} // no pricing_pack_id
	_, err := r.ResolveValue(root, "{{ctx.pricing_pack_id}}")
	require.Error(t, err)
	var ee *core.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, core.KindRequiredContextMissing, ee.Kind)
	assert.ErrorIs(t, err, core.ErrRequiredContextMissing)
}

func TestResolver_RequiredContextMissingInEmbeddedTemplate(t *testing.T) {
	r := New()
	root := testRoot()
	root.Ctx = map[string]interface{}{}
	_, err := r.ResolveValue(root, "pack is {{ctx.pricing_pack_id}}")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequiredContextMissing)
}

func TestResolver_RequiredContextPresentButEmptyStringFails(t *testing.T) {
	r := New()
	root := testRoot()
	root.Ctx = map[string]interface{}{"pricing_pack_id": ""}
	_, err := r.ResolveValue(root, "{{ctx.pricing_pack_id}}")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequiredContextMissing)
}

func TestResolver_ResolveArgsWalksEveryKey(t *testing.T) {
	r := New()
	args := map[string]interface{}{
		"symbol": "{{inputs.symbol}}",
		"limit":  10,
		"nested": map[string]interface{}{
			"threshold": "{{inputs.threshold}}",
		},
		"list": []interface{}{"{{inputs.symbol}}", "literal"},
	}
	out, err := r.ResolveArgs(testRoot(), args)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", out["symbol"])
	assert.Equal(t, 10, out["limit"])
	assert.Equal(t, 1.5, out["nested"].(map[string]interface{})["threshold"])
	assert.Equal(t, []interface{}{"AAPL", "literal"}, out["list"])
}

func TestResolver_WhitespaceInsideBracesIgnored(t *testing.T) {
	r := New()
	v, err := r.ResolveValue(testRoot(), "{{  inputs.symbol  }}")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", v)
}

func TestStaticPaths_CollectsEveryReference(t *testing.T) {
	v := map[string]interface{}{
		"a": "{{inputs.symbol}}",
		"b": []interface{}{"{{fetch.value}}", "literal {{ctx.pricing_pack_id}}"},
	}
	paths := StaticPaths(v)
	assert.ElementsMatch(t, []string{"inputs.symbol", "fetch.value", "ctx.pricing_pack_id"}, paths)
}

func TestStaticPaths_EmptyForNonTemplateValues(t *testing.T) {
	assert.Empty(t, StaticPaths(map[string]interface{}{"a": 1, "b": true}))
}
