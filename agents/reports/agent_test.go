package reports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleSections_OrdersByTitleAlphabetically(t *testing.T) {
	a := New()
	out, err := a.Invoke(context.Background(), "report.assemble_sections", map[string]interface{}{
		"sections": map[string]interface{}{
			"Zeta":  "last",
			"Alpha": "first",
			"Mid":   "middle",
		},
	})
	require.NoError(t, err)

	sections := out.(map[string]interface{})["sections"].([]map[string]interface{})
	require.Len(t, sections, 3)
	assert.Equal(t, "Alpha", sections[0]["title"])
	assert.Equal(t, "Mid", sections[1]["title"])
	assert.Equal(t, "Zeta", sections[2]["title"])
}

func TestAssembleSections_EmptyMapFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "report.assemble_sections", map[string]interface{}{
		"sections": map[string]interface{}{},
	})
	require.Error(t, err)
}

func TestAssembleSections_MissingArgFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "report.assemble_sections", map[string]interface{}{})
	require.Error(t, err)
}

func TestInvoke_UnknownCapabilityFails(t *testing.T) {
	a := New()
	_, err := a.Invoke(context.Background(), "report.nonexistent", nil)
	require.Error(t, err)
}
