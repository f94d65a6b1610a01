package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_RecordAndEntriesPreserveOrder(t *testing.T) {
	tr := New()
	tr.Record(Entry{StepName: "a", Status: StatusOK})
	tr.Record(Entry{StepName: "b", Status: StatusSkipped})

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].StepName)
	assert.Equal(t, "b", entries[1].StepName)
}

func TestSummarize_ComputesOldestAsOfAndStalenessAcrossSourcedStatuses(t *testing.T) {
	tr := New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr.Record(Entry{StepName: "fetch", Status: StatusOK, Source: "market-data", AsOf: "2026-07-30"})
	tr.Record(Entry{StepName: "cached", Status: StatusOKCached, Source: "risk-engine", AsOf: "2026-07-31"})
	tr.Record(Entry{StepName: "fallback", Status: StatusFallback, Source: "static-default", AsOf: "2026-07-29"})
	tr.Record(Entry{StepName: "skipped", Status: StatusSkipped, Source: "ignored", AsOf: "2020-01-01"})
	tr.Record(Entry{StepName: "failed", Status: StatusFailed, Source: "ignored-too", AsOf: "2020-01-01"})

	summary := tr.Summarize("PP_2026-07-31", "0xabc", now)

	assert.Equal(t, "2026-07-29", summary.OldestAsOf)
	assert.InDelta(t, now.Sub(time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)).Seconds(), float64(summary.OverallStalenessSeconds), 1)
	assert.ElementsMatch(t, []string{"market-data", "risk-engine", "static-default"}, summary.Sources)
	assert.NotContains(t, summary.Sources, "ignored")
	assert.NotContains(t, summary.Sources, "ignored-too")
}

func TestSummarize_SkipsEmptyAndUnparseableAsOf(t *testing.T) {
	tr := New()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tr.Record(Entry{StepName: "a", Status: StatusOK, Source: "x", AsOf: ""})
	tr.Record(Entry{StepName: "b", Status: StatusOK, Source: "y", AsOf: "not-a-date"})

	summary := tr.Summarize("", "", now)
	assert.Empty(t, summary.OldestAsOf)
	assert.Zero(t, summary.OverallStalenessSeconds)
}

func TestSummarize_DedupesSources(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.Record(Entry{StepName: "a", Status: StatusOK, Source: "same-source", AsOf: "2026-07-01"})
	tr.Record(Entry{StepName: "b", Status: StatusOK, Source: "same-source", AsOf: "2026-07-02"})

	summary := tr.Summarize("", "", now)
	assert.Equal(t, []string{"same-source"}, summary.Sources)
}

func TestAgentsUsed_DedupesAndSkipsEmpty(t *testing.T) {
	tr := New()
	tr.Record(Entry{StepName: "a", AgentName: "financialanalyst"})
	tr.Record(Entry{StepName: "b", AgentName: "financialanalyst"})
	tr.Record(Entry{StepName: "c", AgentName: "macrohound"})
	tr.Record(Entry{StepName: "d", AgentName: ""})

	agents := tr.AgentsUsed()
	assert.ElementsMatch(t, []string{"financialanalyst", "macrohound"}, agents)
}

func TestCapabilitiesUsed_DedupesAndSkipsEmpty(t *testing.T) {
	tr := New()
	tr.Record(Entry{StepName: "a", Capability: "market.quote"})
	tr.Record(Entry{StepName: "b", Capability: "market.quote"})
	tr.Record(Entry{StepName: "c", Capability: "risk.exposure"})
	tr.Record(Entry{StepName: "d", Capability: ""})

	caps := tr.CapabilitiesUsed()
	assert.ElementsMatch(t, []string{"market.quote", "risk.exposure"}, caps)
}
