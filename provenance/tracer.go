// Package provenance implements the Provenance Tracer: per-step
// source/staleness/confidence bookkeeping and the trace entries consumed by
// the Request API.
package provenance

import "time"

// Status is the trace entry status vocabulary.
type Status string

const (
	StatusOK        Status = "ok"
	StatusOKCached  Status = "ok (cached)"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusFallback  Status = "fallback"
	StatusCancelled Status = "cancelled"
)

// Entry is one trace entry: one executed, skipped, failed, or
// fallback-resolved step.
type Entry struct {
	StepName   string
	Capability string
	AgentName  string
	Start      time.Time
	End        time.Time
	Status     Status
	Source     string
	AsOf       string
	TTL        int
	Warnings   []string
	Error      string
	Attempts   int
}

// Summary is the provenance_summary projected into ExecutionResult.
type Summary struct {
	PricingPackID           string
	LedgerCommitHash        string
	Sources                 []string
	OldestAsOf              string
	OverallStalenessSeconds int64
}

// Tracer accumulates Entry records for one request and derives the final
// Summary.
type Tracer struct {
	entries []Entry
}

// New returns an empty Tracer.
func New() *Tracer {
	return &Tracer{}
}

// Record appends one trace entry in step-declaration order.
func (t *Tracer) Record(e Entry) {
	t.entries = append(t.entries, e)
}

// Entries returns every recorded trace entry, in recorded order.
func (t *Tracer) Entries() []Entry {
	return t.entries
}

// Summarize aggregates per-step asof/ttl/source into the "oldest data" and
// "all sources" pair for display.
func (t *Tracer) Summarize(pricingPackID, ledgerCommitHash string, now time.Time) Summary {
	s := Summary{PricingPackID: pricingPackID, LedgerCommitHash: ledgerCommitHash}

	seenSource := map[string]bool{}
	var oldest time.Time
	var maxStaleness int64

	for _, e := range t.entries {
		if e.Status != StatusOK && e.Status != StatusOKCached && e.Status != StatusFallback {
			continue
		}
		if e.Source != "" && !seenSource[e.Source] {
			seenSource[e.Source] = true
			s.Sources = append(s.Sources, e.Source)
		}
		if e.AsOf == "" {
			continue
		}
		asOf, err := time.Parse("2006-01-02", e.AsOf)
		if err != nil {
			continue
		}
		if oldest.IsZero() || asOf.Before(oldest) {
			oldest = asOf
		}
		staleness := int64(now.Sub(asOf).Seconds())
		if staleness > maxStaleness {
			maxStaleness = staleness
		}
	}

	if !oldest.IsZero() {
		s.OldestAsOf = oldest.Format("2006-01-02")
	}
	s.OverallStalenessSeconds = maxStaleness
	return s
}

// AgentsUsed returns the deduplicated set of agent names invoked.
func (t *Tracer) AgentsUsed() []string {
	return dedupe(func(e Entry) string { return e.AgentName })(t.entries)
}

// CapabilitiesUsed returns the deduplicated set of capability names
// invoked.
func (t *Tracer) CapabilitiesUsed() []string {
	return dedupe(func(e Entry) string { return e.Capability })(t.entries)
}

func dedupe(key func(Entry) string) func([]Entry) []string {
	return func(entries []Entry) []string {
		seen := map[string]bool{}
		var out []string
		for _, e := range entries {
			k := key(e)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
		return out
	}
}
