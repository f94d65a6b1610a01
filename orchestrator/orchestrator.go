// Package orchestrator implements the Pattern Orchestrator: the
// central algorithm that executes a pattern's step DAG.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelfi/patternrunner/agentruntime"
	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/execcache"
	"github.com/kestrelfi/patternrunner/pattern"
	"github.com/kestrelfi/patternrunner/provenance"
	"github.com/kestrelfi/patternrunner/reqcontext"
	"github.com/kestrelfi/patternrunner/template"
)

// RightsChecker delegates the rights check to an
// external auth collaborator; this package has no opinion on its implementation.
type RightsChecker interface {
	HasRights(userID string, required []string) bool
}

// AllowAllRights is the default RightsChecker used when the engine runs
// without an external auth collaborator wired in (development mode).
type AllowAllRights struct{}

func (AllowAllRights) HasRights(string, []string) bool { return true }

// Result is the outcome of executing a pattern to completion.
type Result struct {
	Outputs    map[string]interface{}
	Trace      []provenance.Entry
	Provenance provenance.Summary
}

// Orchestrator executes patterns against the Agent Runtime, Template
// Resolver, and Execution Cache.
type Orchestrator struct {
	runtime   *agentruntime.Runtime
	resolver  *template.Resolver
	cache     execcache.Cache
	rights    RightsChecker
	logger    core.Logger
	telemetry core.Telemetry
}

// New builds an Orchestrator. rights may be nil, in which case
// AllowAllRights is used. telemetry may be nil, in which case spans are
// discarded via core.NoOpTelemetry.
func New(runtime *agentruntime.Runtime, cache execcache.Cache, rights RightsChecker, logger core.Logger, telemetry core.Telemetry) *Orchestrator {
	if rights == nil {
		rights = AllowAllRights{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Orchestrator{
		runtime:   runtime,
		resolver:  template.New(),
		cache:     cache,
		rights:    rights,
		logger:    logger,
		telemetry: telemetry,
	}
}

// stepOutcome carries one executed-or-skipped step's effect on state,
// computed for every parallel-group member before any of them is applied,
// so the barrier can serialize writes in declaration order regardless of
// completion order.
type stepOutcome struct {
	step      pattern.Step
	entry     provenance.Entry
	value     interface{}
	skip      bool
	haltErr   error
}

// Execute runs p against inputs under ctx, walking its step DAG to completion.
func (o *Orchestrator) Execute(ctx *reqcontext.Context, p *pattern.Pattern, inputs map[string]interface{}) (*Result, error) {
	spanCtx, span := o.telemetry.StartSpan(ctx.GoContext(), "orchestrator.Execute")
	span.SetAttribute("pattern_id", p.ID)
	span.SetAttribute("pattern_version", p.Version)
	ctx = ctx.WithGoContext(spanCtx)
	defer span.End()

	coerced, err := coerceInputs(p, inputs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(p.RightsRequired) > 0 && !o.rights.HasRights(ctx.UserID, p.RightsRequired) {
		return nil, core.NewEngineError(core.KindAccessDenied, "orchestrator.Execute",
			fmt.Sprintf("user %q lacks required rights %v", ctx.UserID, p.RightsRequired), core.ErrAccessDenied).
			WithPattern(p.ID)
	}

	state := make(map[string]interface{})
	tracer := provenance.New()

	ctxMap := map[string]interface{}{
		"pricing_pack_id":    nullableString(ctx.PricingPackID),
		"ledger_commit_hash": nullableString(ctx.LedgerCommitHash),
		"user_id":            ctx.UserID,
		"portfolio_id":       ctx.PortfolioID,
		"asof_date":          ctx.AsOfDate.Format("2006-01-02"),
		"request_id":         ctx.RequestID,
		"correlation_id":     ctx.CorrelationID,
	}

	groupsDone := make(map[string]bool)

	for i := 0; i < len(p.Steps); i++ {
		step := p.Steps[i]

		if ctx.Cancelled() {
			kind, sentinel := cancellationKind(ctx)
			tracer.Record(provenance.Entry{StepName: step.Name, Capability: step.Capability, Status: provenance.StatusCancelled, Start: time.Now(), End: time.Now()})
			return o.partialResult(ctx, tracer), core.NewEngineError(kind, "orchestrator.Execute", "cancelled between steps", sentinel).WithPattern(p.ID).WithStep(step.Name)
		}

		if step.ParallelGroup != "" {
			if groupsDone[step.ParallelGroup] {
				continue
			}
			groupsDone[step.ParallelGroup] = true

			members := groupMembers(p.Steps, step.ParallelGroup)
			outcomes := o.runGroup(ctx, p, members, state, coerced, ctxMap)
			for _, oc := range outcomes {
				if oc.haltErr != nil {
					tracer.Record(oc.entry)
					return o.partialResult(ctx, tracer), oc.haltErr
				}
				tracer.Record(oc.entry)
				if !oc.skip {
					state[oc.step.EffectiveSaveAs()] = oc.value
				}
			}
			continue
		}

		oc := o.runStep(ctx, p, step, state, coerced, ctxMap)
		tracer.Record(oc.entry)
		if oc.haltErr != nil {
			return o.partialResult(ctx, tracer), oc.haltErr
		}
		if !oc.skip {
			state[step.EffectiveSaveAs()] = oc.value
		}
	}

	outputs := make(map[string]interface{}, len(p.Outputs))
	root := template.Root{Inputs: coerced, Ctx: ctxMap, State: state}
	for name, tmpl := range p.Outputs {
		val, err := o.resolver.ResolveValue(root, tmpl)
		if err != nil {
			val = nil
		}
		outputs[name] = val
	}

	summary := tracer.Summarize(ctx.PricingPackID, ctx.LedgerCommitHash, time.Now())
	return &Result{Outputs: outputs, Trace: tracer.Entries(), Provenance: summary}, nil
}

func (o *Orchestrator) partialResult(ctx *reqcontext.Context, tracer *provenance.Tracer) *Result {
	summary := tracer.Summarize(ctx.PricingPackID, ctx.LedgerCommitHash, time.Now())
	return &Result{Outputs: nil, Trace: tracer.Entries(), Provenance: summary}
}

// nullableString returns nil for an empty string so the Template Resolver's
// required-context check sees an absent value rather than a present empty
// one (resolvePath rejects both nil and "" for required paths).
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func cancellationKind(ctx *reqcontext.Context) (core.Kind, error) {
	if ctx.DeadlineExceeded() {
		return core.KindDeadlineExceeded, core.ErrDeadlineExceeded
	}
	return core.KindExecutionCancelled, core.ErrExecutionCancelled
}

func groupMembers(steps []pattern.Step, group string) []pattern.Step {
	var out []pattern.Step
	for _, s := range steps {
		if s.ParallelGroup == group {
			out = append(out, s)
		}
	}
	return out
}

// runGroup executes every member concurrently, waits for the barrier, then
// returns outcomes in the group's pattern-declaration order so the caller
// applies writes in that order regardless of completion order.
func (o *Orchestrator) runGroup(ctx *reqcontext.Context, p *pattern.Pattern, members []pattern.Step, state map[string]interface{}, inputs map[string]interface{}, ctxMap map[string]interface{}) []stepOutcome {
	outcomes := make([]stepOutcome, len(members))
	var wg sync.WaitGroup
	for i, step := range members {
		wg.Add(1)
		go func(i int, step pattern.Step) {
			defer wg.Done()
			outcomes[i] = o.runStep(ctx, p, step, state, inputs, ctxMap)
		}(i, step)
	}
	wg.Wait()
	return outcomes
}

// runStep resolves args, checks the cache, invokes the runtime on a miss,
// and applies fallback/halt/optional policy on failure.
func (o *Orchestrator) runStep(ctx *reqcontext.Context, p *pattern.Pattern, step pattern.Step, state map[string]interface{}, inputs map[string]interface{}, ctxMap map[string]interface{}) stepOutcome {
	spanCtx, span := o.telemetry.StartSpan(ctx.GoContext(), "orchestrator.step."+step.Name)
	span.SetAttribute("capability", step.Capability)
	ctx = ctx.WithGoContext(spanCtx)
	defer span.End()

	start := time.Now()
	root := template.Root{Inputs: inputs, Ctx: ctxMap, State: state}

	if step.Condition != "" {
		cond, err := o.resolver.ResolveValue(root, step.Condition)
		if err != nil {
			if ee, ok := err.(*core.EngineError); ok {
				return stepOutcome{step: step, haltErr: ee.WithPattern(p.ID).WithStep(step.Name), entry: failedEntry(step, start, err)}
			}
		}
		if b, ok := cond.(bool); !ok || !b {
			return stepOutcome{step: step, skip: true, entry: provenance.Entry{
				StepName: step.Name, Capability: step.Capability, Status: provenance.StatusSkipped, Start: start, End: time.Now(),
			}}
		}
	}

	resolvedArgs, err := o.resolver.ResolveArgs(root, step.Args)
	if err != nil {
		if ee, ok := err.(*core.EngineError); ok {
			return stepOutcome{step: step, haltErr: ee.WithPattern(p.ID).WithStep(step.Name), entry: failedEntry(step, start, err)}
		}
		return stepOutcome{step: step, haltErr: err, entry: failedEntry(step, start, err)}
	}

	fp := execcache.Fingerprint(execcache.FingerprintInput{
		PatternID: p.ID, PatternVersion: p.Version, StepName: step.Name, Capability: step.Capability,
		ResolvedArgs: resolvedArgs, PricingPackID: ctx.PricingPackID, LedgerCommitHash: ctx.LedgerCommitHash,
	})

	if cached, hit := o.cache.Get(ctx.GoContext(), fp); hit {
		return stepOutcome{step: step, value: cached.Value, entry: provenance.Entry{
			StepName: step.Name, Capability: step.Capability, Status: provenance.StatusOKCached,
			Start: start, End: time.Now(), Source: cached.Source, AsOf: cached.AsOf, TTL: cached.TTLSeconds, Warnings: cached.Warnings,
		}}
	}

	result, attempts, invokeErr := o.runtime.Invoke(ctx, step.Capability, resolvedArgs)
	if invokeErr == nil {
		if step.TTLSeconds > 0 {
			o.cache.Set(ctx.GoContext(), fp, result, time.Duration(step.TTLSeconds)*time.Second)
		}
		return stepOutcome{step: step, value: result.Value, entry: provenance.Entry{
			StepName: step.Name, Capability: step.Capability, AgentName: bindingAgentName(result.Source), Status: provenance.StatusOK,
			Start: start, End: time.Now(), Source: result.Source, AsOf: result.AsOf, TTL: result.TTLSeconds,
			Warnings: result.Warnings, Attempts: attempts,
		}}
	}

	if step.Fallback != nil {
		return stepOutcome{step: step, value: step.Fallback, entry: provenance.Entry{
			StepName: step.Name, Capability: step.Capability, Status: provenance.StatusFallback,
			Start: start, End: time.Now(), Error: invokeErr.Error(), Attempts: attempts,
		}}
	}

	span.RecordError(invokeErr)
	entry := failedEntry(step, start, invokeErr)
	entry.Attempts = attempts
	if step.Optional {
		return stepOutcome{step: step, skip: true, entry: entry}
	}
	return stepOutcome{step: step, haltErr: invokeErr, entry: entry}
}

func failedEntry(step pattern.Step, start time.Time, err error) provenance.Entry {
	return provenance.Entry{
		StepName: step.Name, Capability: step.Capability, Status: provenance.StatusFailed,
		Start: start, End: time.Now(), Error: err.Error(),
	}
}

func bindingAgentName(source string) string {
	for i := 0; i < len(source); i++ {
		if source[i] == ':' {
			return source[:i]
		}
	}
	return source
}
