package agentruntime

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/reqcontext"
)

var packIDPattern = regexp.MustCompile(`^PP_\d{4}-\d{2}-\d{2}(_D\d+)?$`)

// Runtime is the Agent Runtime: the only entity that invokes agent
// methods. It resolves capabilities through the registry, gates them with
// a per-(agent,capability) circuit breaker, retries transient failures, and
// attaches Step Result metadata.
type Runtime struct {
	registry *capability.Registry
	cbCfg    core.CircuitBreakerConfig
	retryCfg core.RetryConfig
	logger   core.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// New builds a Runtime bound to registry, using cbCfg/retryCfg as the
// defaults for every (agent, capability) breaker and retry policy it
// constructs lazily on first invocation.
func New(registry *capability.Registry, cbCfg core.CircuitBreakerConfig, retryCfg core.RetryConfig, logger core.Logger) *Runtime {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("engine/runtime")
	}
	return &Runtime{
		registry: registry,
		cbCfg:    cbCfg,
		retryCfg: retryCfg,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (r *Runtime) breakerFor(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := NewCircuitBreaker(key, r.cbCfg, r.logger)
	r.breakers[key] = cb
	return cb
}

// Invoke runs the full resolve/gate/invoke/record sequence for one step.
func (r *Runtime) Invoke(ctx *reqcontext.Context, capabilityName string, args map[string]interface{}) (*core.StepResult, int, error) {
	binding, err := r.registry.Resolve(capabilityName)
	if err != nil {
		return nil, 0, err
	}

	breakerKey := binding.AgentName + ":" + capabilityName
	cb := r.breakerFor(breakerKey)

	if !cb.Allow() {
		return nil, 0, core.NewEngineError(core.KindCircuitOpen, "agentruntime.Invoke",
			fmt.Sprintf("circuit open for %s", breakerKey), core.ErrCircuitOpen)
	}

	if binding.Agent.RequiresPricingPack(capabilityName) {
		if !ctx.HasPricingPack() || !packIDPattern.MatchString(ctx.PricingPackID) {
			return nil, 0, core.NewEngineError(core.KindMissingPricingPack, "agentruntime.Invoke",
				fmt.Sprintf("capability %q requires a well-formed pricing pack id", capabilityName),
				core.ErrMissingPricingPack)
		}
	}

	retry := NewRetryPolicy(r.retryCfg)

	var raw interface{}
	var invokeErr error
	outcome := retry.Run(ctx.GoContext(), ctx.Remaining, func() error {
		invokeCtx, cancel := ctx.WithDerivedDeadline(ctx.Remaining())
		defer cancel()
		raw, invokeErr = binding.Agent.Invoke(invokeCtx, capabilityName, args)
		return invokeErr
	})

	transient := outcome.Err != nil && core.IsTransient(outcome.Err)
	cb.RecordResult(transient)

	if outcome.Err != nil {
		kind := core.KindAgentPermanentFailure
		sentinel := core.ErrAgentPermanentFailure
		if transient {
			kind = core.KindAgentTransientFailure
			sentinel = core.ErrAgentTransientFailure
		}
		return nil, outcome.Attempts, core.NewEngineError(kind, "agentruntime.Invoke", outcome.Err.Error(), sentinel).
			WithStep(capabilityName)
	}

	result := r.attachMetadata(binding.AgentName, ctx, raw)
	return result, outcome.Attempts, nil
}

// attachMetadata wraps the agent's raw return value into a Step Result and
// applies the default/override precedence between agent-supplied and
// runtime-computed metadata.
func (r *Runtime) attachMetadata(agentName string, ctx *reqcontext.Context, raw interface{}) *core.StepResult {
	result := &core.StepResult{
		Value:      raw,
		Source:     fmt.Sprintf("%s:%s", agentName, ctx.PricingPackID),
		AsOf:       ctx.AsOfDate.Format("2006-01-02"),
		TTLSeconds: 0,
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return result
	}
	metaRaw, ok := m["_metadata"]
	if !ok {
		return result
	}
	meta, ok := metaRaw.(map[string]interface{})
	if !ok {
		return result
	}

	if v, ok := meta["source"].(string); ok && v != "" {
		result.Source = v
	}
	if v, ok := meta["asof"].(string); ok && v != "" {
		result.AsOf = v
	}
	if v, ok := meta["ttl"].(float64); ok {
		result.TTLSeconds = int(v)
	}
	if v, ok := meta["confidence"].(float64); ok {
		result.Confidence = &v
	}
	if v, ok := meta["warnings"].([]interface{}); ok {
		for _, w := range v {
			if s, ok := w.(string); ok {
				result.Warnings = append(result.Warnings, s)
			}
		}
	}

	// Value keeps the full raw mapping including _metadata; the
	// orchestrator treats agent return values as opaque and strips nothing.
	return result
}
