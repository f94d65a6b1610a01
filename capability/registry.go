// Package capability implements the Capability Registry: a static,
// process-wide map from dotted capability identifiers to the agent method
// that serves them.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kestrelfi/patternrunner/core"
)

// Agent is any object exposing a stable name and a method-per-capability
// invocation entry point. The orchestrator never calls
// Invoke directly — only the Agent Runtime does, so agents never
// observe the cache, the pattern store, or each other.
type Agent interface {
	Name() string
	Capabilities() []string
	Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error)
	// RequiresPricingPack reports whether this agent's invocations must be
	// rejected when the Request Context carries no pricing pack id.
	// Declared out-of-band per agent.
	RequiresPricingPack(capability string) bool
}

// Binding is the immutable (capability_name, agent_name, method_handle)
// triple a capability resolves to. Since Go has no free-standing method
// handle outside an interface, Binding carries the owning Agent and the
// Invoke call dispatches by capability string.
type Binding struct {
	Capability string
	AgentName  string
	Agent      Agent
}

// Registry maps capability identifiers to bindings. It is built once at
// process startup and is read-only thereafter — the mutex here only protects
// the one-time registration phase.
type Registry struct {
	mu         sync.RWMutex
	bindings   map[string]*Binding
	agentsByID map[string]Agent
	frozen     bool
	logger     core.Logger
}

// New creates an empty Registry.
func New(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		bindings:   make(map[string]*Binding),
		agentsByID: make(map[string]Agent),
		logger:     logger,
	}
}

// Register binds every capability an agent declares. A capability name
// collision is a fatal startup error naming both agents.
func (r *Registry) Register(agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return core.NewEngineError(core.KindInvalidInput, "capability.Register",
			"registry is frozen; register agents before Freeze", core.ErrAlreadyStarted)
	}

	for _, cap := range agent.Capabilities() {
		if existing, ok := r.bindings[cap]; ok {
			return core.NewEngineError(core.KindInvalidInput, "capability.Register",
				fmt.Sprintf("capability %q already registered by agent %q, cannot register for agent %q",
					cap, existing.AgentName, agent.Name()), core.ErrAlreadyRegistered)
		}
		r.bindings[cap] = &Binding{Capability: cap, AgentName: agent.Name(), Agent: agent}
	}
	r.agentsByID[agent.Name()] = agent

	r.logger.Info("agent registered", map[string]interface{}{
		"agent":        agent.Name(),
		"capabilities": agent.Capabilities(),
	})
	return nil
}

// Freeze marks the registry read-only. Called once after all agents have
// registered, before the pattern loader starts resolving capability references.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve looks up the binding for a capability name.
func (r *Registry) Resolve(capabilityName string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[capabilityName]
	if !ok {
		return nil, core.NewEngineError(core.KindUnknownCapability, "capability.Resolve",
			fmt.Sprintf("capability %q is not registered", capabilityName), core.ErrUnknownCapability)
	}
	return b, nil
}

// ListCapabilities returns every registered capability identifier, sorted
// for stable output to the discovery endpoint.
func (r *Registry) ListCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bindings))
	for cap := range r.bindings {
		out = append(out, cap)
	}
	sort.Strings(out)
	return out
}

// ListAgents returns every registered agent name, sorted.
func (r *Registry) ListAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.agentsByID))
	for name := range r.agentsByID {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
