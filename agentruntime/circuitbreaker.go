// Package agentruntime implements the Agent Runtime: the sole entity
// that invokes agent methods, enforcing circuit-breaking, retry policy, and
// pricing-pack preconditions.
package agentruntime

import (
	"sync"
	"time"

	"github.com/kestrelfi/patternrunner/core"
)

// state mirrors a standard three-state circuit breaker machine.
type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker gates invocations per (agent, capability) pair using a
// sliding window of the last N outcomes (sliding-window counters, half-open
// probe token, doubling cooldown) trimmed to a narrow set of transition
// rules, skipping HTTP-service concerns like volume threshold and
// success-rate-to-close.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg core.CircuitBreakerConfig

	st        state
	window    []bool // true = failure; ring buffer of up to cfg.WindowSize outcomes
	cooldown  time.Duration
	openUntil time.Time

	logger core.Logger
	name   string
}

// NewCircuitBreaker builds a breaker for one (agent, capability) pair.
func NewCircuitBreaker(name string, cfg core.CircuitBreakerConfig, logger core.Logger) *CircuitBreaker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = core.DefaultCircuitWindowSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = core.DefaultCircuitCooldown
	}
	if cfg.CooldownCeiling <= 0 {
		cfg.CooldownCeiling = core.DefaultCircuitCooldownCeiling
	}
	return &CircuitBreaker{
		cfg:      cfg,
		st:       stateClosed,
		cooldown: cfg.Cooldown,
		logger:   logger,
		name:     name,
	}
}

// Allow reports whether an invocation may proceed, transitioning
// OPEN → HALF_OPEN once the cooldown has elapsed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return true
	}

	switch c.st {
	case stateClosed:
		return true
	case stateOpen:
		if time.Now().After(c.openUntil) {
			c.transition(stateHalfOpen)
			return true
		}
		return false
	case stateHalfOpen:
		// Only a single probe is allowed through;
		// subsequent Allow calls while a probe is outstanding are
		// rejected until RecordResult resolves it.
		return false
	default:
		return true
	}
}

// RecordResult feeds a transient-classified outcome into the sliding
// window. Only transient failures (per core.IsTransient) count toward the
// breaker; permanent failures never trip it.
func (c *CircuitBreaker) RecordResult(transientFailure bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return
	}

	switch c.st {
	case stateHalfOpen:
		if transientFailure {
			c.cooldown *= 2
			if c.cooldown > c.cfg.CooldownCeiling {
				c.cooldown = c.cfg.CooldownCeiling
			}
			c.openUntil = time.Now().Add(c.cooldown)
			c.transition(stateOpen)
		} else {
			c.cooldown = c.cfg.Cooldown
			c.window = nil
			c.transition(stateClosed)
		}
		return
	}

	c.window = append(c.window, transientFailure)
	if len(c.window) > c.cfg.WindowSize {
		c.window = c.window[len(c.window)-c.cfg.WindowSize:]
	}

	failures := 0
	for _, f := range c.window {
		if f {
			failures++
		}
	}
	rate := float64(failures) / float64(len(c.window))

	if c.st == stateClosed && failures >= c.cfg.MinFailures && rate >= c.cfg.FailureRate {
		c.openUntil = time.Now().Add(c.cooldown)
		c.transition(stateOpen)
	}
}

// State returns the breaker's current state as a string.
func (c *CircuitBreaker) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.String()
}

// Reset clears the breaker back to CLOSED, discarding window history.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
	c.cooldown = c.cfg.Cooldown
	c.st = stateClosed
}

func (c *CircuitBreaker) transition(to state) {
	if c.st == to {
		return
	}
	from := c.st
	c.st = to
	c.logger.Info("circuit breaker state transition", map[string]interface{}{
		"breaker": c.name,
		"from":    from.String(),
		"to":      to.String(),
	})
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("agentruntime.circuit_transition", "breaker", c.name, "to", to.String())
	}
}
