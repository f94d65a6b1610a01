package agentruntime

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/kestrelfi/patternrunner/core"
)

// RetryPolicy retries only transient failures, up
// to MaxAttempts, with exponential backoff and full (not additive) jitter,
// bypassing a retry whose backoff would exceed the request's remaining
// deadline budget.
type RetryPolicy struct {
	cfg core.RetryConfig
	rnd *rand.Rand
}

// NewRetryPolicy builds a policy from RetryConfig, falling back to
// package defaults for any zero-valued field.
func NewRetryPolicy(cfg core.RetryConfig) *RetryPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = core.DefaultRetryMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = core.DefaultRetryBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = core.DefaultRetryMaxDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	return &RetryPolicy{cfg: cfg, rnd: rand.New(rand.NewSource(1))}
}

// Outcome records how many attempts a Run call made, for the step trace
// entry.
type Outcome struct {
	Attempts int
	Err      error
}

// Run invokes fn up to cfg.MaxAttempts times, retrying only when fn returns
// a transient error and remaining() leaves enough budget for the next
// backoff delay.
func (p *RetryPolicy) Run(ctx context.Context, remaining func() time.Duration, fn func() error) Outcome {
	var lastErr error
	attempts := 0
	delay := p.cfg.BaseDelay

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Attempts: attempt - 1, Err: ctx.Err()}
		default:
		}

		err := fn()
		attempts = attempt
		if err == nil {
			return Outcome{Attempts: attempt, Err: nil}
		}
		lastErr = err

		if !core.IsTransient(err) {
			return Outcome{Attempts: attempt, Err: err}
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		next := p.backoff(attempt, delay)
		if remaining != nil && remaining() < next {
			// Bypass the retry if the remaining deadline budget is smaller
			// than the next backoff delay.
			break
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * p.cfg.BackoffFactor)
		if delay > p.cfg.MaxDelay {
			delay = p.cfg.MaxDelay
		}
	}

	return Outcome{Attempts: attempts, Err: lastErr}
}

// backoff applies full jitter: a uniform random duration in [0, cap].
func (p *RetryPolicy) backoff(attempt int, base time.Duration) time.Duration {
	capped := time.Duration(math.Min(float64(base), float64(p.cfg.MaxDelay)))
	if capped <= 0 {
		return 0
	}
	return time.Duration(p.rnd.Int63n(int64(capped) + 1))
}
