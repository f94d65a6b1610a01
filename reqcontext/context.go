// Package reqcontext implements the Request Context: the immutable
// per-request identity threaded through pattern execution.
package reqcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context carries immutable per-request identity: user, portfolio, as-of
// date, pricing-pack id, ledger commit hash, and trace id.
// It is constructed once at request entry and handed to every
// capability invocation; nothing downstream may mutate it.
type Context struct {
	RequestID        string
	UserID           string
	PortfolioID      string
	AsOfDate         time.Time
	PricingPackID    string
	LedgerCommitHash string
	CorrelationID    string
	Timeout          time.Duration

	deadline time.Time
	goCtx    context.Context
	cancel   context.CancelFunc
}

// Params are the caller-supplied fields used to build a Context.
// PricingPackID may be empty; New copies it as given and does not resolve
// it (the caller is responsible for calling a pricing pack store
// beforehand; New itself does not reach into pricingpack to avoid an
// import cycle).
type Params struct {
	UserID           string
	PortfolioID      string
	AsOfDate         time.Time
	PricingPackID    string
	LedgerCommitHash string
	CorrelationID    string
	Timeout          time.Duration
}

// New builds a Context for one request. If CorrelationID is empty, a fresh
// uuid is generated so every request is traceable even when the caller
// supplies none.
func New(parent context.Context, p Params) *Context {
	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	goCtx, cancel := context.WithTimeout(parent, timeout)

	return &Context{
		RequestID:        uuid.NewString(),
		UserID:           p.UserID,
		PortfolioID:      p.PortfolioID,
		AsOfDate:         p.AsOfDate,
		PricingPackID:    p.PricingPackID,
		LedgerCommitHash: p.LedgerCommitHash,
		CorrelationID:    correlationID,
		Timeout:          timeout,
		deadline:         time.Now().Add(timeout),
		goCtx:            goCtx,
		cancel:           cancel,
	}
}

// Done returns the channel closed when the request's deadline expires or
// Cancel is called.
func (c *Context) Done() <-chan struct{} {
	return c.goCtx.Done()
}

// Cancelled reports whether the cancellation token has tripped (either via
// Cancel or the wall-clock deadline).
func (c *Context) Cancelled() bool {
	select {
	case <-c.goCtx.Done():
		return true
	default:
		return false
	}
}

// DeadlineExceeded reports specifically that the request's wall-clock
// budget (ctx.timeout) has elapsed, as distinct from an explicit Cancel.
func (c *Context) DeadlineExceeded() bool {
	return c.Cancelled() && c.goCtx.Err() == context.DeadlineExceeded
}

// Cancel trips the request's cancellation token.
func (c *Context) Cancel() {
	c.cancel()
}

// Remaining returns the time left in the request's wall-clock budget. It
// never returns a negative duration.
func (c *Context) Remaining() time.Duration {
	remaining := time.Until(c.deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GoContext returns the underlying context.Context, for passing to
// capability invocations and downstream I/O that expect the standard
// library's cancellation idiom: agents must honor this deadline on any
// outbound I/O.
func (c *Context) GoContext() context.Context {
	return c.goCtx
}

// WithDerivedDeadline returns a child context.Context whose deadline is the
// lesser of the parent's remaining budget and the given duration — the
// derived deadline handed to each capability invocation.
func (c *Context) WithDerivedDeadline(d time.Duration) (context.Context, context.CancelFunc) {
	remaining := c.Remaining()
	if d <= 0 || remaining < d {
		d = remaining
	}
	return context.WithTimeout(c.goCtx, d)
}

// WithGoContext returns a shallow copy of c whose underlying
// context.Context is replaced by ctx. Used to thread a span-bearing context
// (for example the one returned by Telemetry.StartSpan) down into capability
// invocations without mutating the caller's Context.
func (c *Context) WithGoContext(ctx context.Context) *Context {
	clone := *c
	clone.goCtx = ctx
	return &clone
}

// HasPricingPack reports whether PricingPackID is set; it does not check
// the id's format. Agents that declare requires_pricing_pack == true are
// validated against this before invocation.
func (c *Context) HasPricingPack() bool {
	return c.PricingPackID != ""
}
