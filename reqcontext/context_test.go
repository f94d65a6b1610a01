package reqcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GeneratesCorrelationIDWhenEmpty(t *testing.T) {
	ctx := New(context.Background(), Params{UserID: "u1"})
	assert.NotEmpty(t, ctx.CorrelationID)
	assert.NotEmpty(t, ctx.RequestID)
	assert.NotEqual(t, ctx.RequestID, ctx.CorrelationID)
}

func TestNew_PreservesGivenCorrelationID(t *testing.T) {
	ctx := New(context.Background(), Params{CorrelationID: "corr-123"})
	assert.Equal(t, "corr-123", ctx.CorrelationID)
}

func TestNew_DefaultsTimeoutTo30Seconds(t *testing.T) {
	ctx := New(context.Background(), Params{})
	assert.Equal(t, 30*time.Second, ctx.Timeout)
}

func TestNew_HonorsGivenTimeout(t *testing.T) {
	ctx := New(context.Background(), Params{Timeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, ctx.Timeout)
	assert.InDelta(t, 5*time.Second, ctx.Remaining(), float64(500*time.Millisecond))
}

func TestCancel_TripsDoneAndCancelledButNotDeadlineExceeded(t *testing.T) {
	ctx := New(context.Background(), Params{Timeout: time.Minute})
	assert.False(t, ctx.Cancelled())

	ctx.Cancel()

	assert.True(t, ctx.Cancelled())
	assert.False(t, ctx.DeadlineExceeded())
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected Done channel to be closed after Cancel")
	}
}

func TestDeadlineExceeded_TripsWhenTimeoutElapses(t *testing.T) {
	ctx := New(context.Background(), Params{Timeout: time.Millisecond})
	require.Eventually(t, ctx.Cancelled, time.Second, time.Millisecond)
	assert.True(t, ctx.DeadlineExceeded())
}

func TestRemaining_NeverNegative(t *testing.T) {
	ctx := New(context.Background(), Params{Timeout: time.Millisecond})
	require.Eventually(t, func() bool { return ctx.Remaining() == 0 }, time.Second, time.Millisecond)
}

func TestWithDerivedDeadline_UsesLesserOfRemainingAndGiven(t *testing.T) {
	ctx := New(context.Background(), Params{Timeout: time.Second})

	derived, cancel := ctx.WithDerivedDeadline(10 * time.Millisecond)
	defer cancel()
	dl, ok := derived.Deadline()
	require.True(t, ok)
	assert.True(t, time.Until(dl) <= 10*time.Millisecond+5*time.Millisecond)

	derived2, cancel2 := ctx.WithDerivedDeadline(time.Hour)
	defer cancel2()
	dl2, ok := derived2.Deadline()
	require.True(t, ok)
	assert.True(t, time.Until(dl2) <= time.Second)
}

func TestWithGoContext_DoesNotMutateOriginal(t *testing.T) {
	ctx := New(context.Background(), Params{})
	original := ctx.GoContext()

	replacement, cancel := context.WithCancel(context.Background())
	defer cancel()

	clone := ctx.WithGoContext(replacement)

	assert.Same(t, original, ctx.GoContext())
	assert.Equal(t, replacement, clone.GoContext())
	assert.Equal(t, ctx.RequestID, clone.RequestID)
}

func TestHasPricingPack(t *testing.T) {
	withPack := New(context.Background(), Params{PricingPackID: "PP_2026-01-01"})
	assert.True(t, withPack.HasPricingPack())

	withoutPack := New(context.Background(), Params{})
	assert.False(t, withoutPack.HasPricingPack())
}
