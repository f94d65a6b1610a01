package pricingpack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfi/patternrunner/core"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestInMemoryStore_CreateAndGetPack(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	p, err := s.CreatePack(ctx, date("2026-01-15"), []string{"bloomberg", "refinitiv"}, "hash1")
	require.NoError(t, err)
	assert.Equal(t, "PP_2026-01-15", p.ID)
	assert.True(t, p.IsFresh)
	assert.True(t, p.Terminal())

	got, err := s.GetPack(ctx, "PP_2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, p.Hash, got.Hash)
}

func TestInMemoryStore_GetPackNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.GetPack(context.Background(), "PP_2026-01-15")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPackNotFound)

	ee, ok := err.(*core.EngineError)
	require.True(t, ok)
	assert.Equal(t, core.KindPackNotFound, ee.Kind, "a missing pack must not be tagged with the pattern-loader's UnknownPattern kind")
}

func TestInMemoryStore_DuplicateNonSupersededPackRejected(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)

	_, err = s.CreatePack(ctx, date("2026-01-15"), []string{"b"}, "hash2")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicatePack)
}

func TestInMemoryStore_GetLatestReturnsTerminalPackForDate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)

	_, newPack, err := s.Supersede(ctx, orig.ID, []string{"a", "b"}, "hash2", "late correction")
	require.NoError(t, err)

	latest, err := s.GetLatest(ctx, date("2026-01-15"))
	require.NoError(t, err)
	assert.Equal(t, newPack.ID, latest.ID)
}

func TestInMemoryStore_GetLatestNoPackForDate(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.GetLatest(context.Background(), date("2026-01-15"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoPackForDate)
}

func TestInMemoryStore_SupersedeCreatesDepthSuffixedID(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)

	old, newPack, err := s.Supersede(ctx, orig.ID, []string{"a"}, "hash2", "correction")
	require.NoError(t, err)
	assert.Equal(t, "PP_2026-01-15_D1", newPack.ID)
	assert.Equal(t, newPack.ID, old.SupersededBy)
	assert.False(t, old.Terminal())

	_, third, err := s.Supersede(ctx, newPack.ID, []string{"a"}, "hash3", "second correction")
	require.NoError(t, err)
	assert.Equal(t, "PP_2026-01-15_D2", third.ID)
}

func TestInMemoryStore_SupersedeAlreadySupersededFails(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)
	_, _, err = s.Supersede(ctx, orig.ID, []string{"a"}, "hash2", "correction")
	require.NoError(t, err)

	_, _, err = s.Supersede(ctx, orig.ID, []string{"a"}, "hash3", "duplicate supersede attempt")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAlreadySuperseded)
}

func TestInMemoryStore_SupersedeIdenticalHashRejected(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)

	_, _, err = s.Supersede(ctx, orig.ID, []string{"a"}, "hash1", "no-op restatement")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIdenticalPackHash)
}

func TestInMemoryStore_SupersedeUnknownPackFails(t *testing.T) {
	s := NewInMemoryStore()
	_, _, err := s.Supersede(context.Background(), "PP_2026-01-15", []string{"a"}, "hash1", "r")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPackNotFound)
}

func TestInMemoryStore_ListChainFollowsSupersedeLinks(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)
	_, gen1, err := s.Supersede(ctx, orig.ID, []string{"a"}, "hash2", "r1")
	require.NoError(t, err)
	_, gen2, err := s.Supersede(ctx, gen1.ID, []string{"a"}, "hash3", "r2")
	require.NoError(t, err)

	chain, err := s.ListChain(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{orig.ID, gen1.ID, gen2.ID}, chain)
}

func TestInMemoryStore_ListChainDetectsCycle(t *testing.T) {
	s := NewInMemoryStore()
	// Hand-construct a cycle directly in the store's map; Supersede itself
	// can never produce one, but ListChain must still defend against a
	// corrupted backing store.
	s.packs["PP_2026-01-15"] = &Pack{ID: "PP_2026-01-15", SupersededBy: "PP_2026-01-15_D1"}
	s.packs["PP_2026-01-15_D1"] = &Pack{ID: "PP_2026-01-15_D1", SupersededBy: "PP_2026-01-15"}

	_, err := s.ListChain(context.Background(), "PP_2026-01-15")
	require.Error(t, err)
	var ee *core.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, core.KindValidationFailure, ee.Kind)
}

func TestInMemoryStore_AuditLogOrderedByTime(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	orig, err := s.CreatePack(ctx, date("2026-01-15"), []string{"a"}, "hash1")
	require.NoError(t, err)
	_, gen1, err := s.Supersede(ctx, orig.ID, []string{"a"}, "hash2", "first correction")
	require.NoError(t, err)
	_, _, err = s.Supersede(ctx, gen1.ID, []string{"a"}, "hash3", "second correction")
	require.NoError(t, err)

	log := s.AuditLog()
	require.Len(t, log, 2)
	assert.Equal(t, "first correction", log[0].Reason)
	assert.Equal(t, "second correction", log[1].Reason)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("PP_2026-01-15"))
	assert.True(t, ValidID("PP_2026-01-15_D3"))
	assert.False(t, ValidID("PP_latest"))
	assert.False(t, ValidID("PP_2026-1-15"))
	assert.False(t, ValidID("garbage"))
}
