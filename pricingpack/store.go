package pricingpack

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kestrelfi/patternrunner/core"
)

// Store is the Pricing Pack Store's public interface.
type Store interface {
	GetPack(ctx context.Context, packID string) (*Pack, error)
	GetLatest(ctx context.Context, asOfDate time.Time) (*Pack, error)
	CreatePack(ctx context.Context, asOfDate time.Time, sources []string, hash string) (*Pack, error)
	Supersede(ctx context.Context, oldPackID string, newSources []string, newHash string, reason string) (old, new *Pack, err error)
	ListChain(ctx context.Context, rootPackID string) ([]string, error)
}

// InMemoryStore is a process-local Store used in tests and single-node
// development, scoped to the Pricing Pack entity and
// its supersede invariants.
type InMemoryStore struct {
	mu    sync.Mutex
	packs map[string]*Pack
	audit []AuditEntry
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{packs: make(map[string]*Pack)}
}

func (s *InMemoryStore) GetPack(_ context.Context, packID string) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok {
		return nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.GetPack",
			fmt.Sprintf("pack %q not found", packID), core.ErrPackNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) GetLatest(_ context.Context, asOfDate time.Time) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		if p.AsOfDate.Equal(asOfDate) && p.Terminal() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.GetLatest",
		fmt.Sprintf("no pack for date %s", asOfDate.Format("2006-01-02")), core.ErrNoPackForDate)
}

func (s *InMemoryStore) CreatePack(_ context.Context, asOfDate time.Time, sources []string, hash string) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("PP_%s", asOfDate.Format("2006-01-02"))
	for _, p := range s.packs {
		if p.AsOfDate.Equal(asOfDate) && p.Terminal() {
			return nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.CreatePack",
				fmt.Sprintf("non-superseded pack already exists for %s", asOfDate.Format("2006-01-02")),
				core.ErrDuplicatePack)
		}
	}

	p := &Pack{
		ID:        id,
		AsOfDate:  asOfDate,
		Hash:      hash,
		Sources:   append([]string(nil), sources...),
		IsFresh:   true,
		CreatedAt: time.Now(),
	}
	s.packs[id] = p
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) Supersede(_ context.Context, oldPackID string, newSources []string, newHash string, reason string) (*Pack, *Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.packs[oldPackID]
	if !ok {
		return nil, nil, core.NewEngineError(core.KindPackNotFound, "pricingpack.Supersede",
			fmt.Sprintf("pack %q not found", oldPackID), core.ErrPackNotFound)
	}
	if old.SupersededBy != "" {
		return nil, nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.Supersede",
			fmt.Sprintf("pack %q already superseded by %q", oldPackID, old.SupersededBy), core.ErrAlreadySuperseded)
	}
	if old.Hash == newHash {
		return nil, nil, core.NewEngineError(core.KindInvalidInput, "pricingpack.Supersede",
			"restated pack has identical hash to predecessor", core.ErrIdenticalPackHash)
	}

	depth := supersedeDepth(oldPackID) + 1
	newID := fmt.Sprintf("PP_%s_D%d", old.AsOfDate.Format("2006-01-02"), depth)

	newPack := &Pack{
		ID:        newID,
		AsOfDate:  old.AsOfDate,
		Hash:      newHash,
		Sources:   append([]string(nil), newSources...),
		IsFresh:   true,
		CreatedAt: time.Now(),
	}
	s.packs[newID] = newPack
	old.SupersededBy = newID

	s.audit = append(s.audit, AuditEntry{OldPackID: oldPackID, NewPackID: newID, Reason: reason, At: time.Now()})

	oldCopy, newCopy := *old, *newPack
	return &oldCopy, &newCopy, nil
}

func (s *InMemoryStore) ListChain(_ context.Context, rootPackID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chain []string
	cur := rootPackID
	seen := make(map[string]bool)
	for cur != "" {
		if seen[cur] {
			return nil, core.NewEngineError(core.KindValidationFailure, "pricingpack.ListChain",
				"supersede chain contains a cycle", core.ErrValidationFailure)
		}
		seen[cur] = true
		chain = append(chain, cur)
		p, ok := s.packs[cur]
		if !ok {
			break
		}
		cur = p.SupersededBy
	}
	return chain, nil
}

// AuditLog returns a stable-ordered copy of the append-only supersede
// audit log, for operator inspection.
func (s *InMemoryStore) AuditLog() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]AuditEntry(nil), s.audit...)
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func supersedeDepth(packID string) int {
	// "PP_2025-09-01" -> 0, "PP_2025-09-01_D1" -> 1, etc.
	for i := len(packID) - 1; i >= 0; i-- {
		if packID[i] == 'D' && i > 0 && packID[i-1] == '_' {
			var n int
			fmt.Sscanf(packID[i+1:], "%d", &n)
			return n
		}
	}
	return 0
}
