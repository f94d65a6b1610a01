package execcache

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelfi/patternrunner/core"
)

// Cache is the Execution Cache's public interface. Writes
// with ttl <= 0 bypass the cache entirely: Set stores nothing for them.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*core.StepResult, bool)
	Set(ctx context.Context, fingerprint string, result *core.StepResult, ttl time.Duration)
	Stats() Stats
}

// Stats reports what an operator dashboard for the execution cache
// actually needs.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry struct {
	result    *core.StepResult
	expiresAt time.Time
	prev, next *entry
	key       string
}

// InMemoryCache is a process-local LRU cache with per-entry TTL, using a
// doubly-linked-list-plus-map design generalized from routing plans to
// Step Results and given a process-wide capacity ceiling.
type InMemoryCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*entry
	head     *entry
	tail     *entry
	stats    Stats
}

// NewInMemoryCache returns an LRU+TTL cache bounded at capacity entries.
func NewInMemoryCache(capacity int) *InMemoryCache {
	if capacity <= 0 {
		capacity = 100000
	}
	return &InMemoryCache{capacity: capacity, items: make(map[string]*entry)}
}

func (c *InMemoryCache) Get(_ context.Context, fingerprint string) (*core.StepResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[fingerprint]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		c.stats.Misses++
		return nil, false
	}
	c.moveToFront(e)
	c.stats.Hits++
	return e.result, true
}

func (c *InMemoryCache) Set(_ context.Context, fingerprint string, result *core.StepResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[fingerprint]; ok {
		existing.result = result
		existing.expiresAt = time.Now().Add(ttl)
		c.moveToFront(existing)
		return
	}

	if len(c.items) >= c.capacity && c.tail != nil {
		c.remove(c.tail)
		c.stats.Evictions++
	}

	e := &entry{key: fingerprint, result: result, expiresAt: time.Now().Add(ttl)}
	c.items[fingerprint] = e
	c.addToFront(e)
}

func (c *InMemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *InMemoryCache) addToFront(e *entry) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *InMemoryCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *InMemoryCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *InMemoryCache) remove(e *entry) {
	c.unlink(e)
	delete(c.items, e.key)
}
