package state

import (
	"context"
	"sync"
)

// Factory builds a brand-new State for a task that isn't cached yet
// (typically loading the Task row and wiring a fresh bandit.Allocator).
type Factory func(ctx context.Context, taskID string) (*State, error)

// perTaskLock is a reference-counted mutex so concurrent first-lookups for
// the *same* task id serialize on construction, while lookups for
// different task ids never block each other.
type perTaskLock struct {
	mu  sync.Mutex
	ref int
}

// Cache is the process-wide ExplorationState cache keyed by task id
// (spec.md §5 "Shared state"). A global lock protects the map's keyset;
// a per-task lock protects per-task construction and load, with the
// canonical double-checked pattern: re-test the cache after acquiring
// the per-task lock, since another goroutine may have finished
// constructing it while this one waited.
type Cache struct {
	keysetMu sync.Mutex
	states   map[string]*State
	locks    map[string]*perTaskLock
}

// NewCache constructs an empty process-wide cache.
func NewCache() *Cache {
	return &Cache{
		states: make(map[string]*State),
		locks:  make(map[string]*perTaskLock),
	}
}

// GetOrCreate returns the cached State for taskID, constructing it via
// build exactly once even under concurrent callers racing on the same
// task id (spec.md §5).
func (c *Cache) GetOrCreate(ctx context.Context, taskID string, build Factory) (*State, error) {
	if s, ok := c.peek(taskID); ok {
		return s, nil
	}

	lock := c.acquireTaskLock(taskID)
	defer c.releaseTaskLock(taskID, lock)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	// Double-checked: another goroutine may have constructed and
	// published the state while we were waiting on lock.mu.
	if s, ok := c.peek(taskID); ok {
		return s, nil
	}

	s, err := build(ctx, taskID)
	if err != nil {
		return nil, err
	}

	c.keysetMu.Lock()
	c.states[taskID] = s
	c.keysetMu.Unlock()

	return s, nil
}

// Peek returns the cached State without constructing one.
func (c *Cache) Peek(taskID string) (*State, bool) {
	return c.peek(taskID)
}

func (c *Cache) peek(taskID string) (*State, bool) {
	c.keysetMu.Lock()
	defer c.keysetMu.Unlock()
	s, ok := c.states[taskID]
	return s, ok
}

// Evict drops a task's cached state, e.g. once finalize has persisted it
// and no further long-polling readers are expected.
func (c *Cache) Evict(taskID string) {
	c.keysetMu.Lock()
	defer c.keysetMu.Unlock()
	delete(c.states, taskID)
}

// Tasks returns the task ids currently cached, for diagnostics.
func (c *Cache) Tasks() []string {
	c.keysetMu.Lock()
	defer c.keysetMu.Unlock()
	out := make([]string, 0, len(c.states))
	for id := range c.states {
		out = append(out, id)
	}
	return out
}

func (c *Cache) acquireTaskLock(taskID string) *perTaskLock {
	c.keysetMu.Lock()
	defer c.keysetMu.Unlock()
	l, ok := c.locks[taskID]
	if !ok {
		l = &perTaskLock{}
		c.locks[taskID] = l
	}
	l.ref++
	return l
}

func (c *Cache) releaseTaskLock(taskID string, l *perTaskLock) {
	c.keysetMu.Lock()
	defer c.keysetMu.Unlock()
	l.ref--
	if l.ref == 0 {
		delete(c.locks, taskID)
	}
}
