// Package freshness memoizes per-key computations for a short validity
// window and guarantees at most one in-flight computation per key.
package freshness

import (
	"sync"
	"time"
)

type entry[T any] struct {
	at     time.Time
	result T
	err    error
}

// Cache coalesces concurrent callers per key: within the validity window
// the memoized result is reused, and racing callers for one key block on
// that key's mutex while exactly one of them computes. Different keys
// never serialize against each other.
type Cache[T any] struct {
	window time.Duration

	mu      sync.Mutex // guards the two maps, never held during compute
	memos   map[string]entry[T]
	keyLock map[string]*sync.Mutex
}

// New creates a cache with the given validity window.
func New[T any](window time.Duration) *Cache[T] {
	return &Cache[T]{
		window:  window,
		memos:   make(map[string]entry[T]),
		keyLock: make(map[string]*sync.Mutex),
	}
}

// GetOrCompute returns the memoized result for key if still fresh,
// otherwise runs compute under the key's mutex. A caller that was blocked
// behind another computation re-checks the memo before computing, so a
// burst of callers triggers one computation.
func (c *Cache[T]) GetOrCompute(key string, compute func() (T, error)) (T, error) {
	if e, ok := c.fresh(key); ok {
		return e.result, e.err
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have just finished while we waited.
	if e, ok := c.fresh(key); ok {
		return e.result, e.err
	}

	result, err := compute()

	c.mu.Lock()
	c.memos[key] = entry[T]{at: time.Now(), result: result, err: err}
	c.mu.Unlock()

	return result, err
}

// Invalidate drops the memo for key so the next caller recomputes.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.memos, key)
	c.mu.Unlock()
}

func (c *Cache[T]) fresh(key string) (entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.memos[key]
	if !ok || time.Since(e.at) > c.window {
		return entry[T]{}, false
	}
	return e, true
}

func (c *Cache[T]) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.keyLock[key]
	if !ok {
		m = &sync.Mutex{}
		c.keyLock[key] = m
	}
	return m
}
