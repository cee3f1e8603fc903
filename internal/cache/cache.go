// Package cache holds the explicit configuration caches handed to the
// diversity resolver and the selection engine.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores a single value of type T. Implementations are safe for
// concurrent use.
type Cache[T any] interface {
	// Get returns the cached value and whether it is present and fresh.
	Get(ctx context.Context) (T, bool)
	Set(ctx context.Context, value T)
	// Invalidate drops the value so the next Get misses.
	Invalidate(ctx context.Context)
}

// Memory is an in-process Cache with an optional TTL. A zero TTL keeps the
// value until it is invalidated.
type Memory[T any] struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	value    T
	cachedAt time.Time
	valid    bool
}

// NewMemory builds a memory cache. A nil clock uses time.Now.
func NewMemory[T any](ttl time.Duration, clock func() time.Time) *Memory[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Memory[T]{ttl: ttl, now: clock}
}

func (c *Memory[T]) Get(ctx context.Context) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero T
	if !c.valid {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(c.cachedAt) > c.ttl {
		return zero, false
	}
	return c.value, true
}

func (c *Memory[T]) Set(ctx context.Context, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.cachedAt = c.now()
	c.valid = true
}

func (c *Memory[T]) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.valid = false
}

// Nop never stores anything; every Get misses.
type Nop[T any] struct{}

func (Nop[T]) Get(context.Context) (T, bool) {
	var zero T
	return zero, false
}
func (Nop[T]) Set(context.Context, T)     {}
func (Nop[T]) Invalidate(context.Context) {}

var (
	_ Cache[int] = (*Memory[int])(nil)
	_ Cache[int] = Nop[int]{}
)
