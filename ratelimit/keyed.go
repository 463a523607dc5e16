package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// KeyedLimiter shards a quota by key so independent call streams (one per
// remote host, one per credential) do not starve each other. Every key gets
// its own Limiter with the shared maxCalls and period, created on first use
// and kept for the life of the KeyedLimiter.
type KeyedLimiter struct {
	maxCalls int
	period   time.Duration
	opts     options

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewKeyed creates a keyed limiter admitting maxCalls per period per key.
func NewKeyed(maxCalls int, period time.Duration, opts ...Option) (*KeyedLimiter, error) {
	if maxCalls <= 0 {
		return nil, ErrInvalidCapacity
	}
	if period <= 0 {
		return nil, ErrInvalidWindow
	}
	return &KeyedLimiter{
		maxCalls: maxCalls,
		period:   period,
		opts:     buildOptions(opts),
		limiters: make(map[string]*Limiter),
	}, nil
}

// Get returns the limiter for key, creating it if this is the first
// reference. Concurrent first references share one limiter.
func (k *KeyedLimiter) Get(key string) *Limiter {
	k.mu.Lock()

	l, ok := k.limiters[key]
	if ok {
		k.mu.Unlock()
		return l
	}
	l = newLimiter(k.maxCalls, k.period, k.opts)
	k.limiters[key] = l
	n := len(k.limiters)
	k.mu.Unlock()

	if ko, ok := k.opts.observer.(KeyObserver); ok {
		ko.ObserveKeys(k.opts.name, n)
	}
	return l
}

// TryAcquire records a call for key if its window has room.
func (k *KeyedLimiter) TryAcquire(key string) bool {
	return k.Get(key).TryAcquire()
}

// WaitTime returns how long until key has a free slot.
func (k *KeyedLimiter) WaitTime(key string) time.Duration {
	return k.Get(key).WaitTime()
}

// Acquire blocks until a call for key is admitted or ctx ends.
func (k *KeyedLimiter) Acquire(ctx context.Context, key string) error {
	return k.Get(key).Acquire(ctx)
}

// Capacity returns a snapshot of key's window.
func (k *KeyedLimiter) Capacity(key string) Capacity {
	c := k.Get(key).Capacity()
	c.Resource = key
	return c
}

// Keys returns every key seen so far, sorted.
func (k *KeyedLimiter) Keys() []string {
	k.mu.Lock()
	keys := make([]string, 0, len(k.limiters))
	for key := range k.limiters {
		keys = append(keys, key)
	}
	k.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of keys seen so far.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// Ensure KeyedLimiter implements RateLimiter.
var _ RateLimiter = (*KeyedLimiter)(nil)

// global applies one Limiter to every key.
type global struct {
	l *Limiter
}

// Global adapts a single Limiter to RateLimiter; every key draws from the
// same window.
func Global(l *Limiter) RateLimiter {
	return global{l: l}
}

func (g global) TryAcquire(string) bool { return g.l.TryAcquire() }
func (g global) WaitTime(string) time.Duration { return g.l.WaitTime() }
func (g global) Acquire(ctx context.Context, _ string) error { return g.l.Acquire(ctx) }
func (g global) Capacity(string) Capacity { return g.l.Capacity() }
