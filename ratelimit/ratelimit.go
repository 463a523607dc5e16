package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrInvalidCapacity = errors.New("invalid capacity: max calls must be positive")
	ErrInvalidWindow   = errors.New("invalid window: period must be positive")
)

// RateLimiter bounds call frequency for one or more independent call streams.
// Exhausting a quota is not an error: TryAcquire reports it as false and the
// caller decides whether to wait or fail fast.
type RateLimiter interface {
	// TryAcquire records a call for key if the rolling window has room.
	// It never blocks.
	TryAcquire(key string) bool

	// WaitTime returns how long until key has a free slot.
	// Zero means TryAcquire would currently succeed.
	WaitTime(key string) time.Duration

	// Acquire blocks until a slot for key is recorded or ctx ends.
	// Returns ctx.Err() on cancellation; nothing is recorded in that case.
	Acquire(ctx context.Context, key string) error

	// Capacity returns a snapshot of key's window.
	Capacity(key string) Capacity
}

// Capacity describes the current state of one rolling window.
type Capacity struct {
	// Resource is the key the window belongs to. Empty for a global limiter.
	Resource string

	// Available is the number of calls that would be admitted right now.
	Available int

	// Total is the maximum number of calls per window.
	Total int

	// Window is the rolling period.
	Window time.Duration

	// RetryAfter is the wait until the next slot frees up. Zero when Available > 0.
	RetryAfter time.Duration
}

// Observer receives limiter decisions. Implementations must be safe for
// concurrent use; they are never called with a limiter lock held.
type Observer interface {
	// ObserveDecision records one admission decision: every TryAcquire, and
	// the admission that ends a blocking Acquire. Acquire's internal retries
	// are not decisions.
	ObserveDecision(limiter string, allowed bool)

	// ObserveWait records how long a blocking Acquire waited before admission.
	ObserveWait(limiter string, waited time.Duration)
}

// KeyObserver is an optional Observer extension. A KeyedLimiter whose
// observer implements it reports its key count each time a key is added.
type KeyObserver interface {
	ObserveKeys(limiter string, keys int)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(string, bool) {}
func (nopObserver) ObserveWait(string, time.Duration) {}
