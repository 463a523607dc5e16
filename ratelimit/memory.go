package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/callguard/clock"
)

// Option configures a Limiter or KeyedLimiter.
type Option func(*options)

type options struct {
	clock    clock.Clock
	name     string
	observer Observer
}

// WithClock sets the time source. Default: clock.Real().
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithName labels the limiter in metrics and logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithObserver registers an observer for limiter decisions.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:    clock.Real(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// Limiter admits at most maxCalls calls in any rolling window of length
// period. It keeps a log of admission times and prunes it lazily.
// It is safe for concurrent use.
type Limiter struct {
	maxCalls int
	period   time.Duration
	clock    clock.Clock
	name     string
	observer Observer

	mu    sync.Mutex
	calls []time.Time // chronological; len(calls) <= maxCalls
}

// New creates a limiter admitting maxCalls per period.
func New(maxCalls int, period time.Duration, opts ...Option) (*Limiter, error) {
	if maxCalls <= 0 {
		return nil, ErrInvalidCapacity
	}
	if period <= 0 {
		return nil, ErrInvalidWindow
	}
	return newLimiter(maxCalls, period, buildOptions(opts)), nil
}

func newLimiter(maxCalls int, period time.Duration, o options) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		period:   period,
		clock:    o.clock,
		name:     o.name,
		observer: o.observer,
		calls:    make([]time.Time, 0, maxCalls),
	}
}

// MaxCalls returns the per-window quota.
func (l *Limiter) MaxCalls() int { return l.maxCalls }

// Period returns the window length.
func (l *Limiter) Period() time.Duration { return l.period }

// prune drops every entry at or before now-period. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.period)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(l.calls, l.calls[i:])
		l.calls = l.calls[:n]
	}
}

// waitLocked computes the time until the oldest entry leaves the window.
// Caller holds l.mu and has pruned.
func (l *Limiter) waitLocked(now time.Time) time.Duration {
	if len(l.calls) < l.maxCalls {
		return 0
	}
	wait := l.period - now.Sub(l.calls[0])
	// A clock stepping backwards can push this outside [0, period].
	if wait < 0 {
		return 0
	}
	if wait > l.period {
		return l.period
	}
	return wait
}

// reserve prunes and, if there is room, records a call at now.
// It returns the wait for the next slot when there is no room.
func (l *Limiter) reserve() (bool, time.Duration) {
	l.mu.Lock()
	now := l.clock.Now()
	l.prune(now)
	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		l.mu.Unlock()
		return true, 0
	}
	wait := l.waitLocked(now)
	l.mu.Unlock()
	return false, wait
}

// TryAcquire records a call if fewer than maxCalls calls were admitted in the
// last period. It never blocks and never fails with an error; false means the
// quota is exhausted and nothing was recorded.
func (l *Limiter) TryAcquire() bool {
	ok, _ := l.reserve()
	l.observer.ObserveDecision(l.name, ok)
	return ok
}

// WaitTime returns zero if a slot is free, otherwise the time until the
// oldest admitted call leaves the window.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	return l.waitLocked(now)
}

// Acquire blocks until a call is admitted or ctx ends. It re-checks the
// window after every wait, so under contention it may sleep more than once.
// Waiting callers are not served in arrival order. Only the final admission
// is reported to the observer; a cancelled wait reports nothing.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := l.clock.Now()
	for {
		ok, wait := l.reserve()
		if ok {
			l.observer.ObserveDecision(l.name, true)
			l.observer.ObserveWait(l.name, l.clock.Now().Sub(start))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// Capacity returns a snapshot of the window.
func (l *Limiter) Capacity() Capacity {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	return Capacity{
		Available:  l.maxCalls - len(l.calls),
		Total:      l.maxCalls,
		Window:     l.period,
		RetryAfter: l.waitLocked(now),
	}
}

// Reset forgets every recorded call.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = l.calls[:0]
}
