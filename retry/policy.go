package retry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	cgerrors "github.com/vinayprograms/callguard/errors"
)

// ErrInvalidPolicy is returned when a policy is built with out-of-range settings.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Default policy settings.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultMultiplier   = 2.0
)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	// Number is the 1-based index of the attempt that failed.
	Number int

	// Err is the failure the attempt returned.
	Err error

	// Delay is how long the orchestrator will wait before the next attempt.
	Delay time.Duration
}

// Policy is an immutable retry configuration. The zero value is not usable;
// build one with NewPolicy. Policies are safe to share between goroutines.
type Policy struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration // 0 means uncapped
	retryable    func(error) bool
	sleeper      Sleeper
	onRetry      []func(Attempt)
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.maxAttempts = n
	}
}

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.initialDelay = d
	}
}

// WithMultiplier sets the factor applied to the delay after each retry.
func WithMultiplier(m float64) Option {
	return func(p *Policy) {
		p.multiplier = m
	}
}

// WithMaxDelay caps individual delays. Zero leaves them uncapped.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.maxDelay = d
	}
}

// WithRetryable sets the predicate deciding which failures are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) {
		p.retryable = fn
	}
}

// WithSleeper replaces how the orchestrator waits between attempts.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		p.sleeper = s
	}
}

// WithOnRetry adds a hook called before each inter-attempt wait.
// Hooks run on the retrying goroutine and must not block.
func WithOnRetry(fn func(Attempt)) Option {
	return func(p *Policy) {
		p.onRetry = append(p.onRetry, fn)
	}
}

// NewPolicy builds a policy from the defaults plus opts.
func NewPolicy(opts ...Option) (Policy, error) {
	p := Policy{
		maxAttempts:  DefaultMaxAttempts,
		initialDelay: DefaultInitialDelay,
		multiplier:   DefaultMultiplier,
		retryable:    cgerrors.IsRetryable,
		sleeper:      RealSleeper(),
	}
	return p.With(opts...)
}

// MustPolicy is like NewPolicy but panics on invalid settings.
// Intended for package-level policies with constant settings.
func MustPolicy(opts ...Option) Policy {
	p, err := NewPolicy(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// With returns a copy of p with opts applied. p itself is unchanged.
func (p Policy) With(opts ...Option) (Policy, error) {
	p.onRetry = slices.Clone(p.onRetry)
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) validate() error {
	if p.maxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.maxAttempts)
	}
	if p.initialDelay < 0 {
		return fmt.Errorf("%w: initial delay must not be negative, got %v", ErrInvalidPolicy, p.initialDelay)
	}
	if math.IsNaN(p.multiplier) || p.multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be at least 1, got %v", ErrInvalidPolicy, p.multiplier)
	}
	if p.maxDelay < 0 {
		return fmt.Errorf("%w: max delay must not be negative, got %v", ErrInvalidPolicy, p.maxDelay)
	}
	if p.retryable == nil {
		return fmt.Errorf("%w: retryable predicate is required", ErrInvalidPolicy)
	}
	if p.sleeper == nil {
		return fmt.Errorf("%w: sleeper is required", ErrInvalidPolicy)
	}
	return nil
}

// MaxAttempts returns the total number of attempts.
func (p Policy) MaxAttempts() int { return p.maxAttempts }

// InitialDelay returns the wait before the first retry.
func (p Policy) InitialDelay() time.Duration { return p.initialDelay }

// Multiplier returns the backoff factor.
func (p Policy) Multiplier() float64 { return p.multiplier }

// MaxDelay returns the delay cap, or 0 if uncapped.
func (p Policy) MaxDelay() time.Duration { return p.maxDelay }

// Retryable reports whether err would be retried by this policy.
func (p Policy) Retryable(err error) bool {
	return err != nil && p.retryable(err)
}

// Delay returns the wait before retry n, counting from 0:
// InitialDelay * Multiplier^n, saturated at MaxDelay (if set) and at the
// largest representable duration.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(p.initialDelay) * math.Pow(p.multiplier, float64(n))
	delay := time.Duration(math.MaxInt64)
	if d < float64(math.MaxInt64) {
		delay = time.Duration(d)
	}
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}

// TotalDelay returns the summed waits for k retries.
func (p Policy) TotalDelay(k int) time.Duration {
	var total time.Duration
	for i := 0; i < k; i++ {
		d := p.Delay(i)
		if total > math.MaxInt64-d {
			return math.MaxInt64
		}
		total += d
	}
	return total
}
