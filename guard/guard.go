package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vinayprograms/callguard/clock"
	cgerrors "github.com/vinayprograms/callguard/errors"
	"github.com/vinayprograms/callguard/logging"
	"github.com/vinayprograms/callguard/metrics"
	"github.com/vinayprograms/callguard/ratelimit"
	"github.com/vinayprograms/callguard/retry"
	"github.com/vinayprograms/callguard/telemetry"
)

// ErrNoLimiter is returned by New when no limiter is supplied.
var ErrNoLimiter = errors.New("guard requires a rate limiter")

// Guard runs operations under a rate limiter and a retry policy.
// Every attempt, including retries, first acquires a limiter slot for its
// key. A Guard is safe for concurrent use.
type Guard struct {
	name    string
	limiter ratelimit.RateLimiter
	policy  retry.Policy
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  *telemetry.Tracer
	clock   clock.Clock
	newID   func() string
}

// Option configures a Guard.
type Option func(*Guard)

// WithName labels the guard in logs, metrics and spans. Default: "default".
func WithName(name string) Option {
	return func(g *Guard) {
		g.name = name
	}
}

// WithLogger sets the logger. Default: logging.Nop().
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

// WithMetrics records retries and call outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTracer sets the tracer. Default: telemetry.GetTracer().
func WithTracer(t *telemetry.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

// WithClock sets the clock used to measure waits and call duration.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		g.clock = c
	}
}

// New creates a guard. Use ratelimit.Global to share one window across keys.
func New(limiter ratelimit.RateLimiter, policy retry.Policy, opts ...Option) (*Guard, error) {
	if limiter == nil {
		return nil, ErrNoLimiter
	}
	if policy.MaxAttempts() < 1 {
		return nil, fmt.Errorf("%w: build the policy with retry.NewPolicy", retry.ErrInvalidPolicy)
	}
	g := &Guard{
		name:    "default",
		limiter: limiter,
		policy:  policy,
		clock:   clock.Real(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.Nop()
	}
	if g.tracer == nil {
		g.tracer = telemetry.GetTracer()
	}
	return g, nil
}

// Name returns the guard's label.
func (g *Guard) Name() string { return g.name }

// Limiter returns the guard's limiter.
func (g *Guard) Limiter() ratelimit.RateLimiter { return g.limiter }

// Policy returns the guard's retry policy.
func (g *Guard) Policy() retry.Policy { return g.policy }

// Do runs fn under the guard for key. The final error is whatever fn
// returned last, or ctx.Err() if ctx ended while waiting.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	_, _, err := call(ctx, g, g.policy, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under g for key and returns its value.
func Call[T any](ctx context.Context, g *Guard, key string, fn func(context.Context) (T, error)) (T, error) {
	v, _, err := call(ctx, g, g.policy, key, fn)
	return v, err
}

// Go is the non-blocking form of Call. Exactly one Result is delivered on
// the returned channel.
func Go[T any](ctx context.Context, g *Guard, key string, fn func(context.Context) (T, error)) <-chan retry.Result[T] {
	ch := make(chan retry.Result[T], 1)
	go func() {
		v, attempts, err := call(ctx, g, g.policy, key, fn)
		ch <- retry.Result[T]{Value: v, Err: err, Attempts: attempts}
	}()
	return ch
}

func call[T any](ctx context.Context, g *Guard, policy retry.Policy, key string, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	callID := g.newID()
	log := g.logger.WithComponent(g.name).WithCallID(callID)

	ctx, span := g.tracer.StartCallSpan(ctx, g.name, key, callID)
	start := g.clock.Now()

	p, err := policy.With(retry.WithOnRetry(func(a retry.Attempt) {
		log.RetryScheduled(key, a.Number, a.Delay, a.Err)
		telemetry.RecordRetry(span, a.Number, a.Delay, a.Err)
		if g.metrics != nil {
			g.metrics.ObserveRetry(g.name, string(cgerrors.Code(a.Err)))
		}
	}))
	if err != nil {
		g.tracer.EndCallSpan(span, telemetry.CallSpanOptions{}, err)
		return zero, 0, err
	}

	attempts := 0
	v, err := retry.DoValue(ctx, p, func(ctx context.Context) (T, error) {
		attempts++
		if !g.limiter.TryAcquire(key) {
			log.RateLimited(key, g.limiter.WaitTime(key))
			waitStart := g.clock.Now()
			if err := g.limiter.Acquire(ctx, key); err != nil {
				return zero, err
			}
			telemetry.RecordWait(span, g.clock.Now().Sub(waitStart))
		}
		return fn(ctx)
	})

	elapsed := g.clock.Now().Sub(start)
	status := "ok"
	switch {
	case err == nil:
		log.CallComplete(key, attempts, elapsed)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		status = "canceled"
		log.Debug("call_canceled", map[string]interface{}{"key": key, "attempts": attempts})
	default:
		status = "error"
		log.RetryExhausted(key, attempts, err)
	}
	if g.metrics != nil {
		g.metrics.ObserveCall(g.name, status, elapsed)
	}
	g.tracer.EndCallSpan(span, telemetry.CallSpanOptions{
		Attempts: attempts,
		Code:     string(cgerrors.Code(err)),
	}, err)

	return v, attempts, err
}
