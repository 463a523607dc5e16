package retry

import "context"

// Result is the outcome of an asynchronous run started with Go.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// run is the single retry algorithm shared by every entry point.
func run[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		if attempt >= p.maxAttempts || !p.retryable(err) {
			return zero, attempt, err
		}

		delay := p.Delay(attempt - 1)
		for _, hook := range p.onRetry {
			hook(Attempt{Number: attempt, Err: err, Delay: delay})
		}
		if serr := p.sleeper.Sleep(ctx, delay); serr != nil {
			return zero, attempt, serr
		}
	}
}

// Do runs fn until it succeeds, fails with an error the policy does not
// retry, or runs out of attempts. The final error is returned exactly as fn
// produced it. If ctx ends during a wait, Do returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	_, _, err := run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	v, _, err := run(ctx, p, fn)
	return v, err
}

// Go runs the same algorithm as DoValue on a new goroutine and delivers
// exactly one Result on the returned channel. Callers select on it alongside
// other work instead of blocking; cancelling ctx ends any pending wait.
func Go[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, attempts, err := run(ctx, p, fn)
		ch <- Result[T]{Value: v, Err: err, Attempts: attempts}
	}()
	return ch
}
