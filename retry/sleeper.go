package retry

import (
	"context"
	"time"

	"github.com/vinayprograms/callguard/clock"
)

// Sleeper is the wait between attempts. It must return early with ctx.Err()
// when ctx ends, and must not leave a timer running after it returns.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type realSleeper struct{}

// RealSleeper waits on a runtime timer and stops it on cancellation.
func RealSleeper() Sleeper {
	return realSleeper{}
}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type clockSleeper struct {
	c clock.Clock
}

// ClockSleeper waits on c. With a clock.Fake the wait only ends when the
// fake is advanced.
func ClockSleeper(c clock.Clock) Sleeper {
	return clockSleeper{c: c}
}

func (s clockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.c.After(d):
		return nil
	}
}
