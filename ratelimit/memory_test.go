package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vinayprograms/callguard/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, maxCalls int, period time.Duration) (*Limiter, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	l, err := New(maxCalls, period, WithClock(fc))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return l, fc
}

func TestLimiter_InvalidConfig(t *testing.T) {
	if _, err := New(0, time.Second); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := New(-1, time.Second); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := New(1, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := New(1, -time.Second); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestLimiter_TryAcquire(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Errorf("expected TryAcquire to succeed on attempt %d", i+1)
		}
	}

	if l.TryAcquire() {
		t.Error("expected TryAcquire to fail after exhausting capacity")
	}

	cap := l.Capacity()
	if cap.Available != 0 {
		t.Errorf("expected available 0, got %d", cap.Available)
	}
	if cap.Total != 3 {
		t.Errorf("expected total 3, got %d", cap.Total)
	}
	if cap.Window != time.Minute {
		t.Errorf("expected window 1m, got %v", cap.Window)
	}
}

// Limiter(3, 1s): calls at 0.0, 0.1, 0.2 pass, 0.3 is refused with 0.7s to
// wait, and 1.01 passes again.
func TestLimiter_RollingWindowScenario(t *testing.T) {
	l, fc := newTestLimiter(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Fatalf("call at t=%v should succeed", fc.Now().Sub(epoch))
		}
		fc.Advance(100 * time.Millisecond)
	}

	// t = 0.3
	if l.TryAcquire() {
		t.Fatal("call at t=0.3 should be refused")
	}
	if got := l.WaitTime(); got != 700*time.Millisecond {
		t.Errorf("expected wait 700ms at t=0.3, got %v", got)
	}

	fc.Set(epoch.Add(1010 * time.Millisecond))
	if !l.TryAcquire() {
		t.Error("call at t=1.01 should succeed")
	}
}

func TestLimiter_RefusalHasNoSideEffect(t *testing.T) {
	l, fc := newTestLimiter(t, 1, time.Second)

	if !l.TryAcquire() {
		t.Fatal("first call should succeed")
	}
	fc.Advance(500 * time.Millisecond)
	for i := 0; i < 10; i++ {
		if l.TryAcquire() {
			t.Fatal("call inside window should be refused")
		}
	}

	// Refused calls were not logged, so the slot frees exactly one period
	// after the first call.
	fc.Advance(500 * time.Millisecond)
	if !l.TryAcquire() {
		t.Error("slot should free one period after the only admitted call")
	}
}

func TestLimiter_AdmitsExactlyAtPeriodBoundary(t *testing.T) {
	l, fc := newTestLimiter(t, 2, time.Second)

	l.TryAcquire()
	l.TryAcquire()

	fc.Advance(time.Second - time.Nanosecond)
	if l.TryAcquire() {
		t.Fatal("call before the period elapsed should be refused")
	}
	if got := l.WaitTime(); got != time.Nanosecond {
		t.Errorf("expected 1ns wait, got %v", got)
	}

	fc.Advance(time.Nanosecond)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("expected zero wait at boundary, got %v", got)
	}
	if !l.TryAcquire() {
		t.Error("call once the period elapsed should succeed")
	}
}

func TestLimiter_WaitTimeEmptyLog(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Hour)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("expected zero wait on empty log, got %v", got)
	}
}

func TestLimiter_WaitTimeNonIncreasing(t *testing.T) {
	l, fc := newTestLimiter(t, 2, time.Second)
	l.TryAcquire()
	fc.Advance(200 * time.Millisecond)
	l.TryAcquire()

	prev := l.WaitTime()
	for i := 0; i < 30; i++ {
		fc.Advance(50 * time.Millisecond)
		got := l.WaitTime()
		if got > prev {
			t.Fatalf("wait increased from %v to %v", prev, got)
		}
		if got == 0 && l.Capacity().RetryAfter != 0 {
			t.Fatal("capacity should agree with WaitTime")
		}
		prev = got
	}
}

func TestLimiter_WaitTimeZeroIffAdmits(t *testing.T) {
	l, fc := newTestLimiter(t, 2, time.Second)

	for step := 0; step < 40; step++ {
		wait := l.WaitTime()
		ok := l.TryAcquire()
		if (wait == 0) != ok {
			t.Fatalf("step %d: wait=%v but TryAcquire=%v", step, wait, ok)
		}
		fc.Advance(130 * time.Millisecond)
	}
}

func TestLimiter_ClockSkewClamped(t *testing.T) {
	l, fc := newTestLimiter(t, 1, time.Second)
	l.TryAcquire()

	// Clock steps back: the elapsed time becomes negative.
	fc.Set(epoch.Add(-5 * time.Second))
	got := l.WaitTime()
	if got < 0 || got > time.Second {
		t.Errorf("expected wait clamped to [0, 1s], got %v", got)
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Hour)
	l.TryAcquire()
	if l.TryAcquire() {
		t.Fatal("expected refusal before reset")
	}
	l.Reset()
	if !l.TryAcquire() {
		t.Error("expected admission after reset")
	}
}

func TestLimiter_ConcurrentAdmitsAtMostMax(t *testing.T) {
	l, _ := newTestLimiter(t, 5, time.Minute)

	var wg sync.WaitGroup
	var admitted atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 5 {
		t.Errorf("expected exactly 5 admitted, got %d", admitted.Load())
	}
}

func TestLimiter_Acquire_WaitsForSlot(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, fc := newTestLimiter(t, 1, time.Second)
	l.TryAcquire()

	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(context.Background())
	}()

	fc.BlockUntil(1)
	select {
	case err := <-done:
		t.Fatalf("Acquire returned early: %v", err)
	default:
	}

	fc.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected admission, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after the window freed")
	}

	if l.Capacity().Available != 0 {
		t.Error("blocking Acquire should have recorded a call")
	}
}

func TestLimiter_Acquire_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, fc := newTestLimiter(t, 1, time.Minute)
	l.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx)
	}()

	fc.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire ignored cancellation")
	}

	// The cancelled waiter must not have consumed a slot.
	fc.Advance(time.Minute)
	if cap := l.Capacity(); cap.Available != 1 {
		t.Errorf("expected full window after cancellation, got %d available", cap.Available)
	}
}

func TestLimiter_Acquire_AlreadyCancelled(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if l.Capacity().Available != 1 {
		t.Error("cancelled Acquire must not record a call")
	}
}

func TestLimiter_Acquire_RealClockContention(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, err := New(3, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	var admitted []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != 9 {
		t.Fatalf("expected 9 admissions, got %d", len(admitted))
	}
	// Any 4 consecutive admissions must span at least one period.
	sortTimes(admitted)
	for i := 3; i < len(admitted); i++ {
		if span := admitted[i].Sub(admitted[i-3]); span < 100*time.Millisecond-25*time.Millisecond {
			t.Errorf("admissions %d..%d within %v, quota exceeded", i-3, i, span)
		}
	}
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	allowed  int
	denied   int
	waits    []time.Duration
	limiters map[string]bool
}

func (r *recordingObserver) ObserveDecision(limiter string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiters == nil {
		r.limiters = make(map[string]bool)
	}
	r.limiters[limiter] = true
	if allowed {
		r.allowed++
	} else {
		r.denied++
	}
}

func (r *recordingObserver) ObserveWait(limiter string, waited time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, waited)
}

func TestLimiter_Observer(t *testing.T) {
	obs := &recordingObserver{}
	fc := clock.NewFake(epoch)
	l, err := New(1, time.Second, WithClock(fc), WithName("github"), WithObserver(obs))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	l.TryAcquire()
	l.TryAcquire()

	if obs.allowed != 1 || obs.denied != 1 {
		t.Errorf("expected 1 allowed and 1 denied, got %d/%d", obs.allowed, obs.denied)
	}
	if !obs.limiters["github"] {
		t.Error("expected observer to see limiter name")
	}
}

func TestLimiter_AcquireReportsOnlyAdmission(t *testing.T) {
	obs := &recordingObserver{}
	fc := clock.NewFake(epoch)
	l, err := New(1, time.Second, WithClock(fc), WithObserver(obs))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	l.TryAcquire()

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.allowed != 2 || obs.denied != 0 {
		t.Errorf("expected 2 allowed and 0 denied, got %d/%d", obs.allowed, obs.denied)
	}
	if len(obs.waits) != 1 || obs.waits[0] != time.Second {
		t.Errorf("expected one 1s wait, got %v", obs.waits)
	}
}

func TestLimiter_CancelledAcquireReportsNothing(t *testing.T) {
	obs := &recordingObserver{}
	fc := clock.NewFake(epoch)
	l, err := New(1, time.Second, WithClock(fc), WithObserver(obs))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	l.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()
	fc.BlockUntil(1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.allowed != 1 || obs.denied != 0 || len(obs.waits) != 0 {
		t.Errorf("expected only the first admission, got allowed=%d denied=%d waits=%v",
			obs.allowed, obs.denied, obs.waits)
	}
}
