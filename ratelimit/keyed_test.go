package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/callguard/clock"
)

func newTestKeyed(t *testing.T, maxCalls int, period time.Duration) (*KeyedLimiter, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	k, err := NewKeyed(maxCalls, period, WithClock(fc))
	if err != nil {
		t.Fatalf("failed to create keyed limiter: %v", err)
	}
	return k, fc
}

func TestKeyedLimiter_InvalidConfig(t *testing.T) {
	if _, err := NewKeyed(0, time.Second); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := NewKeyed(1, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestKeyedLimiter_KeysIndependent(t *testing.T) {
	k, _ := newTestKeyed(t, 2, time.Minute)

	k.TryAcquire("a")
	k.TryAcquire("a")
	if k.TryAcquire("a") {
		t.Fatal("expected key a to be exhausted")
	}

	if got := k.WaitTime("b"); got != 0 {
		t.Errorf("exhausting a should not affect b's wait, got %v", got)
	}
	for i := 0; i < 2; i++ {
		if !k.TryAcquire("b") {
			t.Errorf("expected key b call %d to succeed", i+1)
		}
	}
}

func TestKeyedLimiter_UnknownKeysGetQuota(t *testing.T) {
	k, _ := newTestKeyed(t, 1, time.Minute)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("host-%d", i)
		if !k.TryAcquire(key) {
			t.Fatalf("first call for %s should succeed", key)
		}
	}
	if k.Len() != 50 {
		t.Errorf("expected 50 keys, got %d", k.Len())
	}
}

func TestKeyedLimiter_GetSharesLimiter(t *testing.T) {
	k, _ := newTestKeyed(t, 1, time.Minute)

	var wg sync.WaitGroup
	got := make([]*Limiter, 64)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = k.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatal("concurrent first access created more than one limiter")
		}
	}
	if k.Len() != 1 {
		t.Errorf("expected 1 key, got %d", k.Len())
	}
}

func TestKeyedLimiter_ConcurrentAdmitsPerKey(t *testing.T) {
	k, _ := newTestKeyed(t, 3, time.Minute)

	var mu sync.Mutex
	admitted := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []string{"a", "b", "c", "d"}[i%4]
			if k.TryAcquire(key) {
				mu.Lock()
				admitted[key]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for _, key := range []string{"a", "b", "c", "d"} {
		if admitted[key] != 3 {
			t.Errorf("expected 3 admissions for %s, got %d", key, admitted[key])
		}
	}
}

func TestKeyedLimiter_HistoryPersists(t *testing.T) {
	k, fc := newTestKeyed(t, 1, time.Second)

	k.TryAcquire("a")
	fc.Advance(400 * time.Millisecond)

	// Re-fetching the key must not reset its window.
	if got := k.WaitTime("a"); got != 600*time.Millisecond {
		t.Errorf("expected 600ms wait, got %v", got)
	}
	cap := k.Capacity("a")
	if cap.Resource != "a" {
		t.Errorf("expected resource a, got %q", cap.Resource)
	}
	if cap.RetryAfter != 600*time.Millisecond {
		t.Errorf("expected retry after 600ms, got %v", cap.RetryAfter)
	}
}

func TestKeyedLimiter_Keys(t *testing.T) {
	k, _ := newTestKeyed(t, 1, time.Second)
	k.TryAcquire("zeta")
	k.TryAcquire("alpha")
	k.WaitTime("mid")

	keys := k.Keys()
	want := []string{"alpha", "mid", "zeta"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("expected %v, got %v", want, keys)
			break
		}
	}
}

func TestKeyedLimiter_AcquireBlocksOnlyItsKey(t *testing.T) {
	k, fc := newTestKeyed(t, 1, time.Second)
	k.TryAcquire("a")

	done := make(chan error, 1)
	go func() {
		done <- k.Acquire(context.Background(), "a")
	}()
	fc.BlockUntil(1)

	if err := k.Acquire(context.Background(), "b"); err != nil {
		t.Fatalf("key b should be admitted immediately: %v", err)
	}

	fc.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected admission for a, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire for a never returned")
	}
}

func TestGlobal_SharesOneWindow(t *testing.T) {
	l, _ := newTestLimiter(t, 2, time.Minute)
	g := Global(l)

	g.TryAcquire("a")
	g.TryAcquire("b")
	if g.TryAcquire("c") {
		t.Error("global limiter should share one quota across keys")
	}
	if g.WaitTime("anything") != time.Minute {
		t.Errorf("expected 1m wait, got %v", g.WaitTime("anything"))
	}
}

type keyCounter struct {
	recordingObserver
	mu     sync.Mutex
	counts []int
}

func (k *keyCounter) ObserveKeys(limiter string, n int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.counts = append(k.counts, n)
}

func TestKeyedLimiter_ReportsKeyCount(t *testing.T) {
	obs := &keyCounter{}
	k, err := NewKeyed(1, time.Second, WithObserver(obs), WithName("repos"))
	if err != nil {
		t.Fatalf("failed to create keyed limiter: %v", err)
	}

	k.TryAcquire("api")
	k.TryAcquire("api")
	k.TryAcquire("web")
	k.WaitTime("docs")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if fmt.Sprint(obs.counts) != "[1 2 3]" {
		t.Errorf("expected key counts [1 2 3], got %v", obs.counts)
	}
}
