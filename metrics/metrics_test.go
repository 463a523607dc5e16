package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vinayprograms/callguard/clock"
	"github.com/vinayprograms/callguard/ratelimit"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("github", true)
	m.ObserveWait("github", time.Second)
	m.ObserveRetry("github", "UNAVAILABLE")
	m.ObserveCall("github", "ok", time.Second)
	m.ObserveKeys("github", 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 6 {
		t.Errorf("expected 6 metric families, got %d", len(families))
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}

func TestObserveDecision(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDecision("jira", true)
	m.ObserveDecision("jira", true)
	m.ObserveDecision("jira", false)

	if got := testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("jira", "allowed")); got != 2 {
		t.Errorf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("jira", "denied")); got != 1 {
		t.Errorf("expected 1 denied, got %v", got)
	}
}

func TestObserveRetry_UnknownCode(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRetry("openai", "")

	if got := testutil.ToFloat64(m.RetryAttempts.WithLabelValues("openai", "UNKNOWN")); got != 1 {
		t.Errorf("expected empty code to count as UNKNOWN, got %v", got)
	}
}

func TestObserveCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCall("anthropic", "error", 2*time.Second)

	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("anthropic", "error")); got != 1 {
		t.Errorf("expected 1 failed call, got %v", got)
	}
	if n := testutil.CollectAndCount(m.CallDuration); n != 1 {
		t.Errorf("expected 1 duration series, got %d", n)
	}
}

func TestMetrics_AsLimiterObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())
	fc := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	l, err := ratelimit.New(2, time.Second,
		ratelimit.WithClock(fc),
		ratelimit.WithName("gitlab"),
		ratelimit.WithObserver(m),
	)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	l.TryAcquire()
	l.TryAcquire()
	l.TryAcquire()

	if got := testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("gitlab", "allowed")); got != 2 {
		t.Errorf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(m.LimiterDecisions.WithLabelValues("gitlab", "denied")); got != 1 {
		t.Errorf("expected 1 denied, got %v", got)
	}
}

func TestMetrics_TracksKeyedLimiterKeys(t *testing.T) {
	m := New(prometheus.NewRegistry())
	k, err := ratelimit.NewKeyed(5, time.Second, ratelimit.WithName("github"), ratelimit.WithObserver(m))
	if err != nil {
		t.Fatalf("failed to create keyed limiter: %v", err)
	}

	k.TryAcquire("org/a")
	k.TryAcquire("org/b")
	k.TryAcquire("org/a")

	if got := testutil.ToFloat64(m.LimiterKeys.WithLabelValues("github")); got != 2 {
		t.Errorf("expected 2 keys, got %v", got)
	}
}
