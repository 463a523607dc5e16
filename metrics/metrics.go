// Package metrics exports Prometheus collectors for limiter decisions,
// limiter waits and retry attempts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vinayprograms/callguard/ratelimit"
)

const namespace = "callguard"

// Metrics holds all Prometheus metrics for guarded calls.
// It implements ratelimit.Observer so limiters can report to it directly.
type Metrics struct {
	LimiterDecisions *prometheus.CounterVec
	LimiterWait      *prometheus.HistogramVec
	RetryAttempts    *prometheus.CounterVec
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	LimiterKeys      *prometheus.GaugeVec
}

var _ ratelimit.Observer = (*Metrics)(nil)

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LimiterDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limiter_decisions_total",
				Help:      "Total rate limiter admission decisions",
			},
			[]string{"limiter", "result"}, // result=allowed/denied
		),
		LimiterWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "limiter_wait_seconds",
				Help:      "Time blocked waiting for a rate limiter slot",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"limiter"},
		),
		RetryAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total failed attempts that were scheduled for retry",
			},
			[]string{"guard", "code"},
		),
		CallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total guarded calls by final outcome",
			},
			[]string{"guard", "status"}, // status=ok/error/canceled
		),
		CallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Guarded call duration including limiter waits and retry delays",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"guard"},
		),
		LimiterKeys: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "limiter_keys",
				Help:      "Number of keys tracked by a keyed limiter",
			},
			[]string{"limiter"},
		),
	}
}

// ObserveDecision implements ratelimit.Observer.
func (m *Metrics) ObserveDecision(limiter string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.LimiterDecisions.WithLabelValues(limiter, result).Inc()
}

// ObserveWait implements ratelimit.Observer.
func (m *Metrics) ObserveWait(limiter string, waited time.Duration) {
	m.LimiterWait.WithLabelValues(limiter).Observe(waited.Seconds())
}

// ObserveRetry counts one failed attempt that will be retried.
func (m *Metrics) ObserveRetry(guard, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	m.RetryAttempts.WithLabelValues(guard, code).Inc()
}

// ObserveCall records the final outcome of a guarded call.
func (m *Metrics) ObserveCall(guard, status string, d time.Duration) {
	m.CallsTotal.WithLabelValues(guard, status).Inc()
	m.CallDuration.WithLabelValues(guard).Observe(d.Seconds())
}

// ObserveKeys implements ratelimit.KeyObserver.
func (m *Metrics) ObserveKeys(limiter string, n int) {
	m.LimiterKeys.WithLabelValues(limiter).Set(float64(n))
}
