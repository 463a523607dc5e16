package guard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/callguard/clock"
	"github.com/vinayprograms/callguard/config"
	"github.com/vinayprograms/callguard/logging"
	"github.com/vinayprograms/callguard/metrics"
	"github.com/vinayprograms/callguard/ratelimit"
	"github.com/vinayprograms/callguard/telemetry"
)

// Registry holds the guards declared in a config file. Guards that name
// the same limit share one limiter, so their calls draw from one quota.
type Registry struct {
	mu     sync.RWMutex
	guards map[string]*Guard
}

// RegistryOptions are applied to every guard and limiter a Registry builds.
type RegistryOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Tracer  *telemetry.Tracer
	Clock   clock.Clock
}

// NewRegistry builds every guard in cfg.
func NewRegistry(cfg *config.Config, ro RegistryOptions) (*Registry, error) {
	var limOpts []ratelimit.Option
	if ro.Metrics != nil {
		limOpts = append(limOpts, ratelimit.WithObserver(ro.Metrics))
	}
	if ro.Clock != nil {
		limOpts = append(limOpts, ratelimit.WithClock(ro.Clock))
	}

	limiters := make(map[string]ratelimit.RateLimiter)
	r := &Registry{guards: make(map[string]*Guard)}

	for _, name := range cfg.GuardNames() {
		gc := cfg.Guards[name]

		limiter, ok := limiters[gc.Limit]
		if !ok {
			var err error
			if limiter, err = cfg.Limiter(gc.Limit, limOpts...); err != nil {
				return nil, fmt.Errorf("guard %s: %w", name, err)
			}
			limiters[gc.Limit] = limiter
		}

		policy, err := cfg.Policy(gc.Retry)
		if err != nil {
			return nil, fmt.Errorf("guard %s: %w", name, err)
		}

		opts := []Option{WithName(name)}
		if ro.Logger != nil {
			opts = append(opts, WithLogger(ro.Logger))
		}
		if ro.Metrics != nil {
			opts = append(opts, WithMetrics(ro.Metrics))
		}
		if ro.Tracer != nil {
			opts = append(opts, WithTracer(ro.Tracer))
		}
		if ro.Clock != nil {
			opts = append(opts, WithClock(ro.Clock))
		}

		g, err := New(limiter, policy, opts...)
		if err != nil {
			return nil, fmt.Errorf("guard %s: %w", name, err)
		}
		r.guards[name] = g
	}
	return r, nil
}

// Get returns the named guard.
func (r *Registry) Get(name string) (*Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guards[name]
	return g, ok
}

// Register adds or replaces a guard.
func (r *Registry) Register(g *Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[g.Name()] = g
}

// Names returns the registered guard names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
