// Package ratelimit bounds how often outbound calls may be made.
//
// Glue clients for source control, issue trackers and LLM providers all talk
// to APIs that reject bursts. This package keeps the process under those
// limits with a rolling-window call log: a Limiter admits at most N calls in
// any window of length P ending now.
//
// # Global Limiting
//
//	limiter, err := ratelimit.New(60, time.Minute) // 60 calls per rolling minute
//	if err != nil {
//	    return err // non-positive quota or period
//	}
//
//	// Non-blocking: false means the quota is spent, not that anything failed
//	if !limiter.TryAcquire() {
//	    log.Printf("next slot in %v", limiter.WaitTime())
//	}
//
//	// Blocking: sleeps until admitted or ctx ends
//	if err := limiter.Acquire(ctx); err != nil {
//	    return err
//	}
//
// # Per-Key Limiting
//
// A KeyedLimiter gives every key its own window, created on first use:
//
//	hosts, _ := ratelimit.NewKeyed(10, time.Second)
//	hosts.TryAcquire("api.github.com")
//	hosts.TryAcquire("gitlab.example.com") // unaffected by github traffic
//
// # Algorithm
//
//   - Each admitted call appends its timestamp to the log
//   - Entries at least one period old are pruned on every access
//   - A call is admitted while the pruned log holds fewer than N entries
//   - WaitTime is period minus the age of the oldest entry, clamped at zero
//
// Pruning, counting and appending happen under one mutex. No lock is held
// while Acquire sleeps.
//
// # Fairness
//
// There is none. Blocked callers wake independently and the first to retry
// wins the slot. The only guarantee is that at most N calls are admitted per
// rolling period.
package ratelimit
