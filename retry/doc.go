// Package retry re-runs failed operations with exponential backoff.
//
// A Policy fixes the number of attempts, the first delay, the growth factor
// and which failures are worth retrying. Delays are deterministic:
// retry n (from 0) waits InitialDelay * Multiplier^n, with no jitter.
//
//	policy, err := retry.NewPolicy(
//	    retry.WithMaxAttempts(4),
//	    retry.WithInitialDelay(500*time.Millisecond),
//	    retry.WithMultiplier(2),
//	)
//
//	// Blocking: the calling goroutine sleeps between attempts
//	issue, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*Issue, error) {
//	    return tracker.Get(ctx, "OPS-42")
//	})
//
//	// Non-blocking: the same algorithm on its own goroutine
//	select {
//	case res := <-retry.Go(ctx, policy, fetch):
//	    use(res.Value, res.Err)
//	case <-shutdown:
//	    cancel()
//	}
//
// The error a caller finally sees is the error the operation returned on its
// last attempt, unwrapped and unchanged. Failures the predicate rejects end
// the run after one attempt. By default only errors classified retryable by
// the callguard errors package are retried.
package retry
