// Package guard composes a rate limiter with a retry policy.
//
// Each attempt of a guarded call first takes a limiter slot for its key and
// then runs the operation; a retry takes a fresh slot. Limiter waits and
// retry delays both end early when the context is cancelled.
//
//	limiter, _ := ratelimit.NewKeyed(5000, time.Hour)
//	g, _ := guard.New(limiter, retry.MustPolicy(retry.WithMaxAttempts(4)))
//	issue, err := guard.Call(ctx, g, "api.github.com", fetchIssue)
//
// Transport wraps an http.RoundTripper with a Guard so that every request
// to a host is paced by that host's window.
package guard
