// Package errors provides a structured error taxonomy for outbound calls.
//
// Glue clients turn whatever their SDK or HTTP response produced into an
// *Error carrying a code, a category and a retryable flag. The retry layer
// reads that flag; nothing downstream has to parse error strings.
//
// # Error Categories
//
//   - Transient: temporary failures where retry may succeed (timeouts, 5xx)
//   - Permanent: retry will not help (bad request, not found, auth)
//   - Resource: the upstream refused for capacity reasons (429)
//   - Internal: unexpected errors on our side
//
// Transient and Resource errors are retryable unless overridden with
// WithRetryable.
//
// # Usage
//
// From an HTTP response:
//
//	if err := errors.FromStatus(resp.StatusCode, "list issues", errors.WithService("jira")); err != nil {
//	    return err
//	}
//
// From an SDK error that only has a message:
//
//	return errors.Classify(err, errors.WithService("anthropic"))
//
// Deciding whether to retry:
//
//	if errors.IsRetryable(err) {
//	    // try again later
//	}
//
// Classification always keeps the original error as the cause, so errors.Is
// and errors.As from the standard library still find it.
package errors
