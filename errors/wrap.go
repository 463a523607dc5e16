package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err already carries a code, the wrapper keeps it; otherwise the error is
// classified first.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var callErr *Error
	if errors.As(err, &callErr) {
		wrapped := &Error{
			code:      callErr.code,
			category:  callErr.category,
			message:   message,
			cause:     err,
			metadata:  callErr.Metadata(),
			retryable: callErr.retryable,
			timestamp: callErr.timestamp,
			service:   callErr.service,
			status:    callErr.status,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	return New(classifyCode(err), message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Classify returns err as a structured error. Errors that already carry a
// code are returned as they are; anything else is wrapped with a code
// inferred from its type and message, keeping err as the cause so errors.Is
// and errors.As still reach it. Classify returns nil for nil.
func Classify(err error, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr
	}
	code := classifyCode(err)
	return New(code, code.Description(), append(opts, WithCause(err))...)
}

// statusPattern matches an HTTP error status named as such ("status 429",
// "status code: 503", "HTTP/1.1 502", "code=404"). Bare numbers are ignored.
var statusPattern = regexp.MustCompile(`\b(?:status(?:[ _]code)?|http(?:/[0-9.]+)?|code)\s*[:=]?\s*([45][0-9]{2})\b`)

// classifyCode infers a code for an unstructured error. SDKs that only
// expose a message are matched on a named status, then on the wording
// upstreams use.
func classifyCode(err error) ErrorCode {
	if errors.Is(err, context.Canceled) {
		return ErrCodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrCodeTimeout
		}
		return ErrCodeNetworkErr
	}

	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		if status, convErr := strconv.Atoi(m[1]); convErr == nil {
			return CodeForStatus(status)
		}
	}
	switch {
	case containsAny(msg, "billing", "payment required", "credits", "credit balance", "insufficient", "subscription"):
		return ErrCodeBilling
	case containsAny(msg, "quota exceeded"):
		return ErrCodeQuotaExceeded
	case containsAny(msg, "rate limit", "too many requests", "overloaded"):
		return ErrCodeRateLimit
	case containsAny(msg, "internal server error", "bad gateway",
		"service unavailable", "temporarily unavailable"):
		return ErrCodeUnavailable
	case containsAny(msg, "gateway timeout", "timed out", "timeout"):
		return ErrCodeTimeout
	case containsAny(msg, "connection refused", "connection reset", "no such host", "broken pipe"):
		return ErrCodeNetworkErr
	case containsAny(msg, "unauthorized", "invalid api key"):
		return ErrCodeUnauthorized
	case containsAny(msg, "forbidden"):
		return ErrCodeForbidden
	case containsAny(msg, "not found"):
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AsCallError extracts a CallError from an error chain.
// Returns nil if no CallError is found.
func AsCallError(err error) CallError {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable. Unstructured errors are not:
// clients must classify what they want retried.
func IsRetryable(err error) bool {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.Retryable()
	}
	return false
}

// IsTransient checks if the error is transient.
func IsTransient(err error) bool {
	return IsCategory(err, CategoryTransient)
}

// IsPermanent checks if the error is permanent.
func IsPermanent(err error) bool {
	return IsCategory(err, CategoryPermanent)
}

// IsResource checks if the error is resource-related.
func IsResource(err error) bool {
	return IsCategory(err, CategoryResource)
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
func Category(err error) ErrorCategory {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
