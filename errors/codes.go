package errors

import "net/http"

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, 503 from an upstream.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: bad request, missing repository, revoked token.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates the remote side refused for capacity reasons.
	// Examples: 429 responses, secondary rate limits.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or bugs on our side.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific failures within categories.
type ErrorCode string

// Error codes for outbound call failures.
const (
	// Transient
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // request or upstream timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // 5xx or overloaded upstream
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // connection refused, reset, DNS
	ErrCodeRetryLater  ErrorCode = "RETRY_LATER" // upstream asked us to come back

	// Permanent
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeBilling      ErrorCode = "BILLING" // payment required, credits exhausted
	ErrCodeCanceled     ErrorCode = "CANCELED"

	// Resource
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr, ErrCodeRetryLater:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeConflict, ErrCodeInvalidInput, ErrCodeUnauthorized,
		ErrCodeForbidden, ErrCodeBilling, ErrCodeCanceled:
		return CategoryPermanent

	case ErrCodeRateLimit:
		return CategoryResource

	// Quota windows outlast any retry schedule.
	case ErrCodeQuotaExceeded:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:       "operation timed out",
	ErrCodeUnavailable:   "service temporarily unavailable",
	ErrCodeNetworkErr:    "network connectivity error",
	ErrCodeRetryLater:    "server requested retry later",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "conflicting operation",
	ErrCodeInvalidInput:  "invalid request",
	ErrCodeUnauthorized:  "authentication required",
	ErrCodeForbidden:     "access denied",
	ErrCodeBilling:       "billing or payment error",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeRateLimit:     "rate limit exceeded",
	ErrCodeQuotaExceeded: "quota exceeded",
	ErrCodeInternal:      "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// CodeForStatus maps an HTTP status code to an error code.
// It returns "" for non-error statuses.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status < 400:
		return ""
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusPaymentRequired:
		return ErrCodeBilling
	case status == http.StatusForbidden:
		return ErrCodeForbidden
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrCodeNotFound
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusNotImplemented:
		return ErrCodeInvalidInput
	case status >= 500:
		return ErrCodeUnavailable
	default:
		return ErrCodeInvalidInput
	}
}
