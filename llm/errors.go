package llm

import (
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cgerrors "github.com/vinayprograms/callguard/errors"
)

// classifyError turns an SDK failure into a callguard error carrying the
// upstream status, so the retry predicate sees 429 and 5xx as retryable and
// billing or auth failures as permanent.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	opts := []cgerrors.Option{cgerrors.WithService(provider), cgerrors.WithCause(err)}

	if code := statusOf(err); code >= 400 {
		if cerr := cgerrors.FromStatus(code, provider+" request failed", opts...); cerr != nil {
			return cerr
		}
	}
	return cgerrors.Classify(err, cgerrors.WithService(provider))
}

// statusOf extracts an HTTP status from the error types the SDKs return.
func statusOf(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code
	}
	if s, ok := status.FromError(err); ok {
		return grpcToHTTP(s.Code())
	}
	return 0
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Internal, codes.Unknown:
		return http.StatusInternalServerError
	default:
		return 0
	}
}
