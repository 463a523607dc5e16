package guard

import (
	"context"
	"io"
	"net/http"

	cgerrors "github.com/vinayprograms/callguard/errors"
	"github.com/vinayprograms/callguard/retry"
	"github.com/vinayprograms/callguard/telemetry"
)

// maxDrain bounds how much of a discarded response body is read so the
// connection can be reused.
const maxDrain = 64 << 10

// Transport is an http.RoundTripper that sends every request through a
// Guard. Responses whose status maps to a retryable error are retried; the
// last such response is returned to the caller once attempts run out.
type Transport struct {
	// Guard paces and retries requests. Required.
	Guard *Guard

	// Base performs the request. Default: http.DefaultTransport.
	Base http.RoundTripper

	// Key picks the limiter key for a request. Default: the request host.
	Key func(*http.Request) string
}

// statusError carries the response that produced a retryable status.
type statusError struct {
	err  *cgerrors.Error
	resp *http.Response
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	key := req.URL.Host
	if t.Key != nil {
		key = t.Key(req)
	}

	policy := t.Guard.policy
	if !rewindable(req) {
		var err error
		if policy, err = policy.With(retry.WithMaxAttempts(1)); err != nil {
			return nil, err
		}
	}

	// The original body is closed here unless it was handed to base, which
	// then owns it.
	handedOff := false
	if req.Body != nil && req.Body != http.NoBody {
		defer func() {
			if !handedOff {
				req.Body.Close()
			}
		}()
	}

	var last *statusError
	resp, _, err := call(req.Context(), t.Guard, policy, key, func(ctx context.Context) (*http.Response, error) {
		if last != nil {
			discard(last.resp)
			last = nil
		}

		attempt := req.Clone(ctx)
		if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attempt.Body = body
		} else if req.Body != nil && req.Body != http.NoBody {
			handedOff = true
		}
		telemetry.InjectHeaders(ctx, attempt.Header)

		resp, err := base.RoundTrip(attempt)
		if err != nil {
			return nil, cgerrors.Classify(err, cgerrors.WithService(key))
		}

		opts := []cgerrors.Option{cgerrors.WithService(key)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			opts = append(opts, cgerrors.WithMetadata("retry_after", ra))
		}
		serr := cgerrors.FromStatus(resp.StatusCode, resp.Status, opts...)
		if serr == nil || !policy.Retryable(serr) {
			return resp, nil
		}
		last = &statusError{err: serr, resp: resp}
		return nil, last
	})

	if se, ok := err.(*statusError); ok && se == last {
		return se.resp, nil
	}
	if last != nil {
		discard(last.resp)
	}
	return resp, err
}

// rewindable reports whether req can be sent more than once.
func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func discard(resp *http.Response) {
	io.CopyN(io.Discard, resp.Body, maxDrain)
	resp.Body.Close()
}
