package github

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls transparent retries of idempotent-by-precondition API
// calls. Content writes carry the prior blob SHA, so replaying a PUT cannot
// overwrite a concurrent change.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Methods         []string
	Statuses        []int
}

// DefaultRetryPolicy retries up to 5 times with a 0.5s exponential backoff on
// rate limiting and gateway errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Methods:         []string{http.MethodGet, http.MethodPut, http.MethodHead},
		Statuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (p RetryPolicy) allowsMethod(method string) bool {
	for _, m := range p.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (p RetryPolicy) retryableStatus(code int) bool {
	for _, s := range p.Statuses {
		if s == code {
			return true
		}
	}
	return false
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, p.MaxRetries)
}

type retryableStatusError struct {
	code int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

type retryRoundTripper struct {
	base   http.RoundTripper
	policy RetryPolicy
	w      io.Writer
}

func (t *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.policy.allowsMethod(req.Method) {
		return t.base.RoundTrip(req)
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// Body cannot be replayed.
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	var last *http.Response
	attempt := 0

	op := func() error {
		if last != nil {
			drainAndClose(last.Body)
			last = nil
		}
		r, err := rewind(req, attempt)
		if err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		last = resp
		if t.policy.retryableStatus(resp.StatusCode) {
			return &retryableStatusError{code: resp.StatusCode}
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if t.w != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: %s %s: %v, retrying in %s\n", req.Method, req.URL.Path, err, wait)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(t.policy.newBackOff(), ctx), notify)
	var rse *retryableStatusError
	if err == nil || errors.As(err, &rse) {
		if last != nil {
			// Out of retries: hand the final response to the caller as-is.
			return last, nil
		}
	}
	if last != nil {
		drainAndClose(last.Body)
	}
	if err == nil {
		err = errors.New("retry: no response")
	}
	return nil, err
}

func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("retry: rewind body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
