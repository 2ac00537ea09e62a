package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the REST endpoint of github.com.
const DefaultAPIURL = "https://api.github.com"

// DefaultTimeout bounds a single API request, retries included.
const DefaultTimeout = 30 * time.Second

type Client struct {
	Client *github.Client
	HTTP   *http.Client

	budget *RequestBudget
}

type options struct {
	verbose bool
	// writer controls where verbose HTTP logs are written (typically stderr) so
	// structured output on stdout (e.g. NDJSON) stays clean and tests can capture logs.
	writer  io.Writer
	baseURL string
	timeout time.Duration
	retry   *RetryPolicy
	app     *AppCredentials
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithBaseURL points the client at a GitHub Enterprise Server REST endpoint,
// e.g. https://ghe.example.com/api/v3.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithRetry overrides the default retry policy. A nil policy disables retries.
func WithRetry(p *RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// WithApp authenticates as a GitHub App installation instead of a token.
func WithApp(creds *AppCredentials) Option {
	return func(o *options) {
		o.app = creds
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency) when verbose logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] github api: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] github api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	def := DefaultRetryPolicy()
	o := &options{timeout: DefaultTimeout, retry: &def}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}

	base, err := parseBaseURL(o.baseURL)
	if err != nil {
		return nil, err
	}

	// Innermost first: every attempt is logged, retries wrap attempts, auth
	// wraps the whole retried exchange.
	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	if o.retry != nil {
		transport = &retryRoundTripper{base: transport, policy: *o.retry, w: o.writer}
	}
	switch {
	case o.app != nil:
		transport, err = newAppTransport(transport, o.app, base)
		if err != nil {
			return nil, fmt.Errorf("github client: %w", err)
		}
	case token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	// Always provide an http.Client so verbose logging works even without a token.
	tc := &http.Client{Transport: transport, Timeout: o.timeout}

	gc := github.NewClient(tc)
	if base != nil {
		gc.BaseURL = base
		gc.UploadURL = base
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
		budget: NewRequestBudget(),
	}, nil
}

// Budget exposes the rate-limit budget shared by all calls of this client.
func (c *Client) Budget() *RequestBudget {
	return c.budget
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.TrimSuffix(raw, "/") == DefaultAPIURL {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("github client: invalid api url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("github client: invalid api url %q: scheme must be http or https", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
