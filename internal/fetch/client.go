package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryableStatus is the set of HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Result is the outcome of a fetch. Expected network failures are values,
// not errors: Failure says what went wrong and Err holds the cause.
type Result struct {
	// Body is the response body on success.
	Body string

	// StatusCode is the last HTTP status seen, 0 if no response arrived.
	StatusCode int

	// Retries is the number of retries performed (attempts - 1).
	Retries int

	// Failure is FailureNone on success.
	Failure FailureKind

	// Err is the underlying cause of a failure.
	Err error

	// FromCache is true when the body came from the HTML cache.
	FromCache bool
}

// OK reports whether the fetch produced a body.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

// Cause returns an error matching both Failure.Err() and Err, or nil.
func (r Result) Cause() error {
	if r.OK() {
		return nil
	}
	if r.Err == nil {
		return r.Failure.Err()
	}
	return fmt.Errorf("%w: %w", r.Failure.Err(), r.Err)
}

// Client is an HTTP client that spaces requests through a RateLimiter and
// retries transient failures with exponential backoff.
type Client struct {
	// httpClient performs the actual requests. Its Timeout bounds one attempt.
	httpClient *http.Client

	// limiter is consulted before every attempt, retries included.
	limiter *RateLimiter

	// maxRetries is the number of retries after the first attempt.
	maxRetries int

	// backoffFactor is the delay before the first retry; each later
	// retry doubles it.
	backoffFactor time.Duration

	// maxBackoff caps a single backoff delay.
	maxBackoff time.Duration

	// userAgent is sent with every request.
	userAgent string

	// maxBodySize limits how much of a response body is read.
	maxBodySize int64

	logger *slog.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	requests atomic.Int64
	retries  atomic.Int64
	failures atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit sets the minimum spacing between requests.
func WithRateLimit(d time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = NewRateLimiter(d)
	}
}

// WithRateLimiter shares an existing limiter, for example between the
// crawler client and an enrichment client hitting the same host.
func WithRateLimiter(l *RateLimiter) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffFactor sets the first retry delay.
func WithBackoffFactor(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.backoffFactor = d
		}
	}
}

// WithMaxBackoff caps a single backoff delay.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client with the crawler defaults: 1s spacing,
// 30s per attempt, 3 retries seeded at 500ms.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		limiter:       NewRateLimiter(time.Second),
		maxRetries:    3,
		backoffFactor: 500 * time.Millisecond,
		maxBackoff:    2 * time.Minute,
		userAgent:     defaultUserAgent,
		maxBodySize:   10 * 1024 * 1024, // 10MB
		sleep:         sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Stats returns the request counters accumulated so far.
func (c *Client) Stats() (requests, retries, failures int) {
	return int(c.requests.Load()), int(c.retries.Load()), int(c.failures.Load())
}

// Get fetches rawURL. headers are added on top of the browser header set.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) Result {
	return c.do(ctx, http.MethodGet, rawURL, nil, headers)
}

// Post sends body to rawURL. Retries resend the same body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, headers map[string]string) Result {
	return c.do(ctx, http.MethodPost, rawURL, body, headers)
}

// GetJSON fetches rawURL and decodes the body into v. A decode failure is
// reported as FailureUnexpected.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, v any) Result {
	merged := map[string]string{"Accept": "application/json"}
	for k, val := range headers {
		merged[k] = val
	}
	res := c.Get(ctx, rawURL, merged)
	if !res.OK() {
		return res
	}
	if err := json.Unmarshal([]byte(res.Body), v); err != nil {
		res.Failure = FailureUnexpected
		res.Err = fmt.Errorf("decode JSON: %w", err)
	}
	return res
}

// newBackOff builds the retry schedule: factor, 2*factor, 4*factor...
// without jitter, stopping after maxRetries delays.
func (c *Client) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.backoffFactor
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = c.maxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	policy := backoff.WithMaxRetries(exp, uint64(c.maxRetries)) //nolint:gosec // maxRetries is non-negative
	policy.Reset()
	return policy
}

// do runs the attempt loop.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) Result {
	policy := c.newBackOff()
	retries := 0

	for {
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return c.finish(Result{Failure: FailureCanceled, Err: err, Retries: retries}, rawURL)
		}

		c.requests.Add(1)
		res, retryable, retryAfter := c.attempt(ctx, method, rawURL, body, headers)
		res.Retries = retries
		if res.OK() || !retryable {
			return c.finish(res, rawURL)
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return c.finish(res, rawURL)
		}
		if retryAfter > delay {
			delay = retryAfter
		}

		c.logger.Debug("retrying request",
			"url", rawURL,
			"failure", res.Failure.String(),
			"status", res.StatusCode,
			"retry", retries+1,
			"delay", delay,
		)

		if err := c.sleep(ctx, delay); err != nil {
			res.Failure = FailureCanceled
			res.Err = err
			return c.finish(res, rawURL)
		}
		retries++
		c.retries.Add(1)
	}
}

// finish records and logs a terminal result.
func (c *Client) finish(res Result, rawURL string) Result {
	if res.OK() {
		c.logger.Debug("fetched", "url", rawURL, "status", res.StatusCode, "retries", res.Retries)
		return res
	}
	c.failures.Add(1)
	c.logger.Warn("fetch failed",
		"url", rawURL,
		"failure", res.Failure.String(),
		"status", res.StatusCode,
		"retries", res.Retries,
		"error", res.Err,
	)
	return res
}

// attempt performs one request. It reports whether the failure, if any,
// is worth retrying and how long the server asked us to wait.
func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (Result, bool, time.Duration) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Result{Failure: FailureUnexpected, Err: err}, false, 0
	}
	applyBrowserHeaders(req, c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(ctx, err)
		return Result{Failure: kind, Err: err}, kind == FailureTimeout || kind == FailureConnection, 0
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := Result{
			StatusCode: resp.StatusCode,
			Failure:    FailureHTTP,
			Err:        fmt.Errorf("status %d", resp.StatusCode),
		}
		return res, retryableStatus[resp.StatusCode], parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	if readErr != nil {
		kind := classifyTransportError(ctx, readErr)
		return Result{StatusCode: resp.StatusCode, Failure: kind, Err: readErr}, kind == FailureTimeout || kind == FailureConnection, 0
	}

	return Result{Body: string(data), StatusCode: resp.StatusCode}, false, 0
}

// classifyTransportError maps a client error onto the failure taxonomy.
// A done caller context always wins over whatever the transport reported.
func classifyTransportError(ctx context.Context, err error) FailureKind {
	if ctx.Err() != nil {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return FailureConnection
	}
	return FailureUnexpected
}

// parseRetryAfter reads a Retry-After header given in seconds.
// HTTP-date values are ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
