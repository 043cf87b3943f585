// Package rest provides the resilient HTTP client used for all outbound
// platform calls: fixed-interval dispatch throttling, retry with backoff
// across transient failure modes, and per-attempt timeouts.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/underscoreTells/streaming-enhancement/internal/errors"
	"github.com/underscoreTells/streaming-enhancement/internal/metrics"
	"github.com/underscoreTells/streaming-enhancement/internal/platform/version"
)

const (
	defaultDispatchInterval = 1000 * time.Millisecond
	defaultTimeout          = 30 * time.Second
	defaultMaxAttempts      = 4
	defaultBaseBackoff      = 1000 * time.Millisecond
	defaultMaxBackoff       = 8000 * time.Millisecond
	defaultRateLimitDelay   = 5000 * time.Millisecond
)

// Options configures a Client. Zero values fall back to production defaults;
// tests shrink the delays the same way the retry policies in this codebase
// always have.
type Options struct {
	// Platform labels logs and metrics (e.g. "twitch").
	Platform string
	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration
	// MaxAttempts is the total attempt budget per logical request.
	MaxAttempts int
	// BaseBackoff is the exponential backoff unit for 5xx and network errors.
	BaseBackoff time.Duration
	// MaxBackoff caps every backoff delay.
	MaxBackoff time.Duration
	// RateLimitDelay is the flat wait after an HTTP 429.
	RateLimitDelay time.Duration
	// DispatchInterval is the minimum spacing between request start times.
	DispatchInterval time.Duration

	// Headers are set on every request, e.g. a platform's Client-Id.
	Headers map[string]string
	// BearerSource, when set, supplies the Authorization bearer token for
	// each attempt. Resolving it per attempt means a token refreshed between
	// retries is picked up automatically.
	BearerSource func(ctx context.Context) (string, error)

	Clock      clockwork.Clock
	HTTPClient *http.Client
}

// Client issues JSON requests against one API base URL. It has no OAuth
// awareness; token-exchange calls go through it like any other request.
type Client struct {
	baseURL  string
	platform string

	timeout        time.Duration
	maxAttempts    int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	rateLimitDelay time.Duration

	headers      map[string]string
	bearerSource func(ctx context.Context) (string, error)

	clock      clockwork.Clock
	httpClient *http.Client
	throttle   *throttle
}

func NewClient(baseURL string, opts Options) *Client {
	if opts.Platform == "" {
		opts.Platform = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimitDelay == 0 {
		opts.RateLimitDelay = defaultRateLimitDelay
	}
	if opts.DispatchInterval == 0 {
		opts.DispatchInterval = defaultDispatchInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:        baseURL,
		platform:       opts.Platform,
		timeout:        opts.Timeout,
		maxAttempts:    opts.MaxAttempts,
		baseBackoff:    opts.BaseBackoff,
		maxBackoff:     opts.MaxBackoff,
		rateLimitDelay: opts.RateLimitDelay,
		headers:        opts.Headers,
		bearerSource:   opts.BearerSource,
		clock:          opts.Clock,
		httpClient:     opts.HTTPClient,
		throttle:       newThrottle(opts.Clock, opts.DispatchInterval),
	}
}

// Get issues a GET request. An empty or nil params map leaves the URL untouched.
func (c *Client) Get(ctx context.Context, path string, params map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil, false)
}

// Post issues a POST request. A nil body sends no request body at all.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, body != nil)
}

// Put issues a PUT request. A nil body sends no request body at all.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, nil, body, body != nil)
}

// Delete issues a DELETE request. DELETE never carries a body.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, false)
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]any, body any, hasBody bool) (json.RawMessage, error) {
	start := c.clock.Now()
	result, err := c.doAttempts(ctx, method, path, params, body, hasBody)
	metrics.RestRequestDuration.WithLabelValues(c.platform, method).Observe(c.clock.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	metrics.RestRequestsTotal.WithLabelValues(c.platform, method, outcome).Inc()

	return result, err
}

func (c *Client) doAttempts(ctx context.Context, method, path string, params map[string]any, body any, hasBody bool) (json.RawMessage, error) {
	requestURL, err := c.buildURL(path, params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if hasBody {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if waited, err := c.throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request cancelled while throttled: %w", err)
		} else if waited > 0 {
			metrics.RestThrottleWaits.WithLabelValues(c.platform).Inc()
		}

		result, retry, err := c.attempt(ctx, method, requestURL, payload, hasBody)
		if err == nil {
			return result, nil
		}
		if !retry.shouldRetry {
			return nil, err
		}
		lastErr = err

		// The timeout cancels only the attempt; the parent context ending
		// means the caller has gone away.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s cancelled: %w", method, path, ctx.Err())
		}

		if retry.reason == retryNetworkError && attempt == c.maxAttempts {
			return nil, err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.retryDelay(retry.reason, attempt)
		metrics.RestRetriesTotal.WithLabelValues(c.platform, string(retry.reason)).Inc()
		slog.Debug("Retrying request",
			"platform", c.platform,
			"method", method,
			"path", path,
			"attempt", attempt,
			"reason", retry.reason,
			"backoff", delay,
			"error", err,
		)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("request cancelled during backoff: %w", err)
		}
	}

	return nil, errors.RetriesExhausted(
		fmt.Sprintf("%s %s failed after %d attempts", method, path, c.maxAttempts), lastErr)
}

type retryReason string

const (
	retryRateLimited  retryReason = "rate_limited"
	retryServerError  retryReason = "server_error"
	retryNetworkError retryReason = "network_error"
)

type retryDecision struct {
	shouldRetry bool
	reason      retryReason
}

// attempt performs one HTTP round trip bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, method, requestURL string, payload []byte, hasBody bool) (json.RawMessage, retryDecision, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if hasBody {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, requestURL, reader)
	if err != nil {
		return nil, retryDecision{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.bearerSource != nil {
		token, err := c.bearerSource(attemptCtx)
		if err != nil {
			return nil, retryDecision{}, fmt.Errorf("failed to resolve bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retryDecision{shouldRetry: true, reason: retryNetworkError},
			fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryDecision{shouldRetry: true, reason: retryNetworkError},
			fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryDecision{shouldRetry: true, reason: retryRateLimited},
			errors.RequestFailed(resp.StatusCode, errorMessage(resp, respBody))

	case resp.StatusCode >= 500:
		return nil, retryDecision{shouldRetry: true, reason: retryServerError},
			errors.RequestFailed(resp.StatusCode, errorMessage(resp, respBody))

	case resp.StatusCode >= 400:
		return nil, retryDecision{}, errors.RequestFailed(resp.StatusCode, errorMessage(resp, respBody))
	}

	if len(respBody) == 0 {
		return nil, retryDecision{}, nil
	}
	if !json.Valid(respBody) {
		return nil, retryDecision{}, fmt.Errorf("invalid JSON in %d response from %s", resp.StatusCode, requestURL)
	}
	return json.RawMessage(respBody), retryDecision{}, nil
}

// retryDelay computes the wait before the next attempt. Server errors back
// off at 2^attempt, network errors one step earlier at 2^(attempt-1), and
// 429 waits a flat delay outside the exponential schedule.
func (c *Client) retryDelay(reason retryReason, attempt int) time.Duration {
	switch reason {
	case retryRateLimited:
		return c.rateLimitDelay
	case retryNetworkError:
		return minDuration(c.baseBackoff<<(attempt-1), c.maxBackoff)
	default:
		return minDuration(c.baseBackoff<<attempt, c.maxBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-c.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) buildURL(path string, params map[string]any) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", c.baseURL+path, err)
	}

	if len(params) > 0 {
		query := u.Query()
		for key, value := range params {
			query.Set(key, fmt.Sprintf("%v", value))
		}
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

// errorMessage extracts a provider error message from a JSON error body,
// falling back to the HTTP status text. An unparseable body is treated as
// absent, not as a failure of its own.
func errorMessage(resp *http.Response, body []byte) string {
	var parsed struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			return parsed.Message
		case parsed.ErrorDescription != "":
			return parsed.ErrorDescription
		case parsed.Error != "":
			return parsed.Error
		}
	}
	return http.StatusText(resp.StatusCode)
}

func outcomeLabel(err error) string {
	switch {
	case errors.IsType(err, errors.TypeRetriesExhausted):
		return "retries_exhausted"
	case errors.IsType(err, errors.TypeRequestFailed):
		return "request_failed"
	default:
		return "network_error"
	}
}
