package slate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Response is the decoded outcome of one REST call: status code, headers,
// and the fully-read body. The body is always drained and closed by the
// Connection, so a Response never holds a network resource.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("slate: decoding response body: %w", err)
	}

	return nil
}

// requestOptions collects per-call adjustments.
type requestOptions struct {
	query   url.Values
	headers http.Header
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithQuery appends one query-string parameter.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}

		o.query.Add(key, value)
	}
}

// WithHeader sets one extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}

		o.headers.Set(key, value)
	}
}

// Request issues one REST call against the server's /api root. The path is
// relative ("projects/Film/operations"). A non-nil body is JSON-encoded.
//
// Transient conditions — network errors and retryable HTTP statuses (408,
// 429, 5xx) — are retried with exponential backoff and jitter up to the
// configured ceiling, honoring Retry-After. 4xx responses are never retried
// and surface as *ServerError. When retries exhaust, the error matches
// ErrConnectionFailed via errors.Is.
func (c *Connection) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, method, c.restURL+"/"+strings.TrimPrefix(path, "/"), body, opts...)
}

// Get issues a GET request against the REST root.
func (c *Connection) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST request with a JSON body against the REST root.
func (c *Connection) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT request with a JSON body against the REST root.
func (c *Connection) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH request with a JSON body against the REST root.
func (c *Connection) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a DELETE request against the REST root.
func (c *Connection) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts...)
}

// do runs the retry loop for one absolute URL. The body is marshaled once
// and replayed from memory on every attempt, so retried POSTs are safe.
func (c *Connection) do(ctx context.Context, method, absURL string, body any, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if len(ro.query) > 0 {
		absURL += "?" + ro.query.Encode()
	}

	var payload []byte

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("slate: encoding request body: %w", err)
		}

		payload = encoded
	}

	var attempt int
	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("slate: request canceled: %w", err)
			}
		}

		resp, err := c.doOnce(ctx, method, absURL, payload, ro.headers)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("slate: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("url", absURL),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("slate: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("slate: %s %s failed after %d attempts: %w: %w",
				method, absURL, attempt+1, ErrConnectionFailed,
				fmt.Errorf("%w: %w", ErrServerUnreachable, err))
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			// A truncated body is as transient as a failed dial.
			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after truncated response",
					slog.String("method", method),
					slog.String("url", absURL),
					slog.Int("attempt", attempt+1),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("slate: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("slate: %s %s failed after %d attempts: %w: %w",
				method, absURL, attempt+1, ErrConnectionFailed, readErr)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("url", absURL),
				slog.Int("status", resp.StatusCode),
			)

			return &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       data,
			}, nil
		}

		if isRetryable(resp.StatusCode) {
			if attempt < c.maxRetries {
				backoff := c.retryBackoff(resp, attempt)
				c.logger.Warn("retrying after HTTP error",
					slog.String("method", method),
					slog.String("url", absURL),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
				)

				if err := c.sleepFunc(ctx, backoff); err != nil {
					return nil, fmt.Errorf("slate: request canceled: %w", err)
				}

				attempt++

				continue
			}

			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("url", absURL),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)

			return nil, &ServerError{
				StatusCode: resp.StatusCode,
				Detail:     extractDetail(data),
				Err:        ErrConnectionFailed,
			}
		}

		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(data),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Connection) doOnce(ctx context.Context, method, absURL string, payload []byte, extra http.Header) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, absURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if c.token != "" {
		// User tokens are read from Authorization, service API keys from
		// x-api-key. Sending both lets the server pick.
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("x-api-key", c.token)
	}

	if c.siteID != "" {
		req.Header.Set(headerSiteID, c.siteID)
	}

	if c.clientVersion != "" {
		req.Header.Set(headerClientVersion, c.clientVersion)
	}

	if c.sender != "" {
		req.Header.Set(headerSender, c.sender)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, values := range extra {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Connection) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Connection) calcBackoff(attempt int) time.Duration {
	backoff := float64(c.baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(c.maxBackoff) {
		backoff = float64(c.maxBackoff)
	}

	// Apply ±25% jitter.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Connection.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
