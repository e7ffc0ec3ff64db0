// Package httpclient provides a retrying HTTP client with exponential
// backoff and a pooled transport, shared by the A2A client and the LLM
// provider.
package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// Client wraps http.Client with transport-level retries.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

// WithBaseDelay sets the first backoff delay; attempt n waits base·2^n.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// withSleep replaces the backoff sleeper, for tests.
func withSleep(sleep func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// PooledTransport builds a keep-alive transport bounded per host.
func PooledTransport(maxSockets int, keepAlive bool) *http.Transport {
	transport := &http.Transport{
		MaxIdleConns:        maxSockets * 4,
		MaxIdleConnsPerHost: maxSockets,
		MaxConnsPerHost:     maxSockets,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   !keepAlive,
	}
	return transport
}

// New creates a retrying client.
func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Do performs the request, retrying retryable failures with exponential
// backoff. The request must carry GetBody for retries to replay it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
				}
				req.Body = body
			}
			c.sleep(c.backoff(attempt - 1))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) || req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, &RetryableError{
		Message: fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		Err:     lastErr,
	}
}

// backoff returns base·2^attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay * (1 << uint(attempt))
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
