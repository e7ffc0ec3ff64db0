// Package client implements the outbound half of the A2A protocol:
// JSON-RPC calls to a remote agent, card discovery with a TTL cache,
// and health probes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
	"github.com/thehivegroup-ai/agentmesh/pkg/httpclient"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 5 * time.Minute
	agentCardPath   = "/.well-known/agent-card.json"
)

// Client talks A2A to one remote agent.
type Client struct {
	baseURL   string
	http      *httpclient.Client
	transport *http.Transport
	timeout   time.Duration
	cacheTTL  time.Duration
	logger    *slog.Logger

	requestID atomic.Int64

	cacheMu    sync.Mutex
	cachedCard *a2a.AgentCard
	cachedAt   time.Time
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout    time.Duration
	cacheTTL   time.Duration
	maxRetries int
	retryDelay time.Duration
	maxSockets int
	keepAlive  bool
	logger     *slog.Logger
	httpClient *http.Client
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithCardCacheTTL sets how long a fetched agent card stays fresh.
func WithCardCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// WithRetry sets the retry budget and first backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryDelay = baseDelay
	}
}

// WithPool bounds the connection pool toward this agent.
func WithPool(maxSockets int, keepAlive bool) Option {
	return func(o *options) {
		o.maxSockets = maxSockets
		o.keepAlive = keepAlive
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the underlying http.Client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New creates a client for the agent at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := &options{
		timeout:    defaultTimeout,
		cacheTTL:   defaultCacheTTL,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		maxSockets: 10,
		keepAlive:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var transport *http.Transport
	httpClient := o.httpClient
	if httpClient == nil {
		transport = httpclient.PooledTransport(o.maxSockets, o.keepAlive)
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: httpclient.New(
			httpclient.WithHTTPClient(httpClient),
			httpclient.WithMaxRetries(o.maxRetries),
			httpclient.WithBaseDelay(o.retryDelay),
		),
		transport: transport,
		timeout:   o.timeout,
		cacheTTL:  o.cacheTTL,
		logger:    o.logger,
	}
}

// BaseURL returns the agent's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage submits a message to the remote agent.
func (c *Client) SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.MessageSendResult, error) {
	var result a2a.MessageSendResult
	if err := c.call(ctx, a2a.MethodMessageSend, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var result a2a.TaskResult
	if err := c.call(ctx, a2a.MethodTasksGet, a2a.TaskQueryParams{TaskID: taskID}, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// CancelTask requests cancellation of a task.
func (c *Client) CancelTask(ctx context.Context, taskID, reason string) (*a2a.Task, error) {
	var result a2a.TaskResult
	if err := c.call(ctx, a2a.MethodTasksCancel, a2a.TaskCancelParams{TaskID: taskID, Reason: reason}, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// ListTasks lists the remote agent's tasks, optionally by context.
func (c *Client) ListTasks(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	var result a2a.TaskListResult
	if err := c.call(ctx, a2a.MethodTasksList, a2a.TaskListParams{ContextID: contextID}, &result); err != nil {
		return nil, err
	}
	return result.Tasks, nil
}

// GetAgentCard fetches the remote agent card, serving a cached copy
// while it is fresh. forceRefresh bypasses the cache.
func (c *Client) GetAgentCard(ctx context.Context, forceRefresh bool) (*a2a.AgentCard, error) {
	c.cacheMu.Lock()
	if !forceRefresh && c.cachedCard != nil && time.Since(c.cachedAt) < c.cacheTTL {
		card := *c.cachedCard
		c.cacheMu.Unlock()
		return &card, nil
	}
	c.cacheMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+agentCardPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent card request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card from %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card request returned HTTP %d", resp.StatusCode)
	}

	var card a2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}

	c.cacheMu.Lock()
	c.cachedCard = &card
	c.cachedAt = time.Now()
	c.cacheMu.Unlock()

	return &card, nil
}

// HealthCheck probes GET /health.
func (c *Client) HealthCheck(ctx context.Context) (*a2a.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed for %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}

	var health a2a.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// ClearCache drops the cached agent card.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	c.cachedCard = nil
	c.cachedAt = time.Time{}
	c.cacheMu.Unlock()
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.ClearCache()
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// call performs one JSON-RPC round trip. Transport failures retry inside
// httpclient; RPC errors come back as *a2a.RPCError and never retry.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	id := c.requestID.Add(1)

	rpcReq, err := a2a.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Callers that need longer deadlines (polling loops) pass their own
	// context deadline; the default applies otherwise.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s to %s failed: %w", method, c.baseURL, err)
	}
	defer resp.Body.Close()

	var rpcResp a2a.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	// The response id must echo ours; a mismatch means a broken peer.
	if got, ok := responseID(rpcResp.ID); !ok || got != id {
		return fmt.Errorf("response id mismatch: sent %d, got %v", id, rpcResp.ID)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// responseID normalizes the JSON-decoded id back to int64.
func responseID(id any) (int64, bool) {
	switch v := id.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
