// Package remote answers formula remote functions through the brewery
// HTTP API.
//
// Every call is a POST to {base}/api/formulas/execute:
//
//	{"calls": [{"function": "est_ibu", "args": {"recipe_id": 12}}]}
//
// answered with one result per call:
//
//	{"results": [{"status": "ok", "value": 38.5}]}
//
// Calls issued within a short window are coalesced into one request, and a
// circuit breaker stops hammering the endpoint while it is failing.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/rockcut/gridformula/pkg/observability"
)

// ExecutePath is the endpoint path relative to the base URL.
const ExecutePath = "/api/formulas/execute"

// Call is one server-side function invocation.
type Call struct {
	Function string                 `json:"function"`
	Args     map[string]interface{} `json:"args"`
}

// Result is the server's answer to one Call.
type Result struct {
	Status  string      `json:"status"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Err returns the error carried by an "error" result.
func (r Result) Err() error {
	if r.Status == "ok" {
		return nil
	}
	if r.Message == "" {
		return fmt.Errorf("remote: status %q", r.Status)
	}
	return errors.New(r.Message)
}

type executeRequest struct {
	Calls []Call `json:"calls"`
}

type executeResponse struct {
	Results []Result `json:"results"`
}

// Client talks to the formula execution endpoint. It is safe for
// concurrent use.
type Client struct {
	endpoint    string
	http        *http.Client
	timeout     time.Duration
	batchWindow time.Duration
	maxBatch    int
	breaker     *gobreaker.CircuitBreaker
	settings    gobreaker.Settings
	log         *logrus.Logger
	tracer      *observability.Tracer
	metrics     *observability.Metrics

	tokenMu sync.RWMutex
	token   string

	mu    sync.Mutex
	queue []*pending
	timer *time.Timer
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBatching coalesces calls issued within window into one request of at
// most max calls. A zero window sends every call on its own.
func WithBatching(window time.Duration, max int) Option {
	return func(c *Client) {
		c.batchWindow = window
		c.maxBatch = max
	}
}

// WithBreaker overrides the circuit breaker settings. Name and
// IsSuccessful are filled in when empty.
func WithBreaker(s gobreaker.Settings) Option {
	return func(c *Client) { c.settings = s }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTracer sets the tracer used for batch spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMetrics sets the metrics sink used for batch sizes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// DefaultBreakerSettings trips after at least 3 requests with 60% failures
// and probes again after 3 seconds.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "formula-execute",
		MaxRequests: 100,
		Interval:    5 * time.Second,
		Timeout:     3 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}

	c := &Client{
		endpoint: baseURL + ExecutePath,
		timeout:  10 * time.Second,
		maxBatch: 50,
		settings: DefaultBreakerSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.tracer == nil {
		c.tracer = observability.NewNoopTracer()
	}
	if c.metrics == nil {
		c.metrics = observability.NewNoopMetrics()
	}
	if c.maxBatch <= 0 {
		c.maxBatch = 1
	}
	if c.settings.Name == "" {
		c.settings.Name = "formula-execute"
	}
	if c.settings.IsSuccessful == nil {
		c.settings.IsSuccessful = breakerSuccess
	}
	if c.settings.OnStateChange == nil {
		c.settings.OnStateChange = func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("remote circuit breaker state changed")
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(c.settings)
	return c, nil
}

// breakerSuccess counts only transport failures and server errors against
// the endpoint. Rejected input and expired tokens do not trip it.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return false
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// BreakerState returns the state of the circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Execute sends calls in one request and returns one result per call.
func (c *Client) Execute(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	batchID := uuid.NewString()
	ctx, span := c.tracer.StartBatch(ctx, batchID, len(calls))
	defer span.End()
	c.metrics.RecordBatchSize(ctx, len(calls))

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, batchID, calls)
	})
	if err != nil {
		c.tracer.RecordError(span, err)
		c.log.WithFields(logrus.Fields{
			"batch_id": batchID,
			"calls":    len(calls),
			"error":    err,
		}).Warn("remote formula batch failed")
		return nil, err
	}
	results := out.([]Result)
	if len(results) != len(calls) {
		err := fmt.Errorf("%w: sent %d, got %d", ErrBatchMismatch, len(calls), len(results))
		c.tracer.RecordError(span, err)
		return nil, err
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, batchID string, calls []Call) ([]Result, error) {
	body, err := json.Marshal(executeRequest{Calls: calls})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", batchID)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"calls":    len(calls),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("remote formula batch")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.SetToken("")
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, ParseAPIError(resp.StatusCode, data)
	}

	var decoded executeResponse
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	return decoded.Results, nil
}

// Call runs one server-side function and returns its value. With batching
// enabled the call may share a request with concurrent calls.
func (c *Client) Call(ctx context.Context, function string, args map[string]interface{}) (interface{}, error) {
	call := Call{Function: function, Args: args}
	if c.batchWindow <= 0 {
		results, err := c.Execute(ctx, []Call{call})
		if err != nil {
			return nil, err
		}
		return results[0].Value, results[0].Err()
	}

	p := c.enqueue(call)
	select {
	case o := <-p.done:
		return o.value, o.err
	case <-ctx.Done():
		// The batch still completes for the other callers.
		return nil, ctx.Err()
	}
}
