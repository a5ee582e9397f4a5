// Package rest implements gateway.Gateway and gateway.Authenticator
// against a hosted backend that exposes PostgREST tables under
// /rest/v1, GoTrue auth under /auth/v1 and object storage under
// /storage/v1.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/metrics"
	"github.com/nhle/classroom/internal/model"
)

const breakerName = "backend"

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	Timeout        time.Duration
	RequestsPerSec float64

	// BreakerFailures is how many consecutive failures open the circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration

	HTTPClient *http.Client
}

// Client is a thin HTTP client for the hosted backend. It adds the apikey
// and bearer headers, paces requests and fails fast while the backend is
// down. It never retries and never caches.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[*response]

	mu      sync.RWMutex
	session *model.Session

	now func() time.Time
}

var (
	_ gateway.Gateway       = (*Client)(nil)
	_ gateway.Authenticator = (*Client)(nil)
)

// New creates a Client for the project at baseURL.
func New(baseURL, anonKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	burst := int(opts.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst),
		cb:         newBreaker(opts.BreakerFailures, opts.BreakerCooldown),
		now:        time.Now,
	}
}

func newBreaker(failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[*response] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors mean the backend is up and answering.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *gateway.APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return gateway.IsAuthError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// SetSession makes s the identity for subsequent requests. Nil reverts to
// the anon key.
func (c *Client) SetSession(s *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Session returns the current session, if any.
func (c *Client) Session() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) Mode() gateway.Mode { return gateway.ModeRemote }

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session != nil && c.session.AccessToken != "" {
		return c.session.AccessToken
	}
	return c.anonKey
}

// request describes one call. Body is JSON-encoded unless Raw is set.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
	raw    []byte
	bearer string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends req through the limiter and the circuit breaker and decodes
// a JSON response into result when result is non-nil.
func (c *Client) do(ctx context.Context, req request, result any) (*response, error) {
	start := time.Now()
	resp, err := c.send(ctx, req)
	metrics.RecordGatewayCall(req.op, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("op", req.op).Msg("backend call failed")
		return nil, err
	}

	if result == nil || resp.status == http.StatusNoContent || len(resp.body) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(resp.body, result); err != nil {
		return nil, fmt.Errorf("unmarshaling response from %s %s: %w", req.method, req.path, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	resp, err := c.cb.Execute(func() (*response, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return nil, fmt.Errorf("backend unavailable: %w", err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	contentType := ""
	switch {
	case req.raw != nil:
		bodyReader = bytes.NewReader(req.raw)
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	bearer := req.bearer
	if bearer == "" {
		bearer = c.bearer()
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w", req.method, req.path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, decodeError(req, httpResp.StatusCode, body)
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: body}, nil
}

// errorBody covers both PostgREST ({code, message, details, hint}) and
// GoTrue ({error, error_description} or {code, error_code, msg}) shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Message, b.Msg, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	return strings.Trim(string(b.Code), `"`)
}

func decodeError(req request, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	msg := eb.text()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	if isAuthFailure(req.path, status) {
		return &gateway.AuthError{Message: msg}
	}

	return &gateway.APIError{
		Status:  status,
		Method:  req.method,
		Path:    req.path,
		Code:    eb.code(),
		Message: msg,
		Details: eb.Details,
		Hint:    eb.Hint,
	}
}

func isAuthFailure(path string, status int) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if !strings.HasPrefix(path, authPrefix) {
		return false
	}
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
