package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseSize = 8 << 20

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RateLimit       float64
	RateBurst       int
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// HTTPClient overrides the default otelhttp-instrumented client.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the storefront REST API. A Client is shared by all
// sessions; WithAuth derives a per-session view that carries the token.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
	log     *zap.Logger
	metrics *metrics.Metrics

	token          string
	onUnauthorized func()
}

type response struct {
	status int
	body   []byte
}

func New(opts Options) (*Client, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", opts.BaseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		metrics: opts.Metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "storefront-api",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors are the caller's problem, not the API's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c, nil
}

// WithAuth returns a view of c that sends token in the Token header and calls
// onUnauthorized when the API answers 401. Transport, limiter and breaker are
// shared with c.
func (c *Client) WithAuth(token string, onUnauthorized func()) *Client {
	clone := *c
	clone.token = token
	clone.onUnauthorized = onUnauthorized
	return &clone
}

func (c *Client) Token() string {
	return c.token
}

type envelope struct {
	Status  any             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, endpoint, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, http.MethodPost, path, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body []byte, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, path, body, contentType)
	})
	c.metrics.ObserveAPIRequest(endpoint, statusLabel(resp, err), time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.log.Info("api rejected session token", zap.String("endpoint", endpoint))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return err
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, contentType string) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Token", c.token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	resp := &response{status: httpResp.StatusCode, body: data}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, newAPIError(httpResp.StatusCode, data)
	}
	return resp, nil
}

func statusLabel(resp *response, err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("%dxx", apiErr.Status/100)
	case err != nil:
		return "error"
	case resp != nil:
		return fmt.Sprintf("%dxx", resp.status/100)
	}
	return "error"
}

// unwrapData descends through nested "data" members, up to depth levels, and
// returns the innermost non-null one.
func unwrapData(raw json.RawMessage, depth int) json.RawMessage {
	current := raw
	for i := 0; i < depth; i++ {
		var obj struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(current, &obj); err != nil {
			break
		}
		inner := bytes.TrimSpace(obj.Data)
		if len(inner) == 0 || bytes.Equal(inner, []byte("null")) {
			break
		}
		current = inner
	}
	return current
}

// firstOrSelf decodes either a JSON array (taking element 0) or a single
// object into out. It reports false when there is nothing to decode.
func firstOrSelf(raw json.RawMessage, out any) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return false, err
		}
		if len(list) == 0 {
			return false, nil
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}
