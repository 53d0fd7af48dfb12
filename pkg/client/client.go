// Package client provides the HTTP transport to the spreadsheet API with
// retries, quota gating and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/koperasi-ledger/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_api_requests_total",
		Help: "Total spreadsheet API requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_api_request_duration_seconds",
		Help:    "Spreadsheet API request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_api_errors_total",
		Help: "Total spreadsheet API errors by class",
	}, []string{"class"})
)

// QuotaGate decides whether a request may be sent and learns from response
// headers. *ratelimit.Tracker implements it.
type QuotaGate interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Client is the spreadsheet API transport. It implements cache.Transport.
type Client struct {
	httpClient *http.Client
	quota      QuotaGate
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request.
	UserAgent string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry applies to GET requests only. Writes are sent once.
	Retry RetryConfig

	// Quota is optional. Nil disables quota gating.
	Quota QuotaGate
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "api-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		quota:  cfg.Quota,
		config: cfg,
		logger: logger,
	}, nil
}

// Do performs a request and returns the response body. Any non-2xx status is
// returned as *APIError regardless of the body.
func (c *Client) Do(ctx context.Context, req cache.Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	if c.quota != nil {
		allowed, err := c.quota.ShouldAllowRequest(ctx)
		if err != nil {
			// Quota state is advisory; an unreachable store must not take reads down.
			c.logger.Warn().Err(err).Msg("Quota check failed, allowing request")
		} else if !allowed {
			c.logger.Warn().Str("url", req.URL).Msg("Request blocked by quota gate")
			requestsTotal.WithLabelValues(method, "quota_blocked").Inc()
			return nil, ErrQuotaExhausted
		}
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	retry := NoRetry()
	if method == http.MethodGet {
		retry = c.config.Retry
	}

	c.logger.Debug().
		Str("url", req.URL).
		Str("method", method).
		Msg("Executing API request")

	var body []byte
	err := retryWithBackoff(ctx, retry, c.logger, func() error {
		var attemptErr error
		body, attemptErr = c.attempt(ctx, method, req, payload)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// attempt sends one HTTP request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method string, req cache.Request, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("url", req.URL).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, &attemptError{err: err, errorClass: ErrorClassNetwork}
	}
	defer resp.Body.Close()

	if c.quota != nil {
		if err := c.quota.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &attemptError{err: fmt.Errorf("read response body: %w", err), errorClass: ErrorClassNetwork}
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("url", req.URL).
			Str("method", method).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("API request error")

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp.Status, body),
		}
		return nil, &attemptError{err: apiErr, errorClass: errClass}
	}

	return body, nil
}

// classifyStatus categorizes a non-success status for observability and retries.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// errorMessage prefers the API's own error text over the status line.
func errorMessage(status string, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "message", "errors.0.message"} {
			if msg := gjson.GetBytes(body, path); msg.Exists() && msg.String() != "" {
				return msg.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	return status
}
